package enhanced

import (
	"context"
	"slices"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/registry"
)

// CategoryGeneral is the category of providers without enhanced
// capabilities.
const CategoryGeneral = "general"

// View is the unified description of a provider.
type View struct {
	registry.Info
	Category     string   `json:"category"`
	Enhanced     bool     `json:"enhanced"`
	MultiService bool     `json:"multi_service"`
	Services     []string `json:"services,omitempty"`
	Enabled      []string `json:"enabled_services,omitempty"`
	SetupSteps   int      `json:"setup_steps,omitempty"`
}

// Bridge adds enhanced capabilities to a registry.
type Bridge struct {
	reg *registry.Registry
	log *logger.Logger
}

// New wraps reg.
func New(reg *registry.Registry) *Bridge {
	return &Bridge{reg: reg, log: logger.Get("enhanced")}
}

// Registry returns the wrapped registry.
func (b *Bridge) Registry() *registry.Registry { return b.reg }

// RegisterProvider registers through the registry. When the factory for t
// declares enhanced capabilities the built provider is checked against
// them: a multi-service provider must expose its services and a
// setup-automation provider its steps, otherwise it is unregistered again
// and a configuration error returned.
func (b *Bridge) RegisterProvider(ctx context.Context, name string, t provider.Type, cfg provider.Config) (View, error) {
	f, err := b.reg.FactoryFor(t)
	if err != nil {
		return View{}, err
	}
	info, err := b.reg.RegisterProvider(ctx, name, t, cfg)
	if err != nil {
		return View{}, err
	}
	if !f.Capabilities().Enhanced() {
		return b.view(info), nil
	}

	p, _ := b.reg.GetProvider(name)
	caps := p.Capabilities()
	var reason string
	switch {
	case caps.Has(provider.CapMultiService) && p.Services() == nil:
		reason = "multi-service provider exposes no services"
	case caps.Has(provider.CapSetupAutomation) && len(p.SetupSteps()) == 0:
		reason = "setup-automation provider declares no setup steps"
	}
	if reason != "" {
		if _, uerr := b.reg.UnregisterProvider(ctx, name); uerr != nil {
			b.log.Warn("rollback of enhanced registration failed", logger.MergeWithError(logger.Fields(logger.FieldProvider, name), uerr))
		}
		return View{}, errors.Configuration(name, reason)
	}

	v := b.view(info)
	b.log.Info("enhanced provider registered", logger.Fields(
		logger.FieldProvider, name,
		"capabilities", caps,
		"services", v.Services,
	))
	return v, nil
}

// GetProvider returns the live provider.
func (b *Bridge) GetProvider(name string) (provider.Provider, bool) {
	return b.reg.GetProvider(name)
}

// Provider returns the unified view of one provider.
func (b *Bridge) Provider(name string) (View, error) {
	info, err := b.reg.ProviderInfo(name)
	if err != nil {
		return View{}, err
	}
	return b.view(info), nil
}

// ListProviders returns unified views in registration order.
func (b *Bridge) ListProviders(types ...provider.Type) []View {
	infos := b.reg.ListProviders(types...)
	out := make([]View, 0, len(infos))
	for _, info := range infos {
		out = append(out, b.view(info))
	}
	return out
}

// ListByCategory returns the views in category.
func (b *Bridge) ListByCategory(category string) []View {
	return slices.DeleteFunc(b.ListProviders(), func(v View) bool { return v.Category != category })
}

func (b *Bridge) view(info registry.Info) View {
	v := View{Info: info, Category: CategoryGeneral}
	if !info.Capabilities.Enhanced() {
		return v
	}
	v.Enhanced = true
	v.Category = string(info.Type)

	p, ok := b.reg.GetProvider(info.Name)
	if !ok {
		return v
	}
	if info.Capabilities.Has(provider.CapMultiService) {
		if set := p.Services(); set != nil {
			v.MultiService = true
			v.Services = set.Available()
			for _, s := range v.Services {
				if set.Enabled(s) {
					v.Enabled = append(v.Enabled, s)
				}
			}
		}
	}
	if info.Capabilities.Has(provider.CapSetupAutomation) {
		v.SetupSteps = len(p.SetupSteps())
	}
	return v
}

// TestProvider runs the provider's diagnostics without changing its
// lifecycle status.
func (b *Bridge) TestProvider(ctx context.Context, name string) (registry.DiagnosticReport, error) {
	return b.reg.TestProvider(ctx, name)
}

// TestAllProviders runs diagnostics on every provider.
func (b *Bridge) TestAllProviders(ctx context.Context) []registry.DiagnosticReport {
	return b.reg.TestAllProviders(ctx)
}
