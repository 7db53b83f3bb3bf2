package registry

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// Document formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Document is the exported registry configuration.
type Document struct {
	Factories []string        `json:"factories" yaml:"factories"`
	Providers []ProviderEntry `json:"providers" yaml:"providers"`
}

// ProviderEntry is one provider in a Document.
type ProviderEntry struct {
	Name   string          `json:"name" yaml:"name"`
	Config provider.Config `json:"config" yaml:"config"`
}

// ImportResult reports what ImportConfig did per provider.
type ImportResult struct {
	Created   []string          `json:"created"`
	Updated   []string          `json:"updated"`
	Unchanged []string          `json:"unchanged"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// Marshal encodes d as JSON or YAML.
func (d Document) Marshal(format string) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(d, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(d)
	default:
		return nil, errors.InvalidInput("format", fmt.Sprintf("unsupported document format %q", format))
	}
}

// ParseDocument decodes a JSON or YAML document.
func ParseDocument(data []byte, format string) (Document, error) {
	var d Document
	var err error
	switch format {
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&d)
		for i := range d.Providers {
			d.Providers[i].Config.Settings = integerSettings(d.Providers[i].Config.Settings)
		}
	case FormatYAML, "yml":
		err = yaml.Unmarshal(data, &d)
	default:
		return Document{}, errors.InvalidInput("format", fmt.Sprintf("unsupported document format %q", format))
	}
	if err != nil {
		return Document{}, errors.InvalidInput("document", err.Error()).WithCause(err)
	}
	return d, nil
}

// integerSettings turns the json.Number values of a decoded document into
// int when they are whole and float64 otherwise, matching what the YAML
// decoder yields.
func integerSettings(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = fromNumber(v)
	}
	return m
}

func fromNumber(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := strconv.ParseInt(x.String(), 10, 0); err == nil {
			return int(n)
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		return integerSettings(x)
	case []any:
		for i := range x {
			x[i] = fromNumber(x[i])
		}
	}
	return v
}

// ExportConfig returns the factory names and every provider's
// configuration in registration order. Secrets are never exported.
func (r *Registry) ExportConfig() Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d := Document{
		Factories: make([]string, 0, len(r.factories)),
		Providers: make([]ProviderEntry, 0, len(r.order)),
	}
	for _, f := range r.factories {
		d.Factories = append(d.Factories, f.Name())
	}
	for _, name := range r.order {
		d.Providers = append(d.Providers, ProviderEntry{
			Name:   name,
			Config: r.instances[name].p.Config().WithoutSecrets(),
		})
	}
	return d
}

// ImportConfig registers providers missing from the registry and replaces
// the configuration of existing ones. Providers absent from d are left
// alone and secrets already held are kept. Failures are recorded per
// provider and joined into the returned error.
func (r *Registry) ImportConfig(ctx context.Context, d Document) (ImportResult, error) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	known := r.ListFactories()
	for _, f := range d.Factories {
		if !slices.Contains(known, f) {
			r.log.Warn("imported document references unknown factory", logger.Fields(logger.FieldFactory, f))
		}
	}

	res := ImportResult{Created: []string{}, Updated: []string{}, Unchanged: []string{}}
	var errs []error
	fail := func(name string, err error) {
		if res.Failed == nil {
			res.Failed = make(map[string]string)
		}
		res.Failed[name] = err.Error()
		errs = append(errs, err)
	}

	// New providers are registered first so updates to existing ones may
	// depend on them.
	type pending struct {
		inst *instance
		cfg  provider.Config
	}
	var updates []pending
	for _, entry := range d.Providers {
		name := entry.Name
		if name == "" {
			name = entry.Config.Name
		}
		cfg := entry.Config.Clone()
		cfg.Name = name

		inst, exists := r.instance(name)
		if exists {
			updates = append(updates, pending{inst, cfg})
			continue
		}
		if _, err := r.RegisterProvider(ctx, name, cfg.Type, cfg); err != nil {
			fail(name, err)
			continue
		}
		res.Created = append(res.Created, name)
	}

	for _, u := range updates {
		inst, cfg, name := u.inst, u.cfg, u.inst.name

		if cfg.Type != "" && cfg.Type != inst.typ {
			fail(name, errors.Configuration(name, "provider type cannot change on import").WithDetail("type", string(cfg.Type)))
			continue
		}
		cfg.Type = inst.typ
		cfg.ApplyDefaults()
		changed, err := r.updateConfigLocked(ctx, inst, provider.PatchFrom(cfg), "import")
		if err != nil {
			fail(name, err)
			continue
		}
		if changed {
			res.Updated = append(res.Updated, name)
		} else {
			res.Unchanged = append(res.Unchanged, name)
		}
	}

	r.log.Info("configuration imported", logger.Fields(
		"created", len(res.Created),
		"updated", len(res.Updated),
		"failed", len(res.Failed),
	))
	return res, stderrors.Join(errs...)
}
