package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// ProviderLine is one row of the startup summary.
type ProviderLine struct {
	Name     string
	Type     string
	Status   string
	Category string
	Services []string
	Note     string
}

// Summary is the startup report printed once the application is ready.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	adminAddr       string
	eventTopic      string
	providers       []ProviderLine
	rejected        []ProviderLine
}

func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

func (s *Summary) SetStartupDuration(d time.Duration) { s.startupDuration = d }

// TrackRejected records a configured provider that failed registration.
func (s *Summary) TrackRejected(name, typ, reason string) {
	s.rejected = append(s.rejected, ProviderLine{Name: name, Type: typ, Status: "rejected", Note: reason})
}

// Collect snapshots the registered providers in startup order.
func (s *Summary) Collect(a *App) {
	s.providers = s.providers[:0]
	order, err := a.Registry.StartupOrder()
	if err != nil {
		order = a.Registry.Names()
	}
	for _, name := range order {
		v, err := a.Bridge.Provider(name)
		if err != nil {
			continue
		}
		line := ProviderLine{
			Name:     v.Name,
			Type:     string(v.Type),
			Status:   string(v.Status),
			Category: v.Category,
			Services: v.Enabled,
		}
		if v.LastError != "" {
			line.Note = v.LastError
		}
		s.providers = append(s.providers, line)
	}
	if a.Admin != nil {
		s.adminAddr = a.Admin.Addr()
	}
	if a.sink != nil {
		s.eventTopic = a.Cfg.Events.Topic
	}
}

// Providers returns the collected rows followed by rejected providers.
func (s *Summary) Providers() []ProviderLine {
	return append(append([]ProviderLine(nil), s.providers...), s.rejected...)
}

// Display logs the summary, one line per provider.
func (s *Summary) Display(log *logger.Logger) {
	active := 0
	for _, p := range s.providers {
		if provider.Status(p.Status).Running() {
			active++
		}
	}
	log.Info(fmt.Sprintf("%s %s ready in %s", s.serviceName, s.version, s.startupDuration.Round(time.Millisecond)), logger.Fields(
		"providers", len(s.providers),
		"active", active,
		"rejected", len(s.rejected),
	))
	for _, p := range s.Providers() {
		fields := logger.Fields(
			logger.FieldProvider, p.Name,
			logger.FieldProviderType, p.Type,
			logger.FieldStatus, p.Status,
		)
		if len(p.Services) > 0 {
			fields["services"] = strings.Join(p.Services, ",")
		}
		if p.Note != "" {
			fields["note"] = p.Note
		}
		log.Info("  "+statusMark(p.Status)+" "+p.Name, fields)
	}
	if s.adminAddr != "" {
		log.Info("  admin api listening", logger.Fields("addr", s.adminAddr))
	}
	if s.eventTopic != "" {
		log.Info("  forwarding events", logger.Fields("topic", s.eventTopic))
	}
}

func statusMark(status string) string {
	switch provider.Status(status) {
	case provider.StatusActive:
		return "+"
	case provider.StatusDegraded:
		return "~"
	case provider.StatusFailed, "rejected":
		return "x"
	default:
		return "-"
	}
}
