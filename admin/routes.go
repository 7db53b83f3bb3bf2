package admin

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/provider"
	"github.com/kbukum/backendkit/registry"
	"github.com/kbukum/backendkit/version"
)

func (s *Server) routes() {
	e := s.engine
	mutate := s.limiter.middleware()
	if s.cfg.RateLimit.Rate < 0 {
		mutate = func(c *gin.Context) { c.Next() }
	}

	e.GET("/health", s.health)
	e.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, DataResponse{Data: version.Get()}) })

	p := e.Group("/providers")
	p.GET("", s.listProviders)
	p.POST("", mutate, s.registerProvider)
	p.GET("/:name", s.getProvider)
	p.DELETE("/:name", mutate, s.unregisterProvider)
	p.POST("/:name/start", mutate, s.lifecycle(s.reg.StartProvider))
	p.POST("/:name/stop", mutate, s.lifecycle(s.reg.StopProvider))
	p.POST("/:name/restart", mutate, s.lifecycle(s.reg.RestartProvider))
	p.PATCH("/:name/config", mutate, s.patchConfig)
	p.POST("/:name/reload", mutate, s.reloadConfig)
	p.GET("/:name/health", s.providerHealth)
	p.GET("/:name/metrics", s.providerMetrics)
	p.GET("/:name/events", s.providerEvents)
	p.POST("/:name/test", s.testProvider)
	p.GET("/:name/services", s.listServices)
	p.GET("/:name/services/:service/health", s.serviceHealth)
	p.GET("/:name/services/:service/metrics", s.serviceMetrics)
	p.POST("/:name/services/:service/enable", mutate, s.toggleService(true))
	p.POST("/:name/services/:service/disable", mutate, s.toggleService(false))
	p.GET("/:name/setup", s.setupSteps)
	p.POST("/:name/setup", mutate, s.runSetup)

	e.POST("/lifecycle/start", mutate, s.startAll)
	e.POST("/lifecycle/stop", mutate, s.stopAll)
	e.GET("/order", s.startupOrder)

	e.GET("/metrics/summary", s.metricsSummary)
	e.GET("/metrics/registry", s.registryMetrics)
	e.GET("/events", s.allEvents)
	e.GET("/events/stream", s.serveStream)
	e.POST("/test", s.testAll)

	e.GET("/config/export", s.exportConfig)
	e.POST("/config/import", mutate, s.importConfig)
}

// health reports the merged summary; an unhealthy registry answers 503.
func (s *Server) health(c *gin.Context) {
	sum := s.bridge.HealthSummary(c.Request.Context())
	status := http.StatusOK
	if sum.Overall == provider.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, DataResponse{Data: sum})
}

func (s *Server) listProviders(c *gin.Context) {
	var types []provider.Type
	if raw := c.Query("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			types = append(types, provider.Type(strings.TrimSpace(t)))
		}
	}
	if cat := c.Query("category"); cat != "" {
		respondOK(c, s.bridge.ListByCategory(cat))
		return
	}
	respondOK(c, s.bridge.ListProviders(types...))
}

type registerRequest struct {
	Name   string          `json:"name" binding:"required"`
	Type   provider.Type   `json:"type" binding:"required"`
	Config provider.Config `json:"config"`
}

func (s *Server) registerProvider(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", err)
		return
	}
	v, err := s.bridge.RegisterProvider(c.Request.Context(), req.Name, req.Type, req.Config)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, v)
}

func (s *Server) getProvider(c *gin.Context) {
	v, err := s.bridge.Provider(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, v)
}

func (s *Server) unregisterProvider(c *gin.Context) {
	name := c.Param("name")
	removed, err := s.reg.UnregisterProvider(c.Request.Context(), name)
	if !removed {
		respondError(c, errors.NotFound("provider", name))
		return
	}
	if err != nil {
		// The provider is gone; report the teardown failure alongside.
		c.JSON(http.StatusOK, DataResponse{Data: gin.H{"removed": true, "error": err.Error()}})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) lifecycle(op func(ctx context.Context, name string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := op(c.Request.Context(), name); err != nil {
			respondError(c, err)
			return
		}
		s.providerView(c, name)
	}
}

func (s *Server) providerView(c *gin.Context, name string) {
	v, err := s.bridge.Provider(name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, v)
}

func (s *Server) patchConfig(c *gin.Context) {
	var patch provider.ConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "body", err)
		return
	}
	name := c.Param("name")
	if err := s.reg.UpdateProviderConfig(c.Request.Context(), name, patch); err != nil {
		respondError(c, err)
		return
	}
	s.providerView(c, name)
}

func (s *Server) reloadConfig(c *gin.Context) {
	name := c.Param("name")
	if err := s.reg.ReloadProviderConfig(c.Request.Context(), name); err != nil {
		respondError(c, err)
		return
	}
	s.providerView(c, name)
}

func (s *Server) providerHealth(c *gin.Context) {
	h, err := s.reg.CheckProviderHealth(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h)
}

// providerMetrics collects live metrics, or returns history when
// ?history=N is given.
func (s *Server) providerMetrics(c *gin.Context) {
	name := c.Param("name")
	if raw, ok := c.GetQuery("history"); ok {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "history", err)
			return
		}
		hist, err := s.reg.MetricsHistory(name, limit)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, hist)
		return
	}
	m, err := s.reg.ProviderMetrics(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}

func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(c, errors.InvalidInput("limit", "must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func (s *Server) providerEvents(c *gin.Context) {
	name := c.Param("name")
	if !s.reg.HasProvider(name) {
		respondError(c, errors.NotFound("provider", name))
		return
	}
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	respondOK(c, s.reg.ProviderEvents(name, limit))
}

func (s *Server) allEvents(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	respondOK(c, s.reg.AllEvents(limit))
}

func (s *Server) testProvider(c *gin.Context) {
	report, err := s.bridge.TestProvider(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

func (s *Server) testAll(c *gin.Context) {
	respondOK(c, s.bridge.TestAllProviders(c.Request.Context()))
}

func (s *Server) listServices(c *gin.Context) {
	name := c.Param("name")
	svcs, err := s.bridge.AvailableServices(name)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]gin.H, 0, len(svcs))
	for _, svc := range svcs {
		on, _ := s.bridge.IsServiceEnabled(name, svc)
		out = append(out, gin.H{"service": svc, "enabled": on})
	}
	respondOK(c, out)
}

func (s *Server) serviceHealth(c *gin.Context) {
	h, err := s.bridge.ServiceHealth(c.Request.Context(), c.Param("name"), c.Param("service"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, h)
}

func (s *Server) serviceMetrics(c *gin.Context) {
	m, err := s.bridge.ServiceMetrics(c.Request.Context(), c.Param("name"), c.Param("service"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, m)
}

func (s *Server) toggleService(on bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, svc := c.Param("name"), c.Param("service")
		var err error
		if on {
			err = s.bridge.EnableService(c.Request.Context(), name, svc)
		} else {
			err = s.bridge.DisableService(c.Request.Context(), name, svc)
		}
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, gin.H{"service": svc, "enabled": on})
	}
}

func (s *Server) setupSteps(c *gin.Context) {
	steps, err := s.bridge.SetupSteps(c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, steps)
}

func (s *Server) runSetup(c *gin.Context) {
	report, err := s.bridge.RunSetup(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, report)
}

func (s *Server) startAll(c *gin.Context) {
	res, err := s.reg.StartAllProviders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, res)
}

func (s *Server) stopAll(c *gin.Context) {
	respondOK(c, s.reg.StopAllProviders(c.Request.Context()))
}

func (s *Server) startupOrder(c *gin.Context) {
	order, err := s.reg.StartupOrder()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, order)
}

func (s *Server) metricsSummary(c *gin.Context) {
	respondOK(c, s.bridge.MetricsSummary(c.Request.Context()))
}

func (s *Server) registryMetrics(c *gin.Context) {
	respondOK(c, s.reg.RegistryMetrics())
}

func documentFormat(c *gin.Context) string {
	if f := c.Query("format"); f != "" {
		return f
	}
	if strings.Contains(c.ContentType(), "yaml") {
		return registry.FormatYAML
	}
	return registry.FormatJSON
}

func (s *Server) exportConfig(c *gin.Context) {
	format := documentFormat(c)
	data, err := s.reg.ExportConfig().Marshal(format)
	if err != nil {
		respondError(c, err)
		return
	}
	contentType := "application/json"
	if format != registry.FormatJSON {
		contentType = "application/yaml"
	}
	c.Data(http.StatusOK, contentType, data)
}

func (s *Server) importConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, "body", err)
		return
	}
	doc, err := registry.ParseDocument(body, documentFormat(c))
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := s.reg.ImportConfig(c.Request.Context(), doc)
	if err != nil {
		c.JSON(http.StatusMultiStatus, DataResponse{Data: res})
		return
	}
	respondOK(c, res)
}
