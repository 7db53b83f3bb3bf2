package admin

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/resilience"
	"github.com/kbukum/backendkit/util"
)

const defaultMaxBodySize = 1 << 20

func recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered", logger.Fields(
					logger.FieldError, fmt.Sprint(r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				))
				appErr := errors.New(errors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
				c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
			}
		}()
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// requestLogger logs every request except health probes and event streams.
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || strings.HasSuffix(path, "/stream") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := logger.Fields(
			"method", c.Request.Method,
			"path", path,
			"status", status,
			logger.FieldDuration, latency.Milliseconds(),
			"client", c.ClientIP(),
			"request_id", c.GetString("request_id"),
		)
		switch {
		case status >= 500:
			log.Error("request completed", fields)
		case status >= 400:
			log.Warn("request completed", fields)
		default:
			log.Debug("request completed", fields)
		}
	}
}

func bodyLimit(maxSize string) gin.HandlerFunc {
	size := util.ParseSize(maxSize, defaultMaxBodySize)
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, size)
		c.Next()
	}
}

func cors(cfg CORSConfig) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (slices.Contains(cfg.AllowedOrigins, origin) || slices.Contains(cfg.AllowedOrigins, "*")) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", headers)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// clientLimiter keeps one token bucket per client IP. A bucket unused for
// longer than idle has refilled completely, so it is dropped; sweeps run on
// access at most once per idle period.
type clientLimiter struct {
	cfg  resilience.RateLimiterConfig
	idle time.Duration
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	rl       *resilience.RateLimiter
	lastSeen time.Time
}

func newClientLimiter(cfg RateLimitConfig, log *logger.Logger) *clientLimiter {
	rc := resilience.RateLimiterConfig{
		Name:  "admin",
		Rate:  cfg.Rate,
		Burst: cfg.Burst,
		OnLimit: func(name string) {
			log.Warn("rate limit exceeded", logger.Fields("limiter", name))
		},
	}
	idle := time.Minute
	if cfg.Rate > 0 {
		if refill := time.Duration(float64(cfg.Burst) / cfg.Rate * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &clientLimiter{
		cfg:       rc,
		idle:      idle,
		now:       time.Now,
		buckets:   make(map[string]*clientBucket),
		lastSweep: time.Now(),
	}
}

func (l *clientLimiter) allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idle {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &clientBucket{rl: resilience.NewRateLimiter(l.cfg)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.rl.Allow()
}

// size reports how many client buckets are held.
func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *clientLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			appErr := errors.New(errors.ErrCodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests)
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.ToResponse())
			return
		}
		c.Next()
	}
}
