package health

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"tunecrate/internal/capacity"
	"tunecrate/internal/metrics"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
	StatusDisabled = "disabled"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status  string           `json:"status"`
	DB      DependencyStatus `json:"db"`
	Redis   DependencyStatus `json:"redis"`
	Storage DependencyStatus `json:"storage"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status      string  `json:"status"`
	LatencyMs   int64   `json:"latency_ms"`
	UsedPercent float64 `json:"used_percent,omitempty"`
}

// UsageProber reports disk usage for a path
type UsageProber interface {
	GetUsage(path string) (capacity.UsageInfo, error)
}

// Pinger is anything that can prove it is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker probes the catalog database and, when configured, Redis
type Checker struct {
	db      Pinger
	redis   Pinger
	metrics *metrics.Metrics

	usage        UsageProber
	storageRoots []string

	timeout            time.Duration
	dbDegradedAfter    time.Duration
	redisDegradedAfter time.Duration
}

// NewChecker creates a checker. redis may be nil when the order cache is disabled.
func NewChecker(db Pinger, redis Pinger, m *metrics.Metrics) *Checker {
	if m == nil {
		m = metrics.Default()
	}
	return &Checker{
		db:                 db,
		redis:              redis,
		metrics:            m,
		timeout:            5 * time.Second,
		dbDegradedAfter:    200 * time.Millisecond,
		redisDegradedAfter: 100 * time.Millisecond,
	}
}

// WithStorage adds a disk usage check of the given store roots
func (c *Checker) WithStorage(usage UsageProber, roots ...string) *Checker {
	c.usage = usage
	c.storageRoots = roots
	return c
}

// Check probes every dependency and folds the results into one status
func (c *Checker) Check(ctx context.Context) HealthResponse {
	resp := HealthResponse{
		DB:      c.probe(ctx, "db", c.db, c.dbDegradedAfter),
		Redis:   c.probe(ctx, "redis", c.redis, c.redisDegradedAfter),
		Storage: c.probeStorage(),
	}

	resp.Status = StatusOK
	for _, dep := range []DependencyStatus{resp.DB, resp.Redis, resp.Storage} {
		switch dep.Status {
		case StatusDown:
			resp.Status = StatusDown
		case StatusDegraded:
			if resp.Status == StatusOK {
				resp.Status = StatusDegraded
			}
		}
	}
	return resp
}

func (c *Checker) probe(ctx context.Context, name string, p Pinger, degradedAfter time.Duration) DependencyStatus {
	if p == nil {
		return DependencyStatus{Status: StatusDisabled}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	status := StatusOK
	switch {
	case err != nil:
		status = StatusDown
	case latency > degradedAfter:
		status = StatusDegraded
	}

	up := 1.0
	if status == StatusDown {
		up = 0
	}
	c.metrics.HealthStatus.WithLabelValues(name).Set(up)

	return DependencyStatus{Status: status, LatencyMs: latency.Milliseconds()}
}

// probeStorage reports the fullest store root. An unreadable root is down,
// a filling disk only degraded.
func (c *Checker) probeStorage() DependencyStatus {
	if c.usage == nil || len(c.storageRoots) == 0 {
		return DependencyStatus{Status: StatusDisabled}
	}

	start := time.Now()
	worst := DependencyStatus{Status: StatusOK}
	for _, root := range c.storageRoots {
		info, err := c.usage.GetUsage(root)
		if err != nil {
			worst = DependencyStatus{Status: StatusDown}
			break
		}
		if info.UsedPercent > worst.UsedPercent {
			worst.UsedPercent = info.UsedPercent
		}
		if info.Status != capacity.StatusOK {
			worst.Status = StatusDegraded
		}
	}
	worst.LatencyMs = time.Since(start).Milliseconds()

	up := 1.0
	if worst.Status == StatusDown {
		up = 0
	}
	c.metrics.HealthStatus.WithLabelValues("storage").Set(up)
	return worst
}

// RegisterHealthRoutes registers the health check routes
func RegisterHealthRoutes(app *fiber.App, checker *Checker) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		resp := checker.Check(c.UserContext())

		if resp.Status == StatusDown {
			c.Status(fiber.StatusServiceUnavailable)
		} else {
			c.Status(fiber.StatusOK)
		}
		c.Set("Cache-Control", "no-store")

		return c.JSON(resp)
	})
}
