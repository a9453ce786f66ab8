package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunecrate/internal/capacity"
	"tunecrate/internal/database"
	"tunecrate/internal/metrics"
	"tunecrate/internal/test"
)

func redisPinger(client *redis.Client) Pinger {
	return PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
}

func sqlitePinger(t *testing.T) Pinger {
	db := test.GetTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	return database.NewDatabaseManagerFromExisting(db, sqlDB)
}

func TestChecker_AllHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	m := metrics.NewMetrics(prometheus.NewRegistry())

	resp := NewChecker(sqlitePinger(t), redisPinger(client), m).Check(context.Background())

	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StatusOK, resp.DB.Status)
	assert.Equal(t, StatusOK, resp.Redis.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HealthStatus.WithLabelValues("db")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HealthStatus.WithLabelValues("redis")))
}

func TestChecker_RedisDisabled(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	resp := NewChecker(sqlitePinger(t), nil, m).Check(context.Background())

	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, StatusDisabled, resp.Redis.Status)
}

func TestChecker_DownAndDegraded(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	down := PingFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	slow := PingFunc(func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	checker := NewChecker(slow, nil, m)
	checker.dbDegradedAfter = time.Millisecond
	assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)

	checker = NewChecker(slow, down, m)
	checker.dbDegradedAfter = time.Millisecond
	resp := checker.Check(context.Background())
	assert.Equal(t, StatusDown, resp.Status, "down wins over degraded")
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HealthStatus.WithLabelValues("redis")))
}

func TestHealthRoute(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	cases := []struct {
		name   string
		db     Pinger
		code   int
		status string
	}{
		{"healthy", PingFunc(func(context.Context) error { return nil }), fiber.StatusOK, StatusOK},
		{"database down", PingFunc(func(context.Context) error { return errors.New("gone") }), fiber.StatusServiceUnavailable, StatusDown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			RegisterHealthRoutes(app, NewChecker(tc.db, nil, m))

			resp, err := app.Test(httptest.NewRequest("GET", "/healthz", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tc.code, resp.StatusCode)
			assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

			var body HealthResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.status, body.Status)
		})
	}
}

type fixedUsage struct {
	percent map[string]float64
	err     error
}

func (f fixedUsage) GetUsage(path string) (capacity.UsageInfo, error) {
	if f.err != nil {
		return capacity.UsageInfo{}, f.err
	}
	used := f.percent[path]
	return capacity.UsageInfo{Path: path, UsedPercent: used, Status: capacity.EvaluateStatus(used, capacity.DefaultThresholds())}, nil
}

func TestChecker_Storage(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	db := PingFunc(func(context.Context) error { return nil })

	resp := NewChecker(db, nil, m).Check(context.Background())
	assert.Equal(t, StatusDisabled, resp.Storage.Status)

	roomy := fixedUsage{percent: map[string]float64{"/audio": 40, "/image": 10}}
	resp = NewChecker(db, nil, m).WithStorage(roomy, "/audio", "/image").Check(context.Background())
	assert.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, float64(40), resp.Storage.UsedPercent)

	full := fixedUsage{percent: map[string]float64{"/audio": 95, "/image": 10}}
	resp = NewChecker(db, nil, m).WithStorage(full, "/audio", "/image").Check(context.Background())
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusDegraded, resp.Storage.Status)

	broken := fixedUsage{err: errors.New("stale NFS handle")}
	resp = NewChecker(db, nil, m).WithStorage(broken, "/audio").Check(context.Background())
	assert.Equal(t, StatusDown, resp.Status)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HealthStatus.WithLabelValues("storage")))
}

func TestChecker_StorageOnRealDisk(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	db := PingFunc(func(context.Context) error { return nil })

	resp := NewChecker(db, nil, m).WithStorage(capacity.NewProbe(m), t.TempDir()).Check(context.Background())
	assert.NotEqual(t, StatusDown, resp.Storage.Status)
}
