package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	first := NewMetrics(prometheus.NewRegistry())
	second := NewMetrics(prometheus.NewRegistry())

	first.UploadsRejectedTotal.WithLabelValues("audio", "content_type").Inc()
	first.UploadsRejectedTotal.WithLabelValues("audio", "content_type").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(first.UploadsRejectedTotal.WithLabelValues("audio", "content_type")))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.UploadsRejectedTotal.WithLabelValues("audio", "content_type")))
}

func TestNewMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SagaOutcomesTotal.WithLabelValues("aborted", "IMAGE_SAVED").Inc()
	m.BulkAddDuplicatesTotal.Add(3)

	count, err := testutil.GatherAndCount(reg, "tunecrate_song_saga_outcomes_total", "tunecrate_playlist_bulk_add_duplicates_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDefault_Singleton(t *testing.T) {
	assert.Same(t, Default(), Default())
	assert.Equal(t, float64(0), testutil.ToFloat64(Default().HealthStatus.WithLabelValues("redis")))
}
