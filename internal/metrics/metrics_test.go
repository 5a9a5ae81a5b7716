package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-card-relay-go/internal/model"
)

func TestObservePass(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	start := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	m.ObservePass(model.RunSummary{
		Trigger:    "manual",
		Fetched:    4,
		Processed:  3,
		Inserted:   1,
		Skipped:    2,
		Errors:     1,
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
	}, "completed")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Passes.WithLabelValues("manual", "completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Fetched))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Processed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Inserted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Skipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors))

	count, err := testutil.GatherAndCount(reg, "smart_card_relay_pass_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewMetricsPerRegistry(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
