package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.VersionCreated()
	m.VersionCreated()
	m.VersionDeleted()
	m.Restore(RestoreOK)
	m.Restore(RestorePartial)
	m.Restore(RestorePartial)
	m.HTTPRequest("GET", "/api/v1/versions/{vid}", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VersionsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VersionsDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Restores.WithLabelValues(RestoreOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Restores.WithLabelValues(RestorePartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/api/v1/versions/{vid}", "200")))
}

func TestMetrics_Histograms(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDiff(3)
	m.ObserveStore("insert_version", time.Now())

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["venture_diff_entries"])
	assert.True(t, names["venture_store_operation_duration_seconds"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.VersionCreated()
		m.VersionDeleted()
		m.Restore(RestoreFailed)
		m.ObserveDiff(1)
		m.ObserveStore("op", time.Now())
		m.HTTPRequest("GET", "/", 200)
	})
}
