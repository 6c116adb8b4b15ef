package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryGathers(t *testing.T) {
	reg, m := NewRegistry()
	m.ProbesTotal.WithLabelValues("true").Inc()
	m.AddonQueriesTotal.WithLabelValues("org.example", AddonTimeout).Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["stremarr_probes_total"])
	assert.True(t, names["stremarr_addon_queries_total"])
	assert.True(t, names["go_goroutines"])
}

func TestNewNopIsIndependent(t *testing.T) {
	a := NewNop()
	b := NewNop()
	a.RecheckItems.Inc()

	assert.Equal(t, float64(1), counterValue(t, a.RecheckItems))
	assert.Equal(t, float64(0), counterValue(t, b.RecheckItems))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
