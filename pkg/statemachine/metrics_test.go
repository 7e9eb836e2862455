package statemachine

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	metrics := NewMetrics()
	m, _ := newNestedMachine(WithObserver(metrics))

	require.NoError(t, m.Start())
	require.NoError(t, m.Dispatch("G"))
	require.NoError(t, m.Dispatch("Z"))

	collector := NewCollector("statesurf", "hsm", metrics)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(collector))

	assert.Equal(t, 5, testutil.CollectAndCount(collector))

	expected := `
# HELP statesurf_discarded_total Events discarded without a transition.
# TYPE statesurf_discarded_total counter
statesurf_discarded_total{chart="hsm"} 1
# HELP statesurf_transitions_total Transitions taken, internal ones included.
# TYPE statesurf_transitions_total counter
statesurf_transitions_total{chart="hsm"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"statesurf_discarded_total", "statesurf_transitions_total"))
}
