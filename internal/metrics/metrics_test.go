package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	Decisions.WithLabelValues("MOMENTUM", "LONG").Inc()
	RetrainRuns.WithLabelValues("promoted").Inc()
	PolicyVersion.Set(3)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["trader_decisions_total"])
	assert.True(t, names["trader_retrain_runs_total"])
	assert.True(t, names["trader_policy_version"])

	var m dto.Metric
	require.NoError(t, PolicyVersion.Write(&m))
	assert.Equal(t, 3.0, m.GetGauge().GetValue())
}
