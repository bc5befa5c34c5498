package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestDecisionCounterIncrements(t *testing.T) {
	before := counterValue(t, DecisionsTotal.WithLabelValues("block"))
	DecisionsTotal.WithLabelValues("block").Inc()
	after := counterValue(t, DecisionsTotal.WithLabelValues("block"))
	assert.Equal(t, before+1, after)
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		102: "1xx",
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		429: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for code, want := range cases {
		assert.Equal(t, want, statusBucket(code), "status %d", code)
	}
}
