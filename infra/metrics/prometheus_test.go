package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpersRecordAfterSetup(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Setup(reg))

	OrderCounterInc("BTCUSD", "limit")
	OrderCounterInc("BTCUSD", "limit")
	DealCounterAdd("BTCUSD", 3)
	DealCounterAdd("BTCUSD", 0)
	CommandErrorInc("put_limit", 11)
	OutboxPublishedInc("deals", false)
	ReplayedAdd(4)
	BookGaugeSet("BTCUSD", "ask", 7)
	StartAPIRequestAndTime("REST", "depth")()

	assert.Equal(t, 2.0, testutil.ToFloat64(orderCounter.WithLabelValues("BTCUSD", "limit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(dealCounter.WithLabelValues("BTCUSD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(commandErrors.WithLabelValues("put_limit", "11")))
	assert.Equal(t, 1.0, testutil.ToFloat64(outboxPublished.WithLabelValues("deals", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(replayedCounter))
	assert.Equal(t, 7.0, testutil.ToFloat64(bookGauge.WithLabelValues("BTCUSD", "ask")))
	assert.Equal(t, 1.0, testutil.ToFloat64(apiRequestCounter.WithLabelValues("REST", "depth")))

	// a second Setup is a no-op
	require.NoError(t, Setup(prometheus.NewRegistry()))
}
