package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "engine"

var (
	orderCounter      *prometheus.CounterVec
	dealCounter       *prometheus.CounterVec
	cancelCounter     *prometheus.CounterVec
	envelopeCounter   *prometheus.CounterVec
	commandErrors     *prometheus.CounterVec
	outboxPublished   *prometheus.CounterVec
	replayedCounter   prometheus.Counter
	bookGauge         *prometheus.GaugeVec
	apiRequestCounter *prometheus.CounterVec
	apiRequestTime    *prometheus.CounterVec

	setupOnce sync.Once
	setupErr  error
)

// Setup registers every instrument with reg. Until it is called the
// helpers below are no-ops, which keeps tests free of global state.
func Setup(reg prometheus.Registerer) error {
	setupOnce.Do(func() {
		setupErr = setupMetrics(reg)
	})
	return setupErr
}

func setupMetrics(reg prometheus.Registerer) error {
	oc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Number of orders accepted",
	}, []string{"market", "type"})

	dc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deals_total",
		Help:      "Number of executed deals",
	}, []string{"market"})

	cc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancels_total",
		Help:      "Number of cancelled orders",
	}, []string{"market"})

	ec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "envelopes_total",
		Help:      "Envelope commands by operation",
	}, []string{"op"})

	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "command_errors_total",
		Help:      "Rejected commands by error code",
	}, []string{"command", "code"})

	pub := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "published_total",
		Help:      "Outbox messages handed to the broker",
	}, []string{"kind", "result"})

	rc := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replayed_records_total",
		Help:      "Operation log records applied at startup",
	})

	bg := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "book_orders",
		Help:      "Resting orders per market and side",
	}, []string{"market", "side"})

	arc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_count_total",
		Help:      "Count of API requests",
	}, []string{"apiType", "requestType"})

	art := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_time_total",
		Help:      "Total time spent in each API request",
	}, []string{"apiType", "requestType"})

	for _, c := range []prometheus.Collector{oc, dc, cc, ec, errs, pub, rc, bg, arc, art} {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register collector")
		}
	}

	orderCounter = oc
	dealCounter = dc
	cancelCounter = cc
	envelopeCounter = ec
	commandErrors = errs
	outboxPublished = pub
	replayedCounter = rc
	bookGauge = bg
	apiRequestCounter = arc
	apiRequestTime = art
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// OrderCounterInc increments the order counter
func OrderCounterInc(market, orderType string) {
	if orderCounter == nil {
		return
	}
	orderCounter.WithLabelValues(market, orderType).Inc()
}

func DealCounterAdd(market string, n int) {
	if dealCounter == nil || n == 0 {
		return
	}
	dealCounter.WithLabelValues(market).Add(float64(n))
}

func CancelCounterInc(market string) {
	if cancelCounter == nil {
		return
	}
	cancelCounter.WithLabelValues(market).Inc()
}

func EnvelopeCounterInc(op string) {
	if envelopeCounter == nil {
		return
	}
	envelopeCounter.WithLabelValues(op).Inc()
}

func CommandErrorInc(command string, code int) {
	if commandErrors == nil {
		return
	}
	commandErrors.WithLabelValues(command, strconv.Itoa(code)).Inc()
}

func OutboxPublishedInc(kind string, ok bool) {
	if outboxPublished == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	outboxPublished.WithLabelValues(kind, result).Inc()
}

func ReplayedAdd(n int) {
	if replayedCounter == nil {
		return
	}
	replayedCounter.Add(float64(n))
}

// BookGaugeSet updates the resting order count of one side.
func BookGaugeSet(market, side string, n int) {
	if bookGauge == nil {
		return
	}
	bookGauge.WithLabelValues(market, side).Set(float64(n))
}

// StartAPIRequestAndTime counts one API call and returns the func that
// records its duration.
func StartAPIRequestAndTime(apiType, request string) func() {
	startTime := time.Now()
	return func() {
		if apiRequestCounter == nil || apiRequestTime == nil {
			return
		}
		apiRequestCounter.WithLabelValues(apiType, request).Inc()
		apiRequestTime.WithLabelValues(apiType, request).Add(time.Since(startTime).Seconds())
	}
}
