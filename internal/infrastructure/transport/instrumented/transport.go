// Package instrumented_transport decorates a transport with prometheus
// metrics about the exchanged APDUs.
package instrumented_transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
)

const (
	namespace = "ledger"
	subsystem = "transport"

	labelCla    = "cla"
	labelIns    = "ins"
	labelStatus = "status"
)

type metrics struct {
	exchanges *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	dataBytes *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exchanges_total",
			Help:      "Number of APDU exchanges completed, by instruction and status word.",
		}, []string{labelCla, labelIns, labelStatus}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Number of APDU exchanges the transport failed to complete.",
		}, []string{labelCla, labelIns}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exchange_duration_seconds",
			Help:      "Time between sending a command and receiving its response.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{labelCla, labelIns}),
		dataBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "response_data_bytes",
			Help:      "Size of the data of the responses, status word excluded.",
			Buckets:   prometheus.LinearBuckets(0, 32, 9),
		}, []string{labelCla, labelIns}),
	}

	collectors := []prometheus.Collector{
		m.exchanges, m.failures, m.duration, m.dataBytes,
	}
	for i, c := range collectors {
		if err := registerer.Register(c); err != nil {
			var alreadyRegistered prometheus.AlreadyRegisteredError
			if !errors.As(err, &alreadyRegistered) {
				return nil, err
			}
			collectors[i] = alreadyRegistered.ExistingCollector
		}
	}
	m.exchanges = collectors[0].(*prometheus.CounterVec)
	m.failures = collectors[1].(*prometheus.CounterVec)
	m.duration = collectors[2].(*prometheus.HistogramVec)
	m.dataBytes = collectors[3].(*prometheus.HistogramVec)

	return m, nil
}

type Transport struct {
	client.Transport
	metrics *metrics
}

// NewTransport wraps the given transport. A nil registerer defaults to the
// prometheus default one.
func NewTransport(
	t client.Transport, registerer prometheus.Registerer,
) (*Transport, error) {
	if t == nil {
		return nil, fmt.Errorf("missing transport")
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	return &Transport{t, m}, nil
}

func (t *Transport) Exchange(
	ctx context.Context, cmd apdu.Command,
) (apdu.StatusWord, []byte, error) {
	cla, ins := fmt.Sprintf("%02x", cmd.Cla), fmt.Sprintf("%02x", cmd.Ins)

	start := time.Now()
	sw, data, err := t.Transport.Exchange(ctx, cmd)
	t.metrics.duration.WithLabelValues(cla, ins).Observe(
		time.Since(start).Seconds(),
	)
	if err != nil {
		t.metrics.failures.WithLabelValues(cla, ins).Inc()
		return sw, data, err
	}

	t.metrics.exchanges.WithLabelValues(cla, ins, sw.String()).Inc()
	t.metrics.dataBytes.WithLabelValues(cla, ins).Observe(float64(len(data)))
	return sw, data, nil
}

// Close closes the wrapped transport, if closable.
func (t *Transport) Close() error {
	if closer, ok := t.Transport.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
