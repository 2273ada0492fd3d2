// Package metrics exports link traffic, transitions and sticky events as
// Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tamzrod/ncm-linkd/internal/eventlog"
	"github.com/tamzrod/ncm-linkd/internal/link"
)

const namespace = "ncmlink"

var states = []link.State{
	link.StateUnmounted,
	link.StateMountedPending,
	link.StateLinkUp,
	link.StateSuspended,
	link.StateRecovering,
}

// Link implements link.Observer.
type Link struct {
	up         prometheus.Gauge
	state      *prometheus.GaugeVec
	rxFrames   prometheus.Counter
	rxBytes    prometheus.Counter
	txFrames   prometheus.Counter
	txBytes    prometheus.Counter
	txFailures prometheus.Counter
	recoveries prometheus.Counter
}

var _ link.Observer = (*Link)(nil)

// NewLink registers the link collectors on reg.
func NewLink(reg prometheus.Registerer) *Link {
	f := promauto.With(reg)
	m := &Link{
		up: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 while the link signal reported to the host is up.",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "1 for the current link state, 0 for the others.",
		}, []string{"state"}),
		rxFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_frames_total",
			Help:      "Frames received from the host.",
		}),
		rxBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_bytes_total",
			Help:      "Bytes received from the host.",
		}),
		txFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_frames_total",
			Help:      "Frames sent to the host.",
		}),
		txBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_bytes_total",
			Help:      "Bytes sent to the host.",
		}),
		txFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_failures_total",
			Help:      "Frames dropped after every send attempt failed.",
		}),
		recoveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_attempts_total",
			Help:      "Forced re-enumerations started by the watchdog.",
		}),
	}
	m.StateChanged(link.StateUnmounted)
	return m
}

func (m *Link) LinkChanged(up bool) {
	if up {
		m.up.Set(1)
	} else {
		m.up.Set(0)
	}
}

func (m *Link) StateChanged(s link.State) {
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}

func (m *Link) FrameReceived(n int) {
	m.rxFrames.Inc()
	m.rxBytes.Add(float64(n))
}

func (m *Link) FrameSent(n int) {
	m.txFrames.Inc()
	m.txBytes.Add(float64(n))
}

func (m *Link) SendFailed()        { m.txFailures.Inc() }
func (m *Link) RecoveryAttempted() { m.recoveries.Inc() }

// Events exposes the sticky occurrence flags as one gauge per event type.
type Events struct {
	log  *eventlog.Log
	desc *prometheus.Desc
}

// NewEvents builds a collector over log. Register it with
// reg.MustRegister.
func NewEvents(log *eventlog.Log) *Events {
	return &Events{
		log: log,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "event_seen"),
			"1 once the critical event has occurred since process start.",
			[]string{"event"}, nil,
		),
	}
}

func (e *Events) Describe(ch chan<- *prometheus.Desc) { ch <- e.desc }

func (e *Events) Collect(ch chan<- prometheus.Metric) {
	mask := e.log.Mask()
	for _, t := range eventlog.Types() {
		v := 0.0
		if mask&(1<<uint(t)) != 0 {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(e.desc, prometheus.GaugeValue, v, t.String())
	}
}
