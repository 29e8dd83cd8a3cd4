// Package metrics defines the Prometheus series the reliability engine
// emits. Unlike a single package-level promauto registration (appropriate
// for a single-instance-per-process server), these are constructed per
// Socket via a caller-supplied or private registry, so that two sockets
// in one process never collide on metric registration —
// the same per-instance discipline spec.md demands for counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds one socket's observable series.
type Recorder struct {
	TotalTransmissions prometheus.Counter
	Retransmissions    prometheus.Counter
	USendDepth         prometheus.Gauge
	RRecvDepth         prometheus.Gauge
	FramesDropped      prometheus.Counter
	MalformedFrames    prometheus.Counter
	AcksUnmatched      prometheus.Counter
	DedupHits          prometheus.Counter
}

// New builds a Recorder registered against reg. If reg is nil, a private
// prometheus.NewRegistry() is used so construction never fails and never
// pollutes the process-wide default registry unless the caller opts in by
// passing prometheus.DefaultRegisterer explicitly.
func New(reg prometheus.Registerer, socketID string) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	labels := prometheus.Labels{"socket": socketID}

	return &Recorder{
		TotalTransmissions: f.NewCounter(prometheus.CounterOpts{
			Name:        "rudp_total_transmissions_total",
			Help:        "Total successful outbound DATA frames (initial sends plus retransmits).",
			ConstLabels: labels,
		}),
		Retransmissions: f.NewCounter(prometheus.CounterOpts{
			Name:        "rudp_retransmissions_total",
			Help:        "Total retransmit attempts that succeeded.",
			ConstLabels: labels,
		}),
		USendDepth: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rudp_usend_depth",
			Help:        "Current occupied slot count in the unacknowledged-send table.",
			ConstLabels: labels,
		}),
		RRecvDepth: f.NewGauge(prometheus.GaugeOpts{
			Name:        "rudp_rrecv_depth",
			Help:        "Current entry count in the received-ready table.",
			ConstLabels: labels,
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name:        "rudp_frames_dropped_total",
			Help:        "Total frames discarded by the loss-simulation hook.",
			ConstLabels: labels,
		}),
		MalformedFrames: f.NewCounter(prometheus.CounterOpts{
			Name:        "rudp_malformed_frames_total",
			Help:        "Total frames that failed to decode.",
			ConstLabels: labels,
		}),
		AcksUnmatched: f.NewCounter(prometheus.CounterOpts{
			Name:        "rudp_acks_unmatched_total",
			Help:        "Total ACKs that matched no USend entry.",
			ConstLabels: labels,
		}),
		DedupHits: f.NewCounter(prometheus.CounterOpts{
			Name:        "rudp_dedup_hits_total",
			Help:        "Total receives suppressed by the optional dedup cache.",
			ConstLabels: labels,
		}),
	}
}
