// Package relaymetrics implements relay.Reporter with Prometheus metrics.
package relaymetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/soraxas/goudprelay/internal/relay"
)

const (
	namespace = "udprelay"
	subsystem = "relay"
)

// Label name for the pairing/packet-drop reason.
const labelReason = "reason"

// Collector implements relay.Reporter with Prometheus metrics, tracking
// pairing lifecycle, the data-plane forward/drop volume, and authentication
// failures.
type Collector struct {
	// PairingsCreated counts HALF_OPEN entries inserted.
	PairingsCreated prometheus.Counter

	// PairingsEstablished counts HALF_OPEN -> ESTABLISHED transitions.
	PairingsEstablished prometheus.Counter

	// PairingsEvicted counts entries removed, labeled by reason
	// ("pairing_timeout", "inactivity_timeout", "reverse_index_conflict").
	PairingsEvicted *prometheus.CounterVec

	// PacketsForwarded counts data-plane payloads relayed between pair
	// members.
	PacketsForwarded prometheus.Counter

	// PacketsForwardedBytes counts total bytes relayed.
	PacketsForwardedBytes prometheus.Counter

	// PacketsDropped counts datagrams discarded, labeled by reason
	// ("unparseable", "auth", "third_peer", "secret_too_short").
	PacketsDropped *prometheus.CounterVec

	// AuthFailures counts pairing requests rejected for a mismatched PSK.
	AuthFailures prometheus.Counter
}

var _ relay.Reporter = (*Collector)(nil)

// NewCollector creates a Collector with all relay metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
//
// All metrics carry the "udprelay_relay_" prefix (namespace_subsystem) to
// avoid collisions with other exporters sharing the same registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PairingsCreated,
		c.PairingsEstablished,
		c.PairingsEvicted,
		c.PacketsForwarded,
		c.PacketsForwardedBytes,
		c.PacketsDropped,
		c.AuthFailures,
	)

	return c
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	return &Collector{
		PairingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pairings_created_total",
			Help:      "Total HALF_OPEN pairing entries created.",
		}),

		PairingsEstablished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pairings_established_total",
			Help:      "Total pairing entries that reached ESTABLISHED.",
		}),

		PairingsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pairings_evicted_total",
			Help:      "Total pairing entries removed, by reason.",
		}, []string{labelReason}),

		PacketsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_forwarded_total",
			Help:      "Total data-plane payloads relayed between pair members.",
		}),

		PacketsForwardedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_forwarded_bytes_total",
			Help:      "Total bytes relayed between pair members.",
		}),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total datagrams discarded, by reason.",
		}, []string{labelReason}),

		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "auth_failures_total",
			Help:      "Total pairing requests rejected for a mismatched PSK.",
		}),
	}
}

// PairingCreated implements relay.Reporter.
func (c *Collector) PairingCreated() {
	c.PairingsCreated.Inc()
}

// PairingEstablished implements relay.Reporter.
func (c *Collector) PairingEstablished() {
	c.PairingsEstablished.Inc()
}

// PairingEvicted implements relay.Reporter.
func (c *Collector) PairingEvicted(reason string) {
	c.PairingsEvicted.WithLabelValues(reason).Inc()
}

// PacketForwarded implements relay.Reporter.
func (c *Collector) PacketForwarded(bytes int) {
	c.PacketsForwarded.Inc()
	c.PacketsForwardedBytes.Add(float64(bytes))
}

// PacketDropped implements relay.Reporter.
func (c *Collector) PacketDropped(reason string) {
	c.PacketsDropped.WithLabelValues(reason).Inc()
}

// AuthFailure implements relay.Reporter.
func (c *Collector) AuthFailure() {
	c.AuthFailures.Inc()
}
