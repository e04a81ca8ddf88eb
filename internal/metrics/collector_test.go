package relaymetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	relaymetrics "github.com/soraxas/goudprelay/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := relaymetrics.NewCollector(reg)

	if c.PairingsCreated == nil {
		t.Error("PairingsCreated is nil")
	}
	if c.PairingsEstablished == nil {
		t.Error("PairingsEstablished is nil")
	}
	if c.PairingsEvicted == nil {
		t.Error("PairingsEvicted is nil")
	}
	if c.PacketsForwarded == nil {
		t.Error("PacketsForwarded is nil")
	}
	if c.PacketsDropped == nil {
		t.Error("PacketsDropped is nil")
	}
	if c.AuthFailures == nil {
		t.Error("AuthFailures is nil")
	}

	// Gathering from the registry the metrics were registered on must
	// succeed; the gathered families themselves are not inspected.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	_ = families
}

func TestCollectorPairingLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := relaymetrics.NewCollector(reg)

	c.PairingCreated()
	c.PairingCreated()
	c.PairingEstablished()
	c.PairingEvicted("pairing_timeout")
	c.PairingEvicted("pairing_timeout")
	c.PairingEvicted("inactivity_timeout")

	if val := counterValue(t, c.PairingsCreated); val != 2 {
		t.Errorf("PairingsCreated = %v, want 2", val)
	}
	if val := counterValue(t, c.PairingsEstablished); val != 1 {
		t.Errorf("PairingsEstablished = %v, want 1", val)
	}
	if val := vecCounterValue(t, c.PairingsEvicted, "pairing_timeout"); val != 2 {
		t.Errorf("PairingsEvicted(pairing_timeout) = %v, want 2", val)
	}
	if val := vecCounterValue(t, c.PairingsEvicted, "inactivity_timeout"); val != 1 {
		t.Errorf("PairingsEvicted(inactivity_timeout) = %v, want 1", val)
	}
}

func TestCollectorPacketCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := relaymetrics.NewCollector(reg)

	c.PacketForwarded(100)
	c.PacketForwarded(50)
	c.PacketDropped("auth")
	c.PacketDropped("third_peer")
	c.PacketDropped("auth")

	if val := counterValue(t, c.PacketsForwarded); val != 2 {
		t.Errorf("PacketsForwarded = %v, want 2", val)
	}
	if val := counterValue(t, c.PacketsForwardedBytes); val != 150 {
		t.Errorf("PacketsForwardedBytes = %v, want 150", val)
	}
	if val := vecCounterValue(t, c.PacketsDropped, "auth"); val != 2 {
		t.Errorf("PacketsDropped(auth) = %v, want 2", val)
	}
	if val := vecCounterValue(t, c.PacketsDropped, "third_peer"); val != 1 {
		t.Errorf("PacketsDropped(third_peer) = %v, want 1", val)
	}
}

func TestCollectorAuthFailures(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := relaymetrics.NewCollector(reg)

	c.AuthFailure()
	c.AuthFailure()

	if val := counterValue(t, c.AuthFailures); val != 2 {
		t.Errorf("AuthFailures = %v, want 2", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func vecCounterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
