package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomadproto/nomad/metrics"
)

func TestNewCollectorRegistersEveryMetric(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.ActiveSessions == nil || c.HandshakesStarted == nil || c.HandshakesCompleted == nil ||
		c.HandshakesFailed == nil || c.UnknownProtocolVersion == nil || c.SilentDrops == nil ||
		c.Retransmits == nil || c.RekeysCompleted == nil || c.Migrations == nil ||
		c.ClosedSessions == nil || c.RTT == nil {
		t.Fatalf("NewCollector returned a collector with a nil metric")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestCollectorIncrementsUpdateFamilies(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncHandshakeStarted()
	c.IncHandshakeCompleted("initiator")
	c.IncSilentDrop("replay")
	c.IncSilentDrop("replay")
	c.IncUnknownProtocolVersion()
	c.ObserveRTT(0.05)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	found := map[string]float64{}
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				found[fam.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				found[fam.GetName()] += m.GetGauge().GetValue()
			}
		}
	}

	if found["nomad_session_handshakes_started_total"] != 1 {
		t.Errorf("handshakes_started_total = %v, want 1", found["nomad_session_handshakes_started_total"])
	}
	if found["nomad_session_silent_drops_total"] != 2 {
		t.Errorf("silent_drops_total = %v, want 2", found["nomad_session_silent_drops_total"])
	}
	if found["nomad_unknown_protocol_version_total"] != 1 {
		t.Errorf("unknown_protocol_version_total = %v, want 1", found["nomad_unknown_protocol_version_total"])
	}
}

func TestNilCollectorMethodsAreNoOps(t *testing.T) {
	t.Parallel()

	var c *metrics.Collector
	c.IncHandshakeStarted()
	c.IncHandshakeCompleted("initiator")
	c.IncHandshakeFailed()
	c.IncUnknownProtocolVersion()
	c.IncSilentDrop("auth_failure")
	c.IncRetransmit()
	c.IncRekeyCompleted()
	c.IncMigration()
	c.IncClosed("initiator", "Closed")
	c.ObserveRTT(0.01)
}
