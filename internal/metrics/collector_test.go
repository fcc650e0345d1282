package dot1xmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	dot1xmetrics "github.com/dantte-lp/gobfd/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	if c.Sessions == nil {
		t.Error("Sessions is nil")
	}
	if c.StateTransitions == nil {
		t.Error("StateTransitions is nil")
	}
	if c.AuthOutcomes == nil {
		t.Error("AuthOutcomes is nil")
	}
	if c.RadiusRetransmits == nil {
		t.Error("RadiusRetransmits is nil")
	}
	if c.IDExhaustions == nil {
		t.Error("IDExhaustions is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestRegisterUnregisterSession(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.RegisterSession("port1")
	if got := gaugeValue(t, c.Sessions, "port1"); got != 1 {
		t.Errorf("after RegisterSession: sessions gauge = %v, want 1", got)
	}

	c.RegisterSession("port2")
	if got := gaugeValue(t, c.Sessions, "port2"); got != 1 {
		t.Errorf("port2 gauge = %v, want 1", got)
	}

	c.UnregisterSession("port1")
	if got := gaugeValue(t, c.Sessions, "port1"); got != 0 {
		t.Errorf("after UnregisterSession: port1 gauge = %v, want 0", got)
	}
	if got := gaugeValue(t, c.Sessions, "port2"); got != 1 {
		t.Errorf("port2 gauge = %v, want 1 (should be unaffected)", got)
	}
}

func TestSyncSessions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.RegisterSession("port1")
	c.RegisterSession("port1")

	c.SyncSessions(map[string]int{"port1": 1, "port2": 3})

	if got := gaugeValue(t, c.Sessions, "port1"); got != 1 {
		t.Errorf("after SyncSessions: port1 gauge = %v, want 1", got)
	}
	if got := gaugeValue(t, c.Sessions, "port2"); got != 3 {
		t.Errorf("after SyncSessions: port2 gauge = %v, want 3", got)
	}

	c.SyncSessions(map[string]int{"port2": 1})
	if got := gaugeValue(t, c.Sessions, "port2"); got != 1 {
		t.Errorf("after second SyncSessions: port2 gauge = %v, want 1", got)
	}
}

func TestStateTransition(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.RecordStateTransition("port1", "IDLE", "RECEIVED")
	if got := counterValue(t, c.StateTransitions, "port1", "IDLE", "RECEIVED"); got != 1 {
		t.Errorf("StateTransitions(IDLE->RECEIVED) = %v, want 1", got)
	}

	c.RecordStateTransition("port1", "IDLE", "RECEIVED")
	if got := counterValue(t, c.StateTransitions, "port1", "IDLE", "RECEIVED"); got != 2 {
		t.Errorf("StateTransitions(IDLE->RECEIVED) = %v, want 2", got)
	}
}

func TestOutcomes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.RecordOutcome("port1", "success")
	c.RecordOutcome("port1", "failure")
	c.RecordOutcome("port1", "failure")

	if got := counterValue(t, c.AuthOutcomes, "port1", "success"); got != 1 {
		t.Errorf("AuthOutcomes(success) = %v, want 1", got)
	}
	if got := counterValue(t, c.AuthOutcomes, "port1", "failure"); got != 2 {
		t.Errorf("AuthOutcomes(failure) = %v, want 2", got)
	}
}

func TestRadiusRetransmitsAndIDExhaustion(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := dot1xmetrics.NewCollector(reg)

	c.IncRadiusRetransmit("port1")
	c.IncRadiusRetransmit("port1")
	if got := counterValue(t, c.RadiusRetransmits, "port1"); got != 2 {
		t.Errorf("RadiusRetransmits = %v, want 2", got)
	}

	c.IncIDExhausted()
	m := &dto.Metric{}
	if err := c.IDExhaustions.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("IDExhaustions = %v, want 1", got)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
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
