package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/agentindexer/internal/uriqueue"
	"github.com/R3E-Network/agentindexer/internal/verify"
)

func TestMustRegisterWithNilComponents(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New()
	r.MustRegister(reg, (*verify.Worker)(nil), (*uriqueue.Queue)(nil))

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather failed: %v", err)
	}
}

func TestEventsIngestedCounterIncrements(t *testing.T) {
	r := New()
	r.EventsIngested.WithLabelValues("AgentRegisteredInRegistry").Inc()

	reg := prometheus.NewRegistry()
	reg.MustRegister(r.EventsIngested)
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	if len(families) != 1 || len(families[0].Metric) != 1 {
		t.Fatalf("expected one metric family with one sample, got %+v", families)
	}
}
