package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobsProcessed.WithLabelValues("process-bill-payment", "success").Inc()
	m.RollbacksExhausted.Inc()

	if got := testutil.ToFloat64(m.JobsProcessed.WithLabelValues("process-bill-payment", "success")); got != 1 {
		t.Fatalf("jobs processed: want 1, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	if len(families) < 2 {
		t.Fatalf("expected registered families, got %d", len(families))
	}
}

func TestNew_NilRegistry(t *testing.T) {
	t.Parallel()

	m := New(nil)
	m.ProviderCalls.WithLabelValues("WATER", "failure").Inc()

	if got := testutil.ToFloat64(m.ProviderCalls); got != 1 {
		t.Fatalf("provider calls: want 1, got %v", got)
	}
}
