package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearlane/claimflow/pkg/models"
)

// counterValue gathers the registry and returns the counter with the given
// name and label values, or -1 if absent.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder
	// Must not panic.
	r.RecordResult(&models.WorkflowResult{})
	r.RecordAgent(models.AgentOutcome{})
}

func TestRecordResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordResult(&models.WorkflowResult{
		Decision: models.FinalDecision{Status: models.StatusRejected},
		Duration: 3 * time.Second,
	})
	r.RecordResult(&models.WorkflowResult{
		Decision: models.FinalDecision{Status: models.StatusRejected},
	})
	r.RecordResult(nil)

	got := counterValue(t, reg, "claimflow_claims_decided_total", map[string]string{"status": "REJECTED"})
	if got != 2 {
		t.Errorf("expected 2 rejected claims recorded, got %v", got)
	}
}

func TestRecordAgent(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordAgent(models.AgentOutcome{
		Agent:   "PolicyValidator",
		Verdict: &models.AgentVerdict{Status: models.StatusApproved},
	})
	r.RecordAgent(models.AgentOutcome{
		Agent:   "FraudDetector",
		Failure: &models.AgentFailure{ErrorKind: models.ErrorKindProviderTimeout},
	})

	if got := counterValue(t, reg, "claimflow_agent_outcomes_total", map[string]string{"agent": "PolicyValidator", "result": "APPROVED"}); got != 1 {
		t.Errorf("expected 1 approved outcome, got %v", got)
	}
	if got := counterValue(t, reg, "claimflow_agent_outcomes_total", map[string]string{"agent": "FraudDetector", "result": "failed"}); got != 1 {
		t.Errorf("expected 1 failed outcome, got %v", got)
	}
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	// MustRegister panics on duplicate collector names.
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
