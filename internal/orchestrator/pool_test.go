package orchestrator

import (
	"testing"
	"time"

	"github.com/clearlane/claimflow/pkg/models"
)

func TestPoolProcessesSubmissions(t *testing.T) {
	e := newTestEngine(t, newScriptedBackend(), EngineConfig{})
	p := NewPool(e)
	defer p.Stop()

	ids := make(map[string]bool)
	for i := 0; i < 3; i++ {
		claim := engineClaim()
		claim.ClaimID = claim.ClaimID + string(rune('a'+i))
		ids[p.Submit(claim)] = true
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 distinct submission IDs, got %d", len(ids))
	}

	for i := 0; i < 3; i++ {
		select {
		case res := <-p.Results():
			if res.Err != nil {
				t.Errorf("submission %s failed: %v", res.SubmissionID, res.Err)
				continue
			}
			if !ids[res.SubmissionID] {
				t.Errorf("unknown submission ID %s", res.SubmissionID)
			}
			if res.Result.Decision.Status != models.StatusApproved {
				t.Errorf("unexpected decision: %s", res.Result.Decision.Status)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for pool results")
		}
	}
}

func TestPoolReportsErrors(t *testing.T) {
	e := newTestEngine(t, newScriptedBackend(), EngineConfig{})
	p := NewPool(e)
	defer p.Stop()

	p.Submit(&models.Claim{}) // fails claim validation

	select {
	case res := <-p.Results():
		if res.Err == nil {
			t.Error("expected a precondition error in the pool result")
		}
		if res.Result != nil {
			t.Error("failed submission must not carry a result")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pool result")
	}
}

func TestPoolCountDrainsToZero(t *testing.T) {
	e := newTestEngine(t, newScriptedBackend(), EngineConfig{})
	p := NewPool(e)
	defer p.Stop()

	p.Submit(engineClaim())
	<-p.Results()

	deadline := time.Now().Add(2 * time.Second)
	for p.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pool count stuck at %d", p.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
