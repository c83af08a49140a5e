package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clearlane/claimflow/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit", "claimflow.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(id, claimID string, status models.Status) *models.WorkflowResult {
	return &models.WorkflowResult{
		ID:      id,
		ClaimID: claimID,
		Decision: models.FinalDecision{
			Status:           status,
			Reason:           "driver_excluded",
			DeterminingAgent: "DriverVerifier",
		},
		Outcomes: []models.AgentOutcome{
			{
				Agent:   "DriverVerifier",
				Verdict: &models.AgentVerdict{Agent: "DriverVerifier", Status: status, Reason: "driver_excluded"},
			},
		},
		StartedAt: time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC),
		Duration:  4200 * time.Millisecond,
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := sampleResult("run-0001", "CLM-2024-100", models.StatusRejected)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := s.Get(ctx, "run-0001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ClaimID != want.ClaimID {
		t.Errorf("claim ID: got %q, want %q", got.ClaimID, want.ClaimID)
	}
	if got.Decision.Status != models.StatusRejected {
		t.Errorf("status: got %s", got.Decision.Status)
	}
	if got.Decision.DeterminingAgent != "DriverVerifier" {
		t.Errorf("determining agent: got %q", got.Decision.DeterminingAgent)
	}
	if len(got.Outcomes) != 1 || got.Outcomes[0].Verdict == nil {
		t.Errorf("outcomes not round-tripped: %+v", got.Outcomes)
	}
}

func TestStoreGetNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSaveIsWriteOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := sampleResult("run-0002", "CLM-2024-101", models.StatusApproved)
	if err := s.Save(ctx, result); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := s.Save(ctx, result); err == nil {
		t.Fatal("expected error on duplicate run ID")
	}
}

func TestStoreSaveNil(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil result")
	}
}

func TestStoreListByClaim(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := sampleResult("run-a", "CLM-2024-200", models.StatusEscalate)
	first.StartedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	second := sampleResult("run-b", "CLM-2024-200", models.StatusApproved)
	second.StartedAt = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	other := sampleResult("run-c", "CLM-2024-999", models.StatusApproved)

	// Insert out of chronological order.
	for _, r := range []*models.WorkflowResult{second, other, first} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("save %s failed: %v", r.ID, err)
		}
	}

	results, err := s.ListByClaim(ctx, "CLM-2024-200")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "run-a" || results[1].ID != "run-b" {
		t.Errorf("results not ordered oldest first: %s, %s", results[0].ID, results[1].ID)
	}
}

func TestStoreListByClaimEmpty(t *testing.T) {
	s := openTestStore(t)
	results, err := s.ListByClaim(context.Background(), "CLM-NONE")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
