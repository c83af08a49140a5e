package orchestrator

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/clearlane/claimflow/pkg/models"
)

func verdictOutcome(agent string, status models.Status, reason string) models.AgentOutcome {
	return models.AgentOutcome{
		Agent:   agent,
		Verdict: &models.AgentVerdict{Agent: agent, Status: status, Reason: reason, Explanation: reason},
	}
}

func failureOutcome(agent string, kind models.ErrorKind) models.AgentOutcome {
	return models.AgentOutcome{
		Agent:   agent,
		Failure: &models.AgentFailure{Agent: agent, ErrorKind: kind, Attempts: 3, LastError: "backend gave up"},
	}
}

func TestAggregateAllApproved(t *testing.T) {
	outcomes := []models.AgentOutcome{
		verdictOutcome("PolicyValidator", models.StatusApproved, "policy_active"),
		verdictOutcome("DriverVerifier", models.StatusApproved, "driver_listed"),
		verdictOutcome("FraudDetector", models.StatusApproved, "no_indicators"),
	}

	d := Aggregate(outcomes)
	if d.Status != models.StatusApproved {
		t.Fatalf("expected APPROVED, got %s", d.Status)
	}
	if d.Reason != ReasonAllApproved {
		t.Errorf("expected reason %q, got %q", ReasonAllApproved, d.Reason)
	}
	if d.DeterminingAgent != "" {
		t.Errorf("approval has no determining agent, got %q", d.DeterminingAgent)
	}
	if len(d.Contributing) != 0 {
		t.Errorf("approval has no contributing reasons, got %v", d.Contributing)
	}
}

func TestAggregatePriority(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []models.Status
		wantStatus models.Status
		wantAgent  string
	}{
		{
			"rejected beats everything",
			[]models.Status{models.StatusEscalate, models.StatusPartial, models.StatusRejected, models.StatusApproved},
			models.StatusRejected, "agent2",
		},
		{
			"escalate beats partial",
			[]models.Status{models.StatusApproved, models.StatusPartial, models.StatusEscalate},
			models.StatusEscalate, "agent2",
		},
		{
			"partial beats approved",
			[]models.Status{models.StatusApproved, models.StatusPartial, models.StatusApproved},
			models.StatusPartial, "agent1",
		},
		{
			"single rejection",
			[]models.Status{models.StatusApproved, models.StatusApproved, models.StatusRejected},
			models.StatusRejected, "agent2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := make([]models.AgentOutcome, len(tt.statuses))
			for i, s := range tt.statuses {
				agent := "agent" + string(rune('0'+i))
				outcomes[i] = verdictOutcome(agent, s, "reason_"+string(s))
			}
			d := Aggregate(outcomes)
			if d.Status != tt.wantStatus {
				t.Errorf("expected %s, got %s", tt.wantStatus, d.Status)
			}
			if d.DeterminingAgent != tt.wantAgent {
				t.Errorf("expected determining agent %s, got %s", tt.wantAgent, d.DeterminingAgent)
			}
		})
	}
}

func TestAggregateConfigOrderTieBreak(t *testing.T) {
	// Two rejections: the earlier agent in configuration order wins,
	// regardless of which finished first.
	outcomes := []models.AgentOutcome{
		verdictOutcome("PolicyValidator", models.StatusApproved, "policy_active"),
		verdictOutcome("DriverVerifier", models.StatusRejected, "driver_excluded"),
		verdictOutcome("FraudDetector", models.StatusRejected, "staged_accident"),
	}

	d := Aggregate(outcomes)
	if d.DeterminingAgent != "DriverVerifier" {
		t.Errorf("expected earliest rejecting agent to win, got %s", d.DeterminingAgent)
	}
	if d.Reason != "driver_excluded" {
		t.Errorf("unexpected reason: %s", d.Reason)
	}
}

func TestAggregateFailureEscalates(t *testing.T) {
	outcomes := []models.AgentOutcome{
		verdictOutcome("PolicyValidator", models.StatusApproved, "policy_active"),
		failureOutcome("FraudDetector", models.ErrorKindProviderTimeout),
	}

	d := Aggregate(outcomes)
	if d.Status != models.StatusEscalate {
		t.Fatalf("expected ESCALATE for failed agent, got %s", d.Status)
	}
	if d.Reason != "agent_failed:FraudDetector" {
		t.Errorf("unexpected reason: %s", d.Reason)
	}
	if d.DeterminingAgent != "FraudDetector" {
		t.Errorf("unexpected determining agent: %s", d.DeterminingAgent)
	}
}

func TestAggregateRejectionBeatsFailure(t *testing.T) {
	outcomes := []models.AgentOutcome{
		failureOutcome("PolicyValidator", models.ErrorKindProviderError),
		verdictOutcome("DriverVerifier", models.StatusRejected, "driver_excluded"),
	}

	d := Aggregate(outcomes)
	if d.Status != models.StatusRejected {
		t.Fatalf("rejection must outrank the escalation from a failure, got %s", d.Status)
	}
	if d.Reason != "driver_excluded" {
		t.Errorf("unexpected reason: %s", d.Reason)
	}
}

func TestAggregateContributingReasons(t *testing.T) {
	outcomes := []models.AgentOutcome{
		verdictOutcome("PolicyValidator", models.StatusApproved, "policy_active"),
		verdictOutcome("DocumentValidator", models.StatusPartial, "missing_photos"),
		failureOutcome("DriverVerifier", models.ErrorKindProviderTimeout),
		verdictOutcome("FraudDetector", models.StatusRejected, "staged_accident"),
	}

	d := Aggregate(outcomes)
	want := []string{"missing_photos", "agent_failed:DriverVerifier", "staged_accident"}
	if !reflect.DeepEqual(d.Contributing, want) {
		t.Errorf("contributing reasons:\n got %v\nwant %v", d.Contributing, want)
	}
}

func TestAggregateMissingOutcomeEscalates(t *testing.T) {
	// An outcome with neither verdict nor failure means a barrier bug; it
	// must never count as approval.
	outcomes := []models.AgentOutcome{
		verdictOutcome("PolicyValidator", models.StatusApproved, "policy_active"),
		{Agent: "DriverVerifier"},
	}

	d := Aggregate(outcomes)
	if d.Status != models.StatusEscalate {
		t.Fatalf("expected ESCALATE, got %s", d.Status)
	}
	if d.Reason != "agent_failed:DriverVerifier" {
		t.Errorf("unexpected reason: %s", d.Reason)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	outcomes := []models.AgentOutcome{
		verdictOutcome("A", models.StatusApproved, "a_ok"),
		verdictOutcome("B", models.StatusEscalate, "b_unclear"),
		verdictOutcome("C", models.StatusPartial, "c_limited"),
		failureOutcome("D", models.ErrorKindMalformedOutput),
		verdictOutcome("E", models.StatusEscalate, "e_unclear"),
	}

	first := Aggregate(outcomes)
	for i := 0; i < 20; i++ {
		if got := Aggregate(outcomes); !reflect.DeepEqual(got, first) {
			t.Fatalf("aggregation not deterministic: %+v vs %+v", got, first)
		}
	}
	if first.Status != models.StatusEscalate || first.DeterminingAgent != "B" {
		t.Errorf("unexpected decision: %+v", first)
	}
}

func TestAggregateIgnoresCompletionOrder(t *testing.T) {
	// The outcome slice is always in configuration order; shuffling and
	// restoring must not change anything, and a shuffled copy decides by
	// its own order only for ties within the same status.
	base := []models.AgentOutcome{
		verdictOutcome("A", models.StatusApproved, "a_ok"),
		verdictOutcome("B", models.StatusRejected, "b_bad"),
		verdictOutcome("C", models.StatusApproved, "c_ok"),
		verdictOutcome("D", models.StatusEscalate, "d_unclear"),
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := make([]models.AgentOutcome, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		d := Aggregate(shuffled)
		// The winning status and reason never depend on slice order when
		// there is a single agent at the winning priority.
		if d.Status != models.StatusRejected || d.Reason != "b_bad" {
			t.Fatalf("shuffle changed the decision: %+v", d)
		}
	}
}

func TestAggregateExplanationNamesAgent(t *testing.T) {
	outcomes := []models.AgentOutcome{
		verdictOutcome("VehicleDamageEvaluator", models.StatusPartial, "over_threshold"),
	}
	d := Aggregate(outcomes)
	if !strings.Contains(d.Explanation, "VehicleDamageEvaluator") {
		t.Errorf("explanation should name the determining agent: %q", d.Explanation)
	}
}
