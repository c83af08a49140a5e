package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/clearlane/claimflow/pkg/models"
)

func TestParseVerdict(t *testing.T) {
	text := `{"agent": "PolicyValidator", "status": "APPROVED", "reason": "policy_active", "explanation": "Policy covers the incident date."}`

	v, err := ParseVerdict(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if v.Agent != "PolicyValidator" {
		t.Errorf("unexpected agent: %q", v.Agent)
	}
	if v.Status != models.StatusApproved {
		t.Errorf("unexpected status: %q", v.Status)
	}
	if v.Reason != "policy_active" {
		t.Errorf("unexpected reason: %q", v.Reason)
	}
}

func TestParseVerdictSurroundingText(t *testing.T) {
	// The verdict object is extracted between the first '{' and last '}',
	// so prose around it does not break parsing.
	text := "Based on my analysis:\n" +
		`{"agent": "FraudDetector", "status": "ESCALATE", "reason": "mileage_discrepancy", "explanation": "Odometer gap."}` +
		"\nLet me know if you need more."

	v, err := ParseVerdict(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if v.Status != models.StatusEscalate || v.Reason != "mileage_discrepancy" {
		t.Errorf("unexpected verdict: %+v", v)
	}
}

func TestParseVerdictMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no json at all", "I approve this claim."},
		{"unbalanced braces", "result: } {"},
		{"invalid json", `{"agent": "X", "status": }`},
		{"unknown status", `{"agent": "X", "status": "DENIED", "reason": "r"}`},
		{"lowercase status", `{"agent": "X", "status": "approved", "reason": "r"}`},
		{"missing reason", `{"agent": "X", "status": "APPROVED", "reason": ""}`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVerdict(tt.text)
			if !errors.Is(err, ErrMalformedOutput) {
				t.Errorf("expected ErrMalformedOutput, got %v", err)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want models.ErrorKind
	}{
		{fmt.Errorf("wrap: %w", ErrMalformedOutput), models.ErrorKindMalformedOutput},
		{fmt.Errorf("wrap: %w", ErrProviderTimeout), models.ErrorKindProviderTimeout},
		{context.DeadlineExceeded, models.ErrorKindProviderTimeout},
		{context.Canceled, models.ErrorKindProviderTimeout},
		{fmt.Errorf("wrap: %w", ErrProviderError), models.ErrorKindProviderError},
		{errors.New("anything else"), models.ErrorKindProviderError},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestConversationTurns(t *testing.T) {
	conv := NewConversation("analyze the claim")
	conv.AddAssistantText("checking the policy")
	conv.AddToolCall("call_1", models.ToolCall{Name: "get_policy_information"})
	conv.AddToolResult("call_1", models.ToolResult{Content: "{}"})

	turns := conv.Turns()
	if len(turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(turns))
	}

	wantKinds := []TurnKind{TurnUserText, TurnAssistantText, TurnToolCall, TurnToolResult}
	for i, kind := range wantKinds {
		if turns[i].Kind != kind {
			t.Errorf("turn %d: expected kind %d, got %d", i, kind, turns[i].Kind)
		}
	}

	if turns[2].CallID != "call_1" || turns[2].Call.Name != "get_policy_information" {
		t.Errorf("tool call turn not recorded: %+v", turns[2])
	}
	if turns[3].CallID != "call_1" || turns[3].Result.Content != "{}" {
		t.Errorf("tool result turn not recorded: %+v", turns[3])
	}
}

func TestConversationEmptyAssistantText(t *testing.T) {
	conv := NewConversation("task")
	conv.AddAssistantText("")
	if conv.Len() != 1 {
		t.Errorf("empty assistant text should not add a turn, len = %d", conv.Len())
	}
}
