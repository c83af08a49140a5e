package models

import (
	"fmt"
	"time"
)

// Status is an agent's terminal decision for a claim.
type Status string

const (
	// StatusApproved indicates the agent found no issue with the claim.
	StatusApproved Status = "APPROVED"
	// StatusRejected indicates the agent found a disqualifying issue.
	StatusRejected Status = "REJECTED"
	// StatusPartial indicates the claim is payable with limitations.
	StatusPartial Status = "PARTIAL"
	// StatusEscalate indicates the claim needs human review.
	StatusEscalate Status = "ESCALATE"
)

// Valid returns true if the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusPartial, StatusEscalate:
		return true
	default:
		return false
	}
}

// ErrorKind classifies why an agent could not reach a verdict.
type ErrorKind string

const (
	// ErrorKindUnknownTool means the agent requested a tool that does not exist.
	ErrorKindUnknownTool ErrorKind = "UnknownTool"
	// ErrorKindToolNotPermitted means the agent requested a tool outside its declared set.
	ErrorKindToolNotPermitted ErrorKind = "ToolNotPermitted"
	// ErrorKindMalformedOutput means the backend's final output did not match the verdict shape.
	ErrorKindMalformedOutput ErrorKind = "MalformedOutput"
	// ErrorKindProviderTimeout means a backend call timed out or was cancelled.
	ErrorKindProviderTimeout ErrorKind = "ProviderTimeout"
	// ErrorKindProviderError means the backend returned an error.
	ErrorKindProviderError ErrorKind = "ProviderError"
	// ErrorKindStepLimitExceeded means the agent never concluded within its step budget.
	ErrorKindStepLimitExceeded ErrorKind = "StepLimitExceeded"
)

// Fatal reports whether the kind is a configuration or programming error
// that must surface to the caller instead of being retried.
func (k ErrorKind) Fatal() bool {
	return k == ErrorKindUnknownTool || k == ErrorKindToolNotPermitted
}

// ToolCall is one tool invocation requested by an agent mid-reasoning.
type ToolCall struct {
	// Name is the registered tool name.
	Name string `json:"name"`
	// Arguments holds the parsed call arguments, if any.
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the outcome of one tool invocation.
// Exactly one of Content or Err is set.
type ToolResult struct {
	Content string `json:"content,omitempty"`
	Err     string `json:"error,omitempty"`
}

// IsError reports whether the invocation failed.
func (r ToolResult) IsError() bool {
	return r.Err != ""
}

// TraceEntry pairs a tool call with its result. Entries within one agent's
// trace are strictly ordered by invocation.
type TraceEntry struct {
	Call   ToolCall   `json:"call"`
	Result ToolResult `json:"result"`
}

// AgentVerdict is one agent's terminal decision, produced exactly once per
// agent per claim and immutable after creation.
type AgentVerdict struct {
	// Agent is the configured agent name, e.g. "DriverVerifier".
	Agent string `json:"agent"`
	// Status is the decision.
	Status Status `json:"status"`
	// Reason is a concise snake_case slug for the decision.
	Reason string `json:"reason"`
	// Explanation is a short human-readable rationale.
	Explanation string `json:"explanation"`
	// Trace is the ordered tool call/result history behind the verdict.
	Trace []TraceEntry `json:"tool_trace,omitempty"`
}

// AgentFailure records an agent that could not reach a verdict.
type AgentFailure struct {
	Agent     string    `json:"agent"`
	ErrorKind ErrorKind `json:"error_kind"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
}

// AgentOutcome is the terminal result for one agent: exactly one of Verdict
// or Failure is set.
type AgentOutcome struct {
	Agent   string        `json:"agent"`
	Verdict *AgentVerdict `json:"verdict,omitempty"`
	Failure *AgentFailure `json:"failure,omitempty"`
}

// Failed reports whether the agent ended in failure.
func (o AgentOutcome) Failed() bool {
	return o.Failure != nil
}

// FinalDecision is the aggregated outcome for one claim.
type FinalDecision struct {
	Status      Status `json:"status"`
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
	// DeterminingAgent is the agent whose verdict supplied the winning reason.
	DeterminingAgent string `json:"determining_agent"`
	// Contributing lists reason slugs from all non-approving agents, in
	// configuration order.
	Contributing []string `json:"contributing_reasons,omitempty"`
}

// WorkflowResult is the unit returned to callers and persisted for audit.
// It is created once, after every configured agent has a terminal outcome.
type WorkflowResult struct {
	// ID is the unique identifier for this evaluation run.
	ID string `json:"id"`
	// ClaimID identifies the evaluated claim.
	ClaimID string `json:"claim_id"`
	// Decision is the deterministic aggregated decision (system of record).
	Decision FinalDecision `json:"final_decision"`
	// DeciderNarrative is the decider agent's own outcome. It explains the
	// decision but never overrides it.
	DeciderNarrative *AgentOutcome `json:"decider_narrative,omitempty"`
	// Outcomes holds one entry per configured agent, in configuration order.
	Outcomes []AgentOutcome `json:"agent_outcomes"`
	// StartedAt is when claim processing began.
	StartedAt time.Time `json:"started_at"`
	// Duration is the wall-clock time from fan-out to decision.
	Duration time.Duration `json:"wall_clock_duration"`
}

// AgentSpec is the declarative description of one agent: its role text, the
// tool set it may use, and where its reasoning runs. The role text is opaque
// configuration, never interpreted by the engine.
type AgentSpec struct {
	// Name is the agent's configured name, e.g. "PolicyValidator".
	Name string `json:"name"`
	// Provider selects the reasoning backend, e.g. "anthropic".
	Provider string `json:"provider"`
	// Role is the resolved role instruction text.
	Role string `json:"role"`
	// Tools is the declared tool set with schemas; invocations outside it fail.
	Tools []ToolDescriptor `json:"tools"`
	// MaxSteps bounds the reasoning steps per invocation. Zero means the
	// engine default.
	MaxSteps int `json:"max_steps,omitempty"`
}

// ToolNames returns the declared allowlist in order.
func (s AgentSpec) ToolNames() []string {
	names := make([]string, 0, len(s.Tools))
	for _, d := range s.Tools {
		names = append(names, d.Name)
	}
	return names
}

// ToolDescriptor describes one tool for backend advertisement: its name,
// purpose, and argument schema.
type ToolDescriptor struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Args        []ToolArg `json:"args,omitempty"`
}

// ToolArg describes one tool argument.
type ToolArg struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// String returns a short description of the outcome for logging.
func (o AgentOutcome) String() string {
	if o.Failure != nil {
		return fmt.Sprintf("%s: failed (%s after %d attempts)", o.Agent, o.Failure.ErrorKind, o.Failure.Attempts)
	}
	if o.Verdict != nil {
		return fmt.Sprintf("%s: %s (%s)", o.Agent, o.Verdict.Status, o.Verdict.Reason)
	}
	return fmt.Sprintf("%s: (no outcome)", o.Agent)
}
