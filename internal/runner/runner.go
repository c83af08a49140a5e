// Package runner drives a single agent's reasoning/tool loop to a terminal
// verdict or failure. Each runner owns its conversation and tool trace and
// shares no mutable state with sibling runners for the same claim.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/clearlane/claimflow/internal/backend"
	"github.com/clearlane/claimflow/internal/tools"
	"github.com/clearlane/claimflow/pkg/models"
)

// ErrStepLimit indicates the backend never produced a final verdict within
// the step budget.
var ErrStepLimit = errors.New("step limit exceeded")

// Policy bounds a runner's reasoning and retry behavior.
type Policy struct {
	// MaxSteps is the reasoning-step budget per invocation.
	MaxSteps int
	// MaxAttempts is the retry budget for transient provider errors.
	MaxAttempts int
	// MalformedAttempts is the smaller retry budget for malformed output,
	// since the fault may be structural rather than transient.
	MalformedAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
}

// DefaultPolicy returns the policy used when configuration does not override it.
func DefaultPolicy() Policy {
	return Policy{
		MaxSteps:          10,
		MaxAttempts:       3,
		MalformedAttempts: 2,
		BackoffBase:       500 * time.Millisecond,
	}
}

// Runner executes one agent against one claim scope.
type Runner struct {
	backend backend.Backend
	scope   *tools.Scope
	policy  Policy
}

// New creates a runner bound to a backend and a scoped tool view.
func New(b backend.Backend, scope *tools.Scope, policy Policy) *Runner {
	if policy.MaxSteps <= 0 {
		policy.MaxSteps = DefaultPolicy().MaxSteps
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	if policy.MalformedAttempts <= 0 {
		policy.MalformedAttempts = DefaultPolicy().MalformedAttempts
	}
	return &Runner{backend: b, scope: scope, policy: policy}
}

// Run drives the agent to a terminal outcome. Backend-class faults never
// escape as errors: after the retry budget is exhausted the outcome carries
// an AgentFailure. The returned error is non-nil only for configuration
// faults (unknown or unpermitted tools), which must surface to the caller
// instead of being downgraded to an escalation.
func (r *Runner) Run(ctx context.Context, spec models.AgentSpec) (models.AgentOutcome, error) {
	maxSteps := spec.MaxSteps
	if maxSteps <= 0 {
		maxSteps = r.policy.MaxSteps
	}

	var lastErr error
	attempts := 0
	for attempt := 1; ; attempt++ {
		attempts = attempt

		verdict, trace, err := r.attempt(ctx, spec, maxSteps)
		if err == nil {
			verdict.Agent = spec.Name
			verdict.Trace = trace
			return models.AgentOutcome{Agent: spec.Name, Verdict: verdict}, nil
		}

		if errors.Is(err, tools.ErrUnknownTool) || errors.Is(err, tools.ErrNotPermitted) {
			log.Printf("[runner] agent %s: fatal tool error: %v", spec.Name, err)
			return models.AgentOutcome{
				Agent:   spec.Name,
				Failure: &models.AgentFailure{Agent: spec.Name, ErrorKind: toolErrorKind(err), Attempts: attempt, LastError: err.Error()},
			}, err
		}

		if errors.Is(err, ErrStepLimit) {
			log.Printf("[runner] agent %s: step limit (%d) exceeded", spec.Name, maxSteps)
			return models.AgentOutcome{
				Agent:   spec.Name,
				Failure: &models.AgentFailure{Agent: spec.Name, ErrorKind: models.ErrorKindStepLimitExceeded, Attempts: attempt, LastError: err.Error()},
			}, nil
		}

		lastErr = err
		budget := r.policy.MaxAttempts
		if backend.Kind(err) == models.ErrorKindMalformedOutput {
			budget = r.policy.MalformedAttempts
		}
		if attempt >= budget || ctx.Err() != nil {
			break
		}

		delay := r.policy.BackoffBase << (attempt - 1)
		log.Printf("[runner] agent %s: attempt %d failed (%v), retrying in %s", spec.Name, attempt, err, delay)
		if !sleep(ctx, delay) {
			break
		}
	}

	kind := backend.Kind(lastErr)
	log.Printf("[runner] agent %s: giving up after %d attempts (%s)", spec.Name, attempts, kind)
	return models.AgentOutcome{
		Agent: spec.Name,
		Failure: &models.AgentFailure{
			Agent:     spec.Name,
			ErrorKind: kind,
			Attempts:  attempts,
			LastError: lastErr.Error(),
		},
	}, nil
}

// attempt runs one full reasoning/tool loop with a fresh conversation.
func (r *Runner) attempt(ctx context.Context, spec models.AgentSpec, maxSteps int) (*models.AgentVerdict, []models.TraceEntry, error) {
	conv := backend.NewConversation(taskPrompt(spec.Name))
	var trace []models.TraceEntry

	for step := 1; step <= maxSteps; step++ {
		res, err := r.backend.RunStep(ctx, spec, conv)
		if err != nil {
			return nil, trace, err
		}

		switch res.Kind {
		case backend.StepFinalVerdict:
			return res.Verdict, trace, nil

		case backend.StepToolCall:
			call := *res.ToolCall

			result, err := r.scope.Invoke(ctx, call.Name, call.Arguments)
			if err != nil {
				if errors.Is(err, tools.ErrUnknownTool) || errors.Is(err, tools.ErrNotPermitted) {
					// Recorded as an errored entry so the refusal is
					// auditable; never as a successful result.
					trace = append(trace, models.TraceEntry{Call: call, Result: models.ToolResult{Err: err.Error()}})
					return nil, trace, err
				}
				return nil, trace, err
			}

			trace = append(trace, models.TraceEntry{Call: call, Result: result})
			conv.AddToolResult(res.CallID, result)

		default:
			return nil, trace, fmt.Errorf("%w: unexpected step kind %d", backend.ErrProviderError, res.Kind)
		}
	}

	return nil, trace, fmt.Errorf("%w: no verdict after %d steps", ErrStepLimit, maxSteps)
}

func toolErrorKind(err error) models.ErrorKind {
	if errors.Is(err, tools.ErrNotPermitted) {
		return models.ErrorKindToolNotPermitted
	}
	return models.ErrorKindUnknownTool
}

// sleep waits for the delay unless the context ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// taskPrompt is the fixed user message that kicks off each agent's analysis.
// The role-specific rules live in the agent's opaque role text, not here.
func taskPrompt(agentName string) string {
	return fmt.Sprintf(`Analyze the claim data using your available tools and make a decision.

You must:
1. Use the appropriate tools to gather relevant information
2. Apply your domain-specific rules and logic
3. Return a final decision in this EXACT JSON format:
{
  "agent": %q,
  "status": "APPROVED | REJECTED | PARTIAL | ESCALATE",
  "reason": "concise_slug_snake_case",
  "explanation": "1-2 sentence human-readable rationale"
}

Make sure to return only the JSON object, no other text.`, agentName)
}
