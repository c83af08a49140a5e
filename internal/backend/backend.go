// Package backend defines the reasoning backend adapter: the uniform
// interface any provider must implement to drive an agent one step at a
// time, plus the shared conversation and verdict-parsing machinery.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/clearlane/claimflow/pkg/models"
)

var (
	// ErrMalformedOutput indicates the backend concluded but its output did
	// not match the required verdict shape.
	ErrMalformedOutput = errors.New("malformed backend output")
	// ErrProviderTimeout indicates a provider call timed out or was cancelled.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrProviderError indicates a provider-side failure.
	ErrProviderError = errors.New("provider error")
)

// Backend is the provider-agnostic reasoning interface. One RunStep call
// advances the agent's reasoning by one step: the backend either requests a
// tool invocation or concludes with a final verdict. Implementations are
// stateless and shared across concurrent claims; all per-agent state lives in
// the Conversation.
//
// RunStep records the assistant's turn on the conversation itself; the caller
// records tool results before the next step.
type Backend interface {
	RunStep(ctx context.Context, spec models.AgentSpec, conv *Conversation) (StepResult, error)
}

// StepKind discriminates the two possible step outcomes.
type StepKind int

const (
	// StepToolCall means the backend wants data from a tool.
	StepToolCall StepKind = iota
	// StepFinalVerdict means the backend reached a decision.
	StepFinalVerdict
)

// StepResult is the outcome of one reasoning step: exactly one of ToolCall or
// Verdict is set, per Kind.
type StepResult struct {
	Kind StepKind
	// ToolCall is the requested invocation when Kind is StepToolCall.
	ToolCall *models.ToolCall
	// CallID is the provider's correlation id for the tool call.
	CallID string
	// Verdict is the parsed decision when Kind is StepFinalVerdict. Its
	// Trace is empty; the runner attaches the accumulated trace.
	Verdict *models.AgentVerdict
}

// TurnKind identifies a conversation turn.
type TurnKind int

const (
	// TurnUserText is the initial task message.
	TurnUserText TurnKind = iota
	// TurnAssistantText is reasoning text from the backend.
	TurnAssistantText
	// TurnToolCall is a tool request from the backend.
	TurnToolCall
	// TurnToolResult is a tool result supplied back to the backend.
	TurnToolResult
)

// Turn is one entry in a conversation.
type Turn struct {
	Kind   TurnKind
	Text   string
	CallID string
	Call   *models.ToolCall
	Result *models.ToolResult
}

// Conversation is the ordered reasoning history for one agent invocation.
// Each runner owns exactly one conversation per attempt; conversations are
// never shared between runners.
type Conversation struct {
	turns []Turn
}

// NewConversation starts a conversation with the initial user task message.
func NewConversation(userPrompt string) *Conversation {
	return &Conversation{turns: []Turn{{Kind: TurnUserText, Text: userPrompt}}}
}

// AddAssistantText appends reasoning text from the backend.
func (c *Conversation) AddAssistantText(text string) {
	if text == "" {
		return
	}
	c.turns = append(c.turns, Turn{Kind: TurnAssistantText, Text: text})
}

// AddToolCall appends a tool request from the backend.
func (c *Conversation) AddToolCall(callID string, call models.ToolCall) {
	c.turns = append(c.turns, Turn{Kind: TurnToolCall, CallID: callID, Call: &call})
}

// AddToolResult appends a tool result for a prior call.
func (c *Conversation) AddToolResult(callID string, result models.ToolResult) {
	c.turns = append(c.turns, Turn{Kind: TurnToolResult, CallID: callID, Result: &result})
}

// Turns returns the ordered turn history.
func (c *Conversation) Turns() []Turn {
	return c.turns
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// verdictEnvelope is the JSON shape every agent must conclude with.
type verdictEnvelope struct {
	Agent       string `json:"agent"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	Explanation string `json:"explanation"`
}

// ParseVerdict extracts and validates the verdict JSON object from the
// backend's final text. Any shape violation is ErrMalformedOutput: the agent
// failed to conclude, the process did not crash.
func ParseVerdict(text string) (*models.AgentVerdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformedOutput)
	}

	var env verdictEnvelope
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	status := models.Status(env.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", ErrMalformedOutput, env.Status)
	}
	if env.Reason == "" {
		return nil, fmt.Errorf("%w: missing reason", ErrMalformedOutput)
	}

	return &models.AgentVerdict{
		Agent:       env.Agent,
		Status:      status,
		Reason:      env.Reason,
		Explanation: env.Explanation,
	}, nil
}

// Kind maps a backend or tool error to the failure taxonomy.
func Kind(err error) models.ErrorKind {
	switch {
	case errors.Is(err, ErrMalformedOutput):
		return models.ErrorKindMalformedOutput
	case errors.Is(err, ErrProviderTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return models.ErrorKindProviderTimeout
	default:
		return models.ErrorKindProviderError
	}
}
