// Package orchestrator coordinates the concurrent evaluation of one claim:
// fan-out of the first-stage agents, the completion barrier, the decider
// stage, and the deterministic aggregation that produces the final decision.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearlane/claimflow/internal/backend"
	"github.com/clearlane/claimflow/internal/metrics"
	"github.com/clearlane/claimflow/internal/runner"
	"github.com/clearlane/claimflow/internal/tools"
	"github.com/clearlane/claimflow/pkg/models"
)

// DeciderToolName is the single tool the decider agent may use: read access
// to the collected first-stage outcomes.
const DeciderToolName = "get_agent_responses"

// ResultStore persists workflow results for audit.
type ResultStore interface {
	Save(ctx context.Context, result *models.WorkflowResult) error
}

// EngineConfig contains the collaborators and settings for an Engine.
type EngineConfig struct {
	// Registry is the claim tool registry shared by all claims.
	Registry *tools.Registry
	// Backends maps provider names to reasoning backends.
	Backends *backend.Factory
	// Agents is the first-stage agent set, in configuration order. That
	// order decides aggregation ties, so it must be stable.
	Agents []models.AgentSpec
	// Decider is the aggregation-stage agent spec. Its declared tool set is
	// replaced at run time with the outcome-reading tool.
	Decider models.AgentSpec
	// Policy bounds each agent invocation.
	Policy runner.Policy
	// MaxInFlight caps concurrently running first-stage agents. Zero means
	// no cap beyond the agent count.
	MaxInFlight int
	// ClaimTimeout bounds one claim's first-stage processing. Zero disables.
	ClaimTimeout time.Duration
	// Store, when set, receives every WorkflowResult for audit.
	Store ResultStore
	// Metrics, when set, records claim and agent outcome metrics.
	Metrics *metrics.Recorder
	// Emitter, when set, receives progress events.
	Emitter *EventEmitter
}

// Engine evaluates claims. It holds no per-claim state: any number of claims
// may be processed concurrently through one engine.
type Engine struct {
	cfg EngineConfig
}

// NewEngine validates the configuration and creates an engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("engine: tool registry is required")
	}
	if cfg.Backends == nil {
		return nil, fmt.Errorf("engine: backend factory is required")
	}
	if len(cfg.Agents) == 0 {
		return nil, fmt.Errorf("engine: at least one agent is required")
	}
	if cfg.Decider.Name == "" {
		return nil, fmt.Errorf("engine: decider spec is required")
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for _, spec := range cfg.Agents {
		if spec.Name == "" {
			return nil, fmt.Errorf("engine: agent with empty name")
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("engine: duplicate agent %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return &Engine{cfg: cfg}, nil
}

// ProcessClaim runs the full two-stage workflow for one claim and returns
// the workflow result. The claim snapshot is shared read-only by every
// agent; the caller must not mutate it while processing runs.
//
// Agent-level backend failures never abort the claim: they surface in the
// outcome set as failures and escalate through aggregation. A non-nil error
// is returned only for precondition violations and tool-configuration
// faults, which indicate a broken deployment rather than a failed claim.
func (e *Engine) ProcessClaim(ctx context.Context, claim *models.Claim) (*models.WorkflowResult, error) {
	if err := claim.Validate(); err != nil {
		return nil, fmt.Errorf("claim precondition: %w", err)
	}

	runID := uuid.New().String()[:8]
	started := time.Now()
	log.Printf("[orchestrator] run %s: processing claim %s with %d agents", runID, claim.ClaimID, len(e.cfg.Agents))

	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.cfg.ClaimTimeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, e.cfg.ClaimTimeout)
	}
	defer cancel()

	outcomes, fatalErr := e.runFirstStage(stageCtx, claim)
	if fatalErr != nil {
		return nil, fmt.Errorf("run %s: %w", runID, fatalErr)
	}

	// Barrier passed: exactly one outcome per configured agent, in
	// configuration order. The decider never sees a partial set.
	narrative := e.runDecider(ctx, outcomes)
	decision := Aggregate(outcomes)

	if narrative.Verdict != nil && narrative.Verdict.Status != decision.Status {
		log.Printf("[orchestrator] run %s: decider narrative (%s) disagrees with aggregator (%s); aggregator wins",
			runID, narrative.Verdict.Status, decision.Status)
	}

	result := &models.WorkflowResult{
		ID:               runID,
		ClaimID:          claim.ClaimID,
		Decision:         decision,
		DeciderNarrative: narrative,
		Outcomes:         outcomes,
		StartedAt:        started,
		Duration:         time.Since(started),
	}

	e.cfg.Metrics.RecordResult(result)
	e.emit(Event{Type: EventClaimDecided, ClaimID: claim.ClaimID, Status: decision.Status, Time: time.Now()})

	if e.cfg.Store != nil {
		// Audit persistence is best effort: a storage fault must not turn
		// a decided claim into an error.
		if err := e.cfg.Store.Save(context.WithoutCancel(ctx), result); err != nil {
			log.Printf("[orchestrator] run %s: audit save failed: %v", runID, err)
		}
	}

	log.Printf("[orchestrator] run %s: claim %s decided %s (%s) in %s",
		runID, claim.ClaimID, decision.Status, decision.Reason, result.Duration)
	return result, nil
}

// runFirstStage fans out every configured agent against the claim and waits
// for all of them. The returned slice has one entry per agent, in
// configuration order. The error is non-nil only for configuration faults;
// the barrier still completes before it is reported.
func (e *Engine) runFirstStage(ctx context.Context, claim *models.Claim) ([]models.AgentOutcome, error) {
	n := len(e.cfg.Agents)
	maxInFlight := e.cfg.MaxInFlight
	if maxInFlight <= 0 || maxInFlight > n {
		maxInFlight = n
	}

	sem := make(chan struct{}, maxInFlight)
	outcomes := make([]models.AgentOutcome, n)
	fatals := make([]error, n)

	var wg sync.WaitGroup
	for i, spec := range e.cfg.Agents {
		wg.Add(1)
		go func(i int, spec models.AgentSpec) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				// Cancelled while queued: recorded, never dropped.
				outcomes[i] = cancelledOutcome(spec.Name, ctx.Err())
				return
			}

			e.emit(Event{Type: EventAgentStarted, ClaimID: claim.ClaimID, Agent: spec.Name, Time: time.Now()})

			outcome := e.runAgent(ctx, spec, claim, &fatals[i])
			outcomes[i] = outcome
			e.cfg.Metrics.RecordAgent(outcome)
			e.emit(Event{
				Type:    EventAgentFinished,
				ClaimID: claim.ClaimID,
				Agent:   spec.Name,
				Status:  outcomeStatus(outcome),
				Failed:  outcome.Failed(),
				Time:    time.Now(),
			})
		}(i, spec)
	}
	wg.Wait()

	return outcomes, errors.Join(fatals...)
}

// runAgent executes one first-stage agent. Configuration faults are written
// to fatal; everything else lands in the outcome.
func (e *Engine) runAgent(ctx context.Context, spec models.AgentSpec, claim *models.Claim, fatal *error) models.AgentOutcome {
	b, err := e.cfg.Backends.Backend(spec.Provider)
	if err != nil {
		*fatal = fmt.Errorf("agent %s: %w", spec.Name, err)
		return models.AgentOutcome{
			Agent: spec.Name,
			Failure: &models.AgentFailure{
				Agent:     spec.Name,
				ErrorKind: models.ErrorKindProviderError,
				LastError: err.Error(),
			},
		}
	}

	scope := tools.NewScope(e.cfg.Registry, claim, spec.ToolNames())
	outcome, err := runner.New(b, scope, e.cfg.Policy).Run(ctx, spec)
	if err != nil {
		*fatal = fmt.Errorf("agent %s: %w", spec.Name, err)
	}
	return outcome
}

// runDecider executes the aggregation-stage agent over the collected
// outcomes. Its result is narrative only: a failed or malformed decider
// shows up in the workflow result but never changes the decision, which the
// deterministic aggregator computes independently.
func (e *Engine) runDecider(ctx context.Context, outcomes []models.AgentOutcome) *models.AgentOutcome {
	spec := e.cfg.Decider

	payload, err := json.MarshalIndent(verdictView(outcomes), "", "  ")
	if err != nil {
		out := failedDecider(spec.Name, fmt.Errorf("encode outcomes: %w", err))
		return &out
	}

	reg := tools.New()
	// The decider's only tool: read access to the full outcome list.
	_ = reg.Register(tools.Tool{
		Desc: models.ToolDescriptor{
			Name:        DeciderToolName,
			Description: "Get all agent responses for final decision making.",
		},
		Handler: func(context.Context, *models.Claim, map[string]any) (string, error) {
			return "Current agent responses:\n" + string(payload), nil
		},
	})
	spec.Tools = []models.ToolDescriptor{{Name: DeciderToolName, Description: "Get all agent responses for final decision making."}}

	b, err := e.cfg.Backends.Backend(spec.Provider)
	if err != nil {
		out := failedDecider(spec.Name, err)
		return &out
	}

	scope := tools.NewScope(reg, nil, []string{DeciderToolName})
	outcome, err := runner.New(b, scope, e.cfg.Policy).Run(ctx, spec)
	if err != nil {
		log.Printf("[orchestrator] decider %s: %v", spec.Name, err)
	}
	return &outcome
}

// verdictView maps outcomes to the verdict-shaped records the decider reads,
// with failures already translated to escalations.
func verdictView(outcomes []models.AgentOutcome) []models.AgentVerdict {
	view := make([]models.AgentVerdict, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Verdict != nil {
			v := *o.Verdict
			v.Trace = nil
			view = append(view, v)
			continue
		}
		var lastErr string
		if o.Failure != nil {
			lastErr = o.Failure.LastError
		}
		view = append(view, models.AgentVerdict{
			Agent:       o.Agent,
			Status:      models.StatusEscalate,
			Reason:      agentFailedReason(o.Agent),
			Explanation: fmt.Sprintf("Agent execution failed: %s", lastErr),
		})
	}
	return view
}

func cancelledOutcome(agent string, err error) models.AgentOutcome {
	return models.AgentOutcome{
		Agent: agent,
		Failure: &models.AgentFailure{
			Agent:     agent,
			ErrorKind: models.ErrorKindProviderTimeout,
			LastError: fmt.Sprintf("cancelled before start: %v", err),
		},
	}
}

func failedDecider(name string, err error) models.AgentOutcome {
	return models.AgentOutcome{
		Agent: name,
		Failure: &models.AgentFailure{
			Agent:     name,
			ErrorKind: models.ErrorKindProviderError,
			Attempts:  1,
			LastError: err.Error(),
		},
	}
}

func outcomeStatus(o models.AgentOutcome) models.Status {
	if o.Verdict != nil {
		return o.Verdict.Status
	}
	return models.StatusEscalate
}

func (e *Engine) emit(event Event) {
	if e.cfg.Emitter != nil {
		e.cfg.Emitter.Emit(event)
	}
}
