package orchestrator

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/clearlane/claimflow/pkg/models"
)

// PoolResult carries one finished claim evaluation out of the pool.
type PoolResult struct {
	// SubmissionID identifies the Submit call that produced this result.
	SubmissionID string
	// Result is the workflow result, nil when Err is set.
	Result *models.WorkflowResult
	// Err is set for precondition or configuration failures.
	Err error
}

// Pool runs many claim evaluations concurrently through one engine. Claims
// share the stateless engine collaborators but nothing per-claim.
type Pool struct {
	engine *Engine

	// running tracks in-flight submissions by ID.
	running map[string]*models.Claim
	mu      sync.RWMutex

	results chan PoolResult

	// ctx and cancel for pool lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks in-flight claim evaluations
	wg sync.WaitGroup
}

// NewPool creates a pool around an engine.
func NewPool(engine *Engine) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		engine:  engine,
		running: make(map[string]*models.Claim),
		results: make(chan PoolResult, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit starts evaluating a claim and returns the submission ID. The
// result arrives on Results when the workflow completes.
func (p *Pool) Submit(claim *models.Claim) string {
	subID := uuid.New().String()[:8]

	p.mu.Lock()
	p.running[subID] = claim
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		result, err := p.engine.ProcessClaim(p.ctx, claim)
		if err != nil {
			log.Printf("[pool] submission %s failed: %v", subID, err)
		}

		p.mu.Lock()
		delete(p.running, subID)
		p.mu.Unlock()

		select {
		case p.results <- PoolResult{SubmissionID: subID, Result: result, Err: err}:
		case <-p.ctx.Done():
		}
	}()

	return subID
}

// Results returns the channel delivering finished evaluations.
func (p *Pool) Results() <-chan PoolResult {
	return p.results
}

// Stop cancels in-flight work and waits for it to finish.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	close(p.results)
}

// Count returns the number of in-flight submissions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.running)
}
