// Package audit provides SQLite-backed persistence for workflow results.
// Every decided claim is stored as one immutable row so a decision can be
// reproduced and reviewed after the fact.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/clearlane/claimflow/pkg/models"
)

// ErrNotFound indicates no stored result matches the query.
var ErrNotFound = errors.New("workflow result not found")

// Store wraps an SQLite database holding workflow results.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (and if needed creates) the audit database at the given path.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(schemaResults)
	if err != nil {
		return fmt.Errorf("create workflow_results table: %w", err)
	}
	return nil
}

const schemaResults = `
CREATE TABLE IF NOT EXISTS workflow_results (
	id TEXT PRIMARY KEY,
	claim_id TEXT NOT NULL,
	status TEXT NOT NULL,
	reason TEXT NOT NULL,
	determining_agent TEXT,
	started_at DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL,
	payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_workflow_results_claim ON workflow_results(claim_id);
`

// Save persists one workflow result. Results are write-once: saving the same
// run ID twice is an error.
func (s *Store) Save(ctx context.Context, result *models.WorkflowResult) error {
	if result == nil {
		return fmt.Errorf("save: result is nil")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", result.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO workflow_results (id, claim_id, status, reason, determining_agent, started_at, duration_ms, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		result.ClaimID,
		string(result.Decision.Status),
		result.Decision.Reason,
		result.Decision.DeterminingAgent,
		result.StartedAt.UTC(),
		result.Duration.Milliseconds(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", result.ID, err)
	}
	return nil
}

// Get returns the stored result for a run ID.
func (s *Store) Get(ctx context.Context, id string) (*models.WorkflowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	row := s.conn.QueryRowContext(ctx, "SELECT payload FROM workflow_results WHERE id = ?", id)
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("query result %s: %w", id, err)
	}

	return decodeResult(payload)
}

// ListByClaim returns all stored results for a claim, oldest first.
func (s *Store) ListByClaim(ctx context.Context, claimID string) ([]*models.WorkflowResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx,
		"SELECT payload FROM workflow_results WHERE claim_id = ? ORDER BY started_at ASC", claimID)
	if err != nil {
		return nil, fmt.Errorf("query results for claim %s: %w", claimID, err)
	}
	defer rows.Close()

	var results []*models.WorkflowResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		result, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func decodeResult(payload string) (*models.WorkflowResult, error) {
	var result models.WorkflowResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decode stored result: %w", err)
	}
	return &result, nil
}
