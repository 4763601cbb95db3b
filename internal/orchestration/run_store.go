package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmatters/agent-builder/pages-builder/internal/models"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// RunStore is the run ledger.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	UpdateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, task string, limit int) ([]*models.Run, error)
}

// PgxRunStore keeps the ledger in the rounds table.
type PgxRunStore struct {
	pool *pgxpool.Pool
}

// NewPgxRunStore creates a ledger backed by pool.
func NewPgxRunStore(pool *pgxpool.Pool) *PgxRunStore {
	return &PgxRunStore{pool: pool}
}

const runColumns = `id::text, task, round, email, nonce, contract, status, stage, error,
	files, flagged, fallback, repo_url, pages_url, commit_sha, notify_status,
	created_at, updated_at, finished_at`

// CreateRun inserts run and fills its timestamps.
func (s *PgxRunStore) CreateRun(ctx context.Context, run *models.Run) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO rounds (id, task, round, email, nonce, contract, status, stage, files, flagged, fallback)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		run.ID, run.Task, run.Round, run.Email, run.Nonce, run.Contract,
		string(run.Status), run.Stage, nonNil(run.Files), nonNil(run.Flagged), run.Fallback,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRun writes every mutable column of run.
func (s *PgxRunStore) UpdateRun(ctx context.Context, run *models.Run) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE rounds
		SET status = $2, stage = $3, error = $4, files = $5, flagged = $6, fallback = $7,
		    repo_url = $8, pages_url = $9, commit_sha = $10, notify_status = $11,
		    finished_at = $12, updated_at = NOW()
		WHERE id = $1::uuid
		RETURNING updated_at`,
		run.ID, string(run.Status), run.Stage, run.Error, nonNil(run.Files), nonNil(run.Flagged),
		run.Fallback, run.RepoURL, run.PagesURL, run.CommitSHA, run.NotifyStatus, run.FinishedAt,
	).Scan(&run.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRunNotFound
		}
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *PgxRunStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM rounds WHERE id::text = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, optionally for one task
func (s *PgxRunStore) ListRuns(ctx context.Context, task string, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM rounds
		WHERE $1 = '' OR task = $1
		ORDER BY created_at DESC
		LIMIT $2`, task, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	var status string
	err := row.Scan(
		&run.ID, &run.Task, &run.Round, &run.Email, &run.Nonce, &run.Contract,
		&status, &run.Stage, &run.Error, &run.Files, &run.Flagged, &run.Fallback,
		&run.RepoURL, &run.PagesURL, &run.CommitSHA, &run.NotifyStatus,
		&run.CreatedAt, &run.UpdatedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	return &run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DefaultMemoryRunLimit is how many runs NewMemoryRunStore retains.
const DefaultMemoryRunLimit = 1000

// MemoryRunStore keeps the ledger in process memory. Used when no database
// is configured. Once more than limit runs are held, the oldest finished
// runs are dropped; running rounds are never evicted.
type MemoryRunStore struct {
	mu    sync.RWMutex
	runs  map[string]models.Run
	order []string
	limit int
}

// NewMemoryRunStore creates an empty in-memory ledger holding at most
// DefaultMemoryRunLimit finished runs.
func NewMemoryRunStore() *MemoryRunStore {
	return NewMemoryRunStoreWithLimit(DefaultMemoryRunLimit)
}

// NewMemoryRunStoreWithLimit creates an empty in-memory ledger with the given
// retention. A limit below one means unbounded.
func NewMemoryRunStoreWithLimit(limit int) *MemoryRunStore {
	return &MemoryRunStore{runs: map[string]models.Run{}, limit: limit}
}

func (s *MemoryRunStore) CreateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	run.CreatedAt, run.UpdatedAt = now, now
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = copyRun(run)
	s.evict()
	return nil
}

// evict drops the oldest finished runs until the ledger fits its limit.
// Caller holds mu.
func (s *MemoryRunStore) evict() {
	if s.limit < 1 || len(s.order) <= s.limit {
		return
	}
	excess := len(s.order) - s.limit
	kept := s.order[:0]
	for _, id := range s.order {
		if excess > 0 && s.runs[id].Status.Terminal() {
			delete(s.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func (s *MemoryRunStore) UpdateRun(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	run.UpdatedAt = time.Now().UTC()
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryRunStore) GetRun(_ context.Context, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := copyRun(&run)
	return &out, nil
}

func (s *MemoryRunStore) ListRuns(_ context.Context, task string, limit int) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*models.Run
	for i := len(s.order) - 1; i >= 0; i-- {
		run := s.runs[s.order[i]]
		if task != "" && run.Task != task {
			continue
		}
		out := copyRun(&run)
		runs = append(runs, &out)
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func copyRun(run *models.Run) models.Run {
	out := *run
	out.Files = append([]string(nil), run.Files...)
	out.Flagged = append([]string(nil), run.Flagged...)
	return out
}
