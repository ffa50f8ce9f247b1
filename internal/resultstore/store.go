package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loqalabs/codecbench/internal/config"
	"github.com/loqalabs/codecbench/internal/engine"
)

// RecordRow is one persisted decode attempt.
type RecordRow struct {
	ID           int64
	RunID        string
	GroupLength  int
	PayloadIndex int
	CaseIndex    int
	Noise        string
	Params       string
	Difficulty   string
	Original     string
	Decoded      string
	Similarity   float64
	Success      bool
	Error        string
	CreatedAt    time.Time
}

// GroupRow is the persisted aggregate of one completed group.
type GroupRow struct {
	RunID           string
	Length          int
	TotalTests      int
	SuccessfulTests int
	SuccessRate     float64
}

// Store archives runs in SQLite.
type Store struct {
	db    *sql.DB
	cfg   config.ResultStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config. Ephemeral mode keeps
// nothing and every method is a no-op.
func Open(ctx context.Context, cfg config.ResultStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "result-store"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("result store vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("result store prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    seed TEXT,
    case_count INTEGER,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    group_length INTEGER NOT NULL,
    payload_index INTEGER NOT NULL,
    case_index INTEGER NOT NULL,
    noise TEXT,
    params TEXT,
    difficulty TEXT,
    original TEXT,
    decoded TEXT,
    similarity REAL,
    success INTEGER NOT NULL,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_records_run_group ON records(run_id, group_length, payload_index, case_index);
CREATE TABLE IF NOT EXISTS group_results (
    run_id TEXT NOT NULL,
    length INTEGER NOT NULL,
    total_tests INTEGER NOT NULL,
    successful_tests INTEGER NOT NULL,
    success_rate REAL NOT NULL,
    detail BLOB,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY(run_id, length),
    FOREIGN KEY(run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a run row in the running state.
func (s *Store) BeginRun(ctx context.Context, runID string, seed uint64, caseCount int) error {
	if s.disabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, seed, case_count, status, created_at) VALUES(?, ?, ?, 'running', ?)
		 ON CONFLICT(run_id) DO NOTHING`,
		runID, fmt.Sprint(seed), caseCount, s.clock().UTC())
	return err
}

// FinishRun marks the run completed or interrupted.
func (s *Store) FinishRun(ctx context.Context, runID string, interrupted bool) error {
	if s.disabled() {
		return nil
	}
	status := "completed"
	if interrupted {
		status = "interrupted"
	}
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, s.clock().UTC(), runID)
	return err
}

// AppendRecord writes one decode attempt.
func (s *Store) AppendRecord(ctx context.Context, row RecordRow) error {
	if s.disabled() {
		return nil
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records(run_id, group_length, payload_index, case_index, noise, params, difficulty,
		                     original, decoded, similarity, success, error, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.GroupLength, row.PayloadIndex, row.CaseIndex, row.Noise, row.Params, row.Difficulty,
		row.Original, row.Decoded, row.Similarity, row.Success, row.Error, row.CreatedAt)
	return err
}

// CompleteGroup stores a group aggregate together with its JSON detail.
func (s *Store) CompleteGroup(ctx context.Context, runID string, g engine.GroupResult) error {
	if s.disabled() {
		return nil
	}
	detail, err := json.Marshal(g.Trials)
	if err != nil {
		return fmt.Errorf("marshal group detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO group_results(run_id, length, total_tests, successful_tests, success_rate, detail, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, length) DO UPDATE SET total_tests=excluded.total_tests,
		     successful_tests=excluded.successful_tests, success_rate=excluded.success_rate, detail=excluded.detail`,
		runID, g.Length, g.TotalTests, g.SuccessfulTests, g.SuccessRate, detail, s.clock().UTC())
	return err
}

// ListRecords returns up to limit records of a run in evaluation order.
func (s *Store) ListRecords(ctx context.Context, runID string, limit int) ([]RecordRow, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, group_length, payload_index, case_index, noise, params, difficulty,
		        original, decoded, similarity, success, error, created_at
		 FROM records WHERE run_id = ? ORDER BY id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		var created string
		if err := rows.Scan(&r.ID, &r.RunID, &r.GroupLength, &r.PayloadIndex, &r.CaseIndex, &r.Noise, &r.Params,
			&r.Difficulty, &r.Original, &r.Decoded, &r.Similarity, &r.Success, &r.Error, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTimestamp(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListGroups returns the completed groups of a run.
func (s *Store) ListGroups(ctx context.Context, runID string) ([]GroupRow, error) {
	if s.disabled() {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, length, total_tests, successful_tests, success_rate
		 FROM group_results WHERE run_id = ? ORDER BY created_at ASC, length ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var g GroupRow
		if err := rows.Scan(&g.RunID, &g.Length, &g.TotalTests, &g.SuccessfulTests, &g.SuccessRate); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RunStatus returns the stored status of a run.
func (s *Store) RunStatus(ctx context.Context, runID string) (string, error) {
	if s.disabled() {
		return "", nil
	}
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&status)
	return status, err
}

// Prune applies configured retention.
func (s *Store) Prune(ctx context.Context) (err error) {
	if s.disabled() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionMode == "session" {
		// session keeps only the newest run
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id NOT IN (
			SELECT run_id FROM runs ORDER BY created_at DESC LIMIT 1)`); err != nil {
			return err
		}
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxRuns > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id IN (
			SELECT run_id FROM runs ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxRuns); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
