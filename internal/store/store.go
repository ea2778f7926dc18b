// Package store persists per-example feature vectors in SQLite so a
// classifier can be re-fit without judging the evidence again.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/fabula/internal/model"
)

// ErrRunNotFound is returned when a run ID does not exist in the store
var ErrRunNotFound = errors.New("run not found")

// Run kinds
const (
	KindTrain = "train"
	KindInfer = "infer"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	judge       TEXT,
	embedder    TEXT,
	created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS features (
	run_id              TEXT NOT NULL,
	position            INTEGER NOT NULL,
	example_id          TEXT NOT NULL,
	book                TEXT NOT NULL,
	max_score           REAL NOT NULL,
	mean_score          REAL NOT NULL,
	contradiction_count INTEGER NOT NULL,
	label               TEXT,
	has_label           INTEGER NOT NULL DEFAULT 0,
	degenerate          INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// Run describes one stored feature-extraction run
type Run struct {
	ID        string
	Kind      string
	Judge     string // Judge key, "provider/model"
	Embedder  string
	CreatedAt time.Time
}

// Row is one example's stored features
type Row struct {
	Example    model.Example
	Features   model.FeatureVector
	Degenerate bool
}

// Store manages runs and their feature rows in SQLite
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records a run and all of its rows in one transaction and returns
// the new run ID. Rows keep their slice order.
func (s *Store) SaveRun(kind, judgeKey, embedderName string, rows []Row) (Run, error) {
	run := Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Judge:     judgeKey,
		Embedder:  embedderName,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Run{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO runs (run_id, kind, judge, embedder, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, run.Judge, run.Embedder, run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO features (run_id, position, example_id, book, max_score, mean_score,
		 contradiction_count, label, has_label, degenerate)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return Run{}, fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range rows {
		_, err := stmt.Exec(
			run.ID, i, r.Example.ID, r.Example.Book,
			r.Features.MaxScore, r.Features.MeanScore, r.Features.ContradictionCount,
			r.Example.Label, boolToInt(r.Example.HasLabel), boolToInt(r.Degenerate),
		)
		if err != nil {
			return Run{}, fmt.Errorf("insert features for %s: %w", r.Example.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

// GetRun returns run metadata by ID
func (s *Store) GetRun(runID string) (Run, error) {
	return s.scanRun(s.db.QueryRow(
		`SELECT run_id, kind, judge, embedder, created_at FROM runs WHERE run_id = ?`, runID,
	))
}

// LatestRun returns the most recent run of the given kind
func (s *Store) LatestRun(kind string) (Run, error) {
	return s.scanRun(s.db.QueryRow(
		`SELECT run_id, kind, judge, embedder, created_at FROM runs
		 WHERE kind = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, kind,
	))
}

// ListRuns returns all runs, newest first
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, kind, judge, embedder, created_at FROM runs ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LoadRows returns a run's rows in their original order
func (s *Store) LoadRows(runID string) ([]Row, error) {
	if _, err := s.GetRun(runID); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT example_id, book, max_score, mean_score, contradiction_count, label, has_label, degenerate
		 FROM features WHERE run_id = ? ORDER BY position`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var (
			r                    Row
			label                sql.NullString
			hasLabel, degenerate int
		)
		if err := rows.Scan(
			&r.Example.ID, &r.Example.Book,
			&r.Features.MaxScore, &r.Features.MeanScore, &r.Features.ContradictionCount,
			&label, &hasLabel, &degenerate,
		); err != nil {
			return nil, fmt.Errorf("scan features: %w", err)
		}
		r.Example.Label = label.String
		r.Example.HasLabel = hasLabel == 1
		r.Degenerate = degenerate == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRun(row scanner) (Run, error) {
	var (
		run                Run
		judgeKey, embedder sql.NullString
		createdAt          string
	)
	if err := row.Scan(&run.ID, &run.Kind, &judgeKey, &embedder, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Judge = judgeKey.String
	run.Embedder = embedder.String

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse created_at: %w", err)
	}
	run.CreatedAt = t
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
