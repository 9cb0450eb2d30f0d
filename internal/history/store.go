// Package history archives runs and periodic snapshots in SQLite.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"dark-forest/internal/sim"
)

// Run is one seeded run. A reset or a params change starts a new one.
type Run struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Seed       uint32     `db:"seed" json:"seed"`
	Params     sim.Params `db:"-" json:"params"`
	ParamsJSON string     `db:"params_json" json:"-"`
	StartedAt  int64      `db:"started_at" json:"startedAt"`
	Samples    int        `db:"samples" json:"samples"`
}

// Sample is a snapshot recorded during a run
type Sample struct {
	RunID      uuid.UUID `db:"run_id" json:"run"`
	Step       uint64    `db:"step" json:"step"`
	Time       float64   `db:"sim_time" json:"time"`
	Radius     float64   `db:"radius" json:"radius"`
	Alive      int       `db:"alive" json:"alive"`
	TotalCivs  int       `db:"total_civs" json:"totalCivs"`
	Stars      int       `db:"stars" json:"stars"`
	Reveals    uint64    `db:"reveals" json:"reveals"`
	TotalKills uint64    `db:"total_kills" json:"totalKills"`
	RecordedAt int64     `db:"recorded_at" json:"recordedAt"`
}

// Store wraps a SQLite connection
type Store struct {
	conn *sqlx.DB
}

// Open opens or creates the archive at path
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// SQLite allows one writer
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS samples (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		sim_time REAL NOT NULL,
		radius REAL NOT NULL,
		alive INTEGER NOT NULL,
		total_civs INTEGER NOT NULL,
		stars INTEGER NOT NULL,
		reveals INTEGER NOT NULL,
		total_kills INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// StartRun inserts a run row and returns its id
func (s *Store) StartRun(ctx context.Context, seed uint32, params sim.Params) (uuid.UUID, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal params: %w", err)
	}

	id := uuid.New()
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO runs (id, seed, params_json, started_at) VALUES (?, ?, ?, ?)`,
		id.String(), seed, string(raw), time.Now().UnixMilli())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Record stores one snapshot for a run. Recording the same step twice
// overwrites the earlier sample.
func (s *Store) Record(ctx context.Context, runID uuid.UUID, snap sim.Snapshot) error {
	_, err := s.conn.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO samples
			(run_id, step, sim_time, radius, alive, total_civs, stars, reveals, total_kills, recorded_at)
		VALUES
			(:run_id, :step, :sim_time, :radius, :alive, :total_civs, :stars, :reveals, :total_kills, :recorded_at)`,
		Sample{
			RunID:      runID,
			Step:       snap.Step,
			Time:       snap.Time,
			Radius:     snap.Radius,
			Alive:      snap.Alive,
			TotalCivs:  snap.TotalCivs,
			Stars:      snap.Stars,
			Reveals:    snap.RevealsB + snap.RevealsS + snap.RevealsR,
			TotalKills: snap.TotalKills,
			RecordedAt: time.Now().UnixMilli(),
		})
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// Runs lists the most recent runs first
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	runs := []Run{}
	err := s.conn.SelectContext(ctx, &runs, `
		SELECT r.id, r.seed, r.params_json, r.started_at,
			(SELECT COUNT(*) FROM samples WHERE run_id = r.id) AS samples
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	for i := range runs {
		if err := json.Unmarshal([]byte(runs[i].ParamsJSON), &runs[i].Params); err != nil {
			return nil, fmt.Errorf("decode params of run %s: %w", runs[i].ID, err)
		}
	}
	return runs, nil
}

// Samples returns up to limit samples of a run in step order
func (s *Store) Samples(ctx context.Context, runID uuid.UUID, limit int) ([]Sample, error) {
	samples := []Sample{}
	err := s.conn.SelectContext(ctx, &samples, `
		SELECT run_id, step, sim_time, radius, alive, total_civs, stars, reveals, total_kills, recorded_at
		FROM samples
		WHERE run_id = ?
		ORDER BY step
		LIMIT ?`, runID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("select samples: %w", err)
	}
	return samples, nil
}
