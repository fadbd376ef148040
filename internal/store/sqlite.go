package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the database file name inside the store directory.
const DBFile = "dtsm.db"

// SQLiteRunStore implements RunStore using SQLite for persistence.
// Snapshot matrices are stored as little-endian float64 BLOBs.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (or creates) the database at dir/dtsm.db.
func NewSQLiteRunStore(dir string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteRunStore) Path() string {
	return s.dbPath
}

// SaveRun inserts the run and all of its snapshots in one transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if err := run.CheckSnapshots(); err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, run.ID).Scan(&exists); err != nil {
		return "", fmt.Errorf("failed to check run %s: %w", run.ID, err)
	}
	if exists > 0 {
		return "", fmt.Errorf("run %s: %w", run.ID, ErrRunExists)
	}

	var spec sql.NullString
	if len(run.Spec) > 0 {
		spec = sql.NullString{String: string(run.Spec), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, name, created_at, spec, xmin, xmax, m, n, tau)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.CreatedAt.Format(time.RFC3339Nano), spec,
		run.XMin, run.XMax, run.M, run.N, run.Tau)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for _, snap := range run.Snapshots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (run_id, idx, time, steps, data) VALUES (?, ?, ?, ?, ?)`,
			run.ID, snap.Index, snap.Time, snap.Steps, encodeFloats(snap.Data))
		if err != nil {
			return "", fmt.Errorf("failed to insert snapshot %d: %w", snap.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.ID, nil
}

// GetRun loads a run and its snapshots ordered by index.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		run       Run
		createdAt string
		spec      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, spec, xmin, xmax, m, n, tau FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Name, &createdAt, &spec, &run.XMin, &run.XMax, &run.M, &run.N, &run.Tau)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("run %s has invalid created_at %q: %w", id, createdAt, err)
	}
	if spec.Valid {
		run.Spec = []byte(spec.String)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, time, steps, data FROM snapshots WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			snap Snapshot
			blob []byte
		)
		if err := rows.Scan(&snap.Index, &snap.Time, &snap.Steps, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Data, err = decodeFloats(blob)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d of %s: %w", snap.Index, id, err)
		}
		run.Snapshots = append(run.Snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &run, nil
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.created_at, r.m, r.n, COALESCE(GROUP_CONCAT(s.time, ','), '')
		FROM runs r LEFT JOIN snapshots s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]RunSummary, 0)
	for rows.Next() {
		var (
			sum       RunSummary
			createdAt string
			times     string
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &createdAt, &sum.M, &sum.N, &times); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		sum.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("run %s has invalid created_at %q: %w", sum.ID, createdAt, err)
		}
		sum.Times = parseTimes(times)
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteRun removes a run; snapshots cascade.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func encodeFloats(vs []float64) []byte {
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(buf))
	}
	vs := make([]float64, len(buf)/8)
	for i := range vs {
		vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return vs, nil
}

// parseTimes reads the GROUP_CONCAT of snapshot times back, sorted.
func parseTimes(s string) []float64 {
	if s == "" {
		return []float64{}
	}
	parts := strings.Split(s, ",")
	times := make([]float64, 0, len(parts))
	for _, p := range parts {
		var v float64
		if _, err := fmt.Sscan(p, &v); err == nil {
			times = append(times, v)
		}
	}
	sort.Float64s(times)
	return times
}
