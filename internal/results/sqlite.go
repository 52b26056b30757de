package results

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS performance_results (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at          DATETIME DEFAULT CURRENT_TIMESTAMP,
	method               TEXT NOT NULL,
	collisions           INTEGER NOT NULL,
	collisions_per_frame REAL NOT NULL,
	duration_ms          INTEGER NOT NULL,
	avg_frame_time       REAL NOT NULL,
	max_frame_time       REAL NOT NULL,
	avg_fps              REAL NOT NULL,
	total_frames         INTEGER NOT NULL,
	entities_spawned     INTEGER NOT NULL,
	max_batch_size       INTEGER NOT NULL DEFAULT 0,
	scale                REAL NOT NULL DEFAULT 0,
	failed_frames        INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_performance_results_method ON performance_results(method);
`

// Store keeps benchmark results in SQLite for comparison across runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the results database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Insert records one run.
func (s *Store) Insert(r PerformanceResult) error {
	_, err := s.db.Exec(`INSERT INTO performance_results
		(method, collisions, collisions_per_frame, duration_ms, avg_frame_time, max_frame_time,
		 avg_fps, total_frames, entities_spawned, max_batch_size, scale, failed_frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Method, r.Collisions, r.CollisionsPerFrame, r.DurationMs, r.AvgFrameTime, r.MaxFrameTime,
		r.AvgFPS, r.TotalFrames, r.EntitiesSpawned, r.MaxBatchSize, r.Scale, r.FailedFrames)
	return err
}

// List returns recorded runs in insertion order. An empty method lists all.
func (s *Store) List(method string) ([]PerformanceResult, error) {
	rows, err := s.db.Query(`SELECT method, collisions, collisions_per_frame, duration_ms,
		avg_frame_time, max_frame_time, avg_fps, total_frames, entities_spawned,
		max_batch_size, scale, failed_frames
		FROM performance_results
		WHERE ? = '' OR method = ?
		ORDER BY id`, method, method)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PerformanceResult
	for rows.Next() {
		var r PerformanceResult
		if err := rows.Scan(&r.Method, &r.Collisions, &r.CollisionsPerFrame, &r.DurationMs,
			&r.AvgFrameTime, &r.MaxFrameTime, &r.AvgFPS, &r.TotalFrames, &r.EntitiesSpawned,
			&r.MaxBatchSize, &r.Scale, &r.FailedFrames); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Best returns the run with the lowest average frame time per method.
func (s *Store) Best() (map[string]PerformanceResult, error) {
	all, err := s.List("")
	if err != nil {
		return nil, err
	}
	best := make(map[string]PerformanceResult)
	for _, r := range all {
		if cur, ok := best[r.Method]; !ok || r.AvgFrameTime < cur.AvgFrameTime {
			best[r.Method] = r
		}
	}
	return best, nil
}
