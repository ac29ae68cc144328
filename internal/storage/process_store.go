// Package storage persists process state snapshots, so a run suspended
// on a question or killed mid-flight can be listed and resumed later.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

// ProcessStore keeps serialized process states in SQLite. It shares the
// database handle with the ledger connector, so one import database file
// carries both the ledger and its in-flight runs.
type ProcessStore struct {
	db *sql.DB
}

// ProcessInfo is one row of the process listing.
type ProcessInfo struct {
	UpdatedAt time.Time
	ProcessID string
	Stage     model.Stage
	Error     string
}

// NewProcessStore prepares the process table on the given database.
func NewProcessStore(ctx context.Context, db *sql.DB) (*ProcessStore, error) {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS processes (
		process_id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		error TEXT,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create process table: %w", err)
	}
	return &ProcessStore{db: db}, nil
}

// SaveState upserts the full serialized state of a run.
func (s *ProcessStore) SaveState(ctx context.Context, state *model.ProcessState) error {
	data, err := state.Serialize()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO processes (process_id, stage, error, state, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(process_id) DO UPDATE SET
			stage = excluded.stage, error = excluded.error,
			state = excluded.state, updated_at = excluded.updated_at`,
		state.ProcessID, string(state.Stage), state.Error, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save process state: %w", err)
	}
	return nil
}

// LoadState restores a run by its id.
func (s *ProcessStore) LoadState(ctx context.Context, processID string) (*model.ProcessState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM processes WHERE process_id = ?`, processID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", common.ErrProcessNotFound, processID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load process state: %w", err)
	}
	return model.DeserializeState([]byte(data))
}

// ListProcesses returns every stored run, most recently updated first.
func (s *ProcessStore) ListProcesses(ctx context.Context) ([]ProcessInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT process_id, stage, COALESCE(error, ''), updated_at FROM processes ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []ProcessInfo
	for rows.Next() {
		var info ProcessInfo
		var stage string
		if err := rows.Scan(&info.ProcessID, &stage, &info.Error, &info.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan process row: %w", err)
		}
		info.Stage = model.Stage(stage)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate processes: %w", err)
	}
	return infos, nil
}

// DeleteProcess removes a stored run.
func (s *ProcessStore) DeleteProcess(ctx context.Context, processID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processes WHERE process_id = ?`, processID)
	if err != nil {
		return fmt.Errorf("failed to delete process: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted processes: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", common.ErrProcessNotFound, processID)
	}
	return nil
}
