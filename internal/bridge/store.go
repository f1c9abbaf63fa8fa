package bridge

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tunegrab/tunegrab/internal/session"
)

// ErrNoState is returned by Load when no snapshot has ever been saved.
var ErrNoState = errors.New("no persisted run state")

// RunState is the restorable snapshot of the current run. It is written on
// every progress notification, so after a crash the observer can show where
// the run got to.
type RunState struct {
	Status    session.Status `json:"status"`
	Current   int            `json:"current"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Paused    bool           `json:"paused"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// StateStore persists the run snapshot to SQLite. A single row keyed by a
// fixed name holds the latest state; history is not kept.
type StateStore struct {
	db *sql.DB
}

const stateKey = "run"

// OpenStateStore opens (creating if needed) the state database at path.
func OpenStateStore(path string) (*StateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	s := &StateStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStateStore wraps an already-open database, initializing the schema.
func NewStateStore(db *sql.DB) (*StateStore, error) {
	s := &StateStore{db: db}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StateStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_state (
			key        TEXT PRIMARY KEY,
			payload    TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("init state schema: %w", err)
	}
	return nil
}

// Save overwrites the persisted snapshot.
func (s *StateStore) Save(state RunState) error {
	state.UpdatedAt = time.Now().UTC()
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO run_state (key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		stateKey, string(payload), state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	return nil
}

// Load returns the persisted snapshot, or ErrNoState when none exists.
func (s *StateStore) Load() (RunState, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM run_state WHERE key = ?`, stateKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return RunState{}, ErrNoState
	}
	if err != nil {
		return RunState{}, fmt.Errorf("load run state: %w", err)
	}
	var state RunState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return RunState{}, fmt.Errorf("unmarshal run state: %w", err)
	}
	return state, nil
}

// Clear removes the persisted snapshot.
func (s *StateStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM run_state WHERE key = ?`, stateKey); err != nil {
		return fmt.Errorf("clear run state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *StateStore) Close() error {
	return s.db.Close()
}
