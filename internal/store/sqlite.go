package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/BTreeMap/SkinPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dsn+sep+"_busy_timeout=5000")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// SaveFlowState stores or updates the state of one session.
func (s *SQLiteStore) SaveFlowState(state models.FlowState) error {
	query := `
		INSERT OR REPLACE INTO flow_states (session_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	stateDataJSON, err := encodeStateData(state.StateData)
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState JSON marshal failed", "error", err, "sessionID", state.SessionID)
		return err
	}

	_, err = s.db.Exec(query, state.SessionID, state.FlowType, state.CurrentState,
		stateDataJSON, state.CreatedAt.UTC(), state.UpdatedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveFlowState failed", "error", err, "sessionID", state.SessionID, "flowType", state.FlowType)
		return err
	}
	slog.Debug("SQLiteStore SaveFlowState succeeded", "sessionID", state.SessionID, "flowType", state.FlowType, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves the state of one session.
func (s *SQLiteStore) GetFlowState(sessionID, flowType string) (*models.FlowState, error) {
	query := `SELECT session_id, flow_type, current_state, state_data, created_at, updated_at
			  FROM flow_states WHERE session_id = ? AND flow_type = ?`

	var state models.FlowState
	var stateDataJSON string

	err := s.db.QueryRow(query, sessionID, flowType).Scan(
		&state.SessionID, &state.FlowType, &state.CurrentState,
		&stateDataJSON, &state.CreatedAt, &state.UpdatedAt)

	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetFlowState not found", "sessionID", sessionID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return nil, err
	}
	state.StateData = decodeStateData(sessionID, stateDataJSON)
	return &state, nil
}

// DeleteFlowState removes the state of one session.
func (s *SQLiteStore) DeleteFlowState(sessionID, flowType string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE session_id = ? AND flow_type = ?`, sessionID, flowType)
	if err != nil {
		slog.Error("SQLiteStore DeleteFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}
	slog.Debug("SQLiteStore DeleteFlowState succeeded", "sessionID", sessionID, "flowType", flowType)
	return nil
}

// PurgeFlowStates deletes sessions last updated before cutoff.
func (s *SQLiteStore) PurgeFlowStates(before time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM flow_states WHERE updated_at < ?`, before.UTC())
	if err != nil {
		slog.Error("SQLiteStore PurgeFlowStates failed", "error", err)
		return 0, fmt.Errorf("purge flow states failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// GetSetting reads one key of an owner's settings.
func (s *SQLiteStore) GetSetting(owner, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE owner = ? AND key = ?`, owner, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSetting failed", "error", err, "owner", owner, "key", key)
		return "", false, fmt.Errorf("failed to get setting %s for %s: %w", key, owner, err)
	}
	return value, true, nil
}

// SetSetting writes one key of an owner's settings.
func (s *SQLiteStore) SetSetting(owner, key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (owner, key, value, updated_at) VALUES (?, ?, ?, ?)`,
		owner, key, value, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SetSetting failed", "error", err, "owner", owner, "key", key)
		return fmt.Errorf("failed to set setting %s for %s: %w", key, owner, err)
	}
	slog.Debug("SQLiteStore SetSetting succeeded", "owner", owner, "key", key)
	return nil
}

// ListSettingOwners returns all owners with stored settings.
func (s *SQLiteStore) ListSettingOwners() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT owner FROM settings ORDER BY owner`)
	if err != nil {
		slog.Error("SQLiteStore ListSettingOwners query failed", "error", err)
		return nil, fmt.Errorf("failed to query setting owners: %w", err)
	}
	defer rows.Close()
	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("failed to scan owner row: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

// AddCompletion records a finished questionnaire.
func (s *SQLiteStore) AddCompletion(c models.Completion) error {
	answers, err := encodeAnswers(c.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO completions (session_id, combo_key, answers, completed_at) VALUES (?, ?, ?, ?)`,
		c.SessionID, c.ComboKey, answers, c.CompletedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore AddCompletion failed", "error", err, "sessionID", c.SessionID)
		return fmt.Errorf("failed to insert completion for %s: %w", c.SessionID, err)
	}
	slog.Debug("SQLiteStore AddCompletion succeeded", "sessionID", c.SessionID, "comboKey", c.ComboKey)
	return nil
}

// ListCompletions returns completions in insertion order.
func (s *SQLiteStore) ListCompletions() ([]models.Completion, error) {
	rows, err := s.db.Query(`SELECT session_id, combo_key, answers, completed_at FROM completions ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListCompletions query failed", "error", err)
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var out []models.Completion
	for rows.Next() {
		var c models.Completion
		var answers string
		if err := rows.Scan(&c.SessionID, &c.ComboKey, &answers, &c.CompletedAt); err != nil {
			slog.Error("SQLiteStore ListCompletions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan completion row: %w", err)
		}
		c.Answers = decodeAnswers(answers)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completion rows: %w", err)
	}
	return out, nil
}
