package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/SkinPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}

// SaveFlowState stores or updates the state of one session.
func (s *PostgresStore) SaveFlowState(state models.FlowState) error {
	query := `
		INSERT INTO flow_states (session_id, flow_type, current_state, state_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, flow_type)
		DO UPDATE SET
			current_state = EXCLUDED.current_state,
			state_data = EXCLUDED.state_data,
			updated_at = EXCLUDED.updated_at`

	stateDataJSON, err := encodeStateData(state.StateData)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState JSON marshal failed", "error", err, "sessionID", state.SessionID)
		return err
	}

	_, err = s.db.Exec(query, state.SessionID, state.FlowType, state.CurrentState,
		nilIfEmpty(stateDataJSON), state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveFlowState failed", "error", err, "sessionID", state.SessionID, "flowType", state.FlowType)
		return err
	}
	slog.Debug("PostgresStore SaveFlowState succeeded", "sessionID", state.SessionID, "state", state.CurrentState)
	return nil
}

// GetFlowState retrieves the state of one session.
func (s *PostgresStore) GetFlowState(sessionID, flowType string) (*models.FlowState, error) {
	query := `SELECT session_id, flow_type, current_state, state_data, created_at, updated_at
			  FROM flow_states WHERE session_id = $1 AND flow_type = $2`

	var state models.FlowState
	var stateDataJSON sql.NullString

	err := s.db.QueryRow(query, sessionID, flowType).Scan(
		&state.SessionID, &state.FlowType, &state.CurrentState,
		&stateDataJSON, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetFlowState not found", "sessionID", sessionID, "flowType", flowType)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return nil, err
	}
	state.StateData = decodeStateData(sessionID, stateDataJSON.String)
	return &state, nil
}

// DeleteFlowState removes the state of one session.
func (s *PostgresStore) DeleteFlowState(sessionID, flowType string) error {
	_, err := s.db.Exec(`DELETE FROM flow_states WHERE session_id = $1 AND flow_type = $2`, sessionID, flowType)
	if err != nil {
		slog.Error("PostgresStore DeleteFlowState failed", "error", err, "sessionID", sessionID, "flowType", flowType)
		return err
	}
	return nil
}

// PurgeFlowStates deletes sessions last updated before cutoff.
func (s *PostgresStore) PurgeFlowStates(before time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM flow_states WHERE updated_at < $1`, before)
	if err != nil {
		slog.Error("PostgresStore PurgeFlowStates failed", "error", err)
		return 0, fmt.Errorf("purge flow states failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// GetSetting reads one key of an owner's settings.
func (s *PostgresStore) GetSetting(owner, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE owner = $1 AND key = $2`, owner, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSetting failed", "error", err, "owner", owner, "key", key)
		return "", false, fmt.Errorf("failed to get setting %s for %s: %w", key, owner, err)
	}
	return value, true, nil
}

// SetSetting writes one key of an owner's settings.
func (s *PostgresStore) SetSetting(owner, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (owner, key, value, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		owner, key, value, time.Now())
	if err != nil {
		slog.Error("PostgresStore SetSetting failed", "error", err, "owner", owner, "key", key)
		return fmt.Errorf("failed to set setting %s for %s: %w", key, owner, err)
	}
	return nil
}

// ListSettingOwners returns all owners with stored settings.
func (s *PostgresStore) ListSettingOwners() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT owner FROM settings ORDER BY owner`)
	if err != nil {
		slog.Error("PostgresStore ListSettingOwners query failed", "error", err)
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
func (s *PostgresStore) AddCompletion(c models.Completion) error {
	answers, err := encodeAnswers(c.Answers)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO completions (session_id, combo_key, answers, completed_at) VALUES ($1, $2, $3, $4)`,
		c.SessionID, c.ComboKey, answers, c.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore AddCompletion failed", "error", err, "sessionID", c.SessionID)
		return fmt.Errorf("failed to insert completion for %s: %w", c.SessionID, err)
	}
	return nil
}

// ListCompletions returns completions in insertion order.
func (s *PostgresStore) ListCompletions() ([]models.Completion, error) {
	rows, err := s.db.Query(`SELECT session_id, combo_key, answers, completed_at FROM completions ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListCompletions query failed", "error", err)
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var out []models.Completion
	for rows.Next() {
		var c models.Completion
		var answers []byte
		if err := rows.Scan(&c.SessionID, &c.ComboKey, &answers, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion row: %w", err)
		}
		c.Answers = decodeAnswers(string(answers))
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate completion rows: %w", err)
	}
	return out, nil
}
