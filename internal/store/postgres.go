// Package store provides user state persistence backends for VentaFlow.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/impulsalabs/ventaflow/internal/models"
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
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetUserState retrieves the record for a user, or nil when absent.
func (s *PostgresStore) GetUserState(userID string) (*models.UserState, error) {
	if userID == "" {
		return nil, fmt.Errorf("get user state: %w", models.ErrEmptyUserID)
	}
	query := `SELECT user_id, display_name, role, consent_status, active_flow, flow_step,
			  awaiting_input_kind, selected_offering_id, interaction_count, priority_score,
			  profile_tags, history, created_at, updated_at
			  FROM user_states WHERE user_id = $1`

	state, err := scanUserState(s.db.QueryRow(query, userID))
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetUserState not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserState failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("%w: query user state for %s: %v", models.ErrStorage, userID, err)
	}
	return state, nil
}

// SaveUserState stores or replaces the record for a user.
func (s *PostgresStore) SaveUserState(state models.UserState) error {
	if state.UserID == "" {
		return fmt.Errorf("save user state: %w", models.ErrEmptyUserID)
	}
	tagsJSON, historyJSON, err := encodeUserStateJSON(state)
	if err != nil {
		slog.Error("PostgresStore SaveUserState JSON marshal failed", "error", err, "userID", state.UserID)
		return fmt.Errorf("%w: encode user state for %s: %v", models.ErrStorage, state.UserID, err)
	}

	query := `
		INSERT INTO user_states
		(user_id, display_name, role, consent_status, active_flow, flow_step,
		 awaiting_input_kind, selected_offering_id, interaction_count, priority_score,
		 profile_tags, history, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			consent_status = EXCLUDED.consent_status,
			active_flow = EXCLUDED.active_flow,
			flow_step = EXCLUDED.flow_step,
			awaiting_input_kind = EXCLUDED.awaiting_input_kind,
			selected_offering_id = EXCLUDED.selected_offering_id,
			interaction_count = EXCLUDED.interaction_count,
			priority_score = EXCLUDED.priority_score,
			profile_tags = EXCLUDED.profile_tags,
			history = EXCLUDED.history,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.Exec(query, state.UserID, nilIfEmpty(state.DisplayName), nilIfEmpty(state.Role),
		state.ConsentStatus, state.ActiveFlow, state.FlowStep, state.AwaitingInputKind,
		state.SelectedOfferingID, state.InteractionCount, state.PriorityScore,
		tagsJSON, historyJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveUserState failed", "error", err, "userID", state.UserID)
		return fmt.Errorf("%w: save user state for %s: %v", models.ErrStorage, state.UserID, err)
	}
	slog.Debug("PostgresStore SaveUserState succeeded", "userID", state.UserID)
	return nil
}

// CountUsersByConsent aggregates users by consent status.
func (s *PostgresStore) CountUsersByConsent() (map[models.ConsentStatus]int, error) {
	rows, err := s.db.Query(`SELECT consent_status, COUNT(*) FROM user_states GROUP BY consent_status`)
	if err != nil {
		slog.Error("PostgresStore CountUsersByConsent query failed", "error", err)
		return nil, fmt.Errorf("%w: count users: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	counts := make(map[models.ConsentStatus]int)
	for rows.Next() {
		var status models.ConsentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			slog.Error("PostgresStore CountUsersByConsent scan failed", "error", err)
			return nil, fmt.Errorf("%w: scan consent count: %v", models.ErrStorage, err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate consent counts: %v", models.ErrStorage, err)
	}
	return counts, nil
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

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
