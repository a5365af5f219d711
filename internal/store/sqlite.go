// Package store provides user state persistence backends for VentaFlow.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/impulsalabs/ventaflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

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

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetUserState retrieves the record for a user, or nil when absent.
func (s *SQLiteStore) GetUserState(userID string) (*models.UserState, error) {
	if userID == "" {
		return nil, fmt.Errorf("get user state: %w", models.ErrEmptyUserID)
	}
	query := `SELECT user_id, display_name, role, consent_status, active_flow, flow_step,
			  awaiting_input_kind, selected_offering_id, interaction_count, priority_score,
			  profile_tags, history, created_at, updated_at
			  FROM user_states WHERE user_id = ?`

	state, err := scanUserState(s.db.QueryRow(query, userID))
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUserState not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserState failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("%w: query user state for %s: %v", models.ErrStorage, userID, err)
	}
	slog.Debug("SQLiteStore GetUserState found", "userID", userID, "activeFlow", state.ActiveFlow)
	return state, nil
}

// SaveUserState stores or replaces the record for a user.
func (s *SQLiteStore) SaveUserState(state models.UserState) error {
	if state.UserID == "" {
		return fmt.Errorf("save user state: %w", models.ErrEmptyUserID)
	}
	tagsJSON, historyJSON, err := encodeUserStateJSON(state)
	if err != nil {
		slog.Error("SQLiteStore SaveUserState JSON marshal failed", "error", err, "userID", state.UserID)
		return fmt.Errorf("%w: encode user state for %s: %v", models.ErrStorage, state.UserID, err)
	}

	query := `
		INSERT OR REPLACE INTO user_states
		(user_id, display_name, role, consent_status, active_flow, flow_step,
		 awaiting_input_kind, selected_offering_id, interaction_count, priority_score,
		 profile_tags, history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, state.UserID, state.DisplayName, state.Role,
		state.ConsentStatus, state.ActiveFlow, state.FlowStep, state.AwaitingInputKind,
		state.SelectedOfferingID, state.InteractionCount, state.PriorityScore,
		tagsJSON, historyJSON, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveUserState failed", "error", err, "userID", state.UserID)
		return fmt.Errorf("%w: save user state for %s: %v", models.ErrStorage, state.UserID, err)
	}
	slog.Debug("SQLiteStore SaveUserState succeeded", "userID", state.UserID, "activeFlow", state.ActiveFlow)
	return nil
}

// CountUsersByConsent aggregates users by consent status.
func (s *SQLiteStore) CountUsersByConsent() (map[models.ConsentStatus]int, error) {
	rows, err := s.db.Query(`SELECT consent_status, COUNT(*) FROM user_states GROUP BY consent_status`)
	if err != nil {
		slog.Error("SQLiteStore CountUsersByConsent query failed", "error", err)
		return nil, fmt.Errorf("%w: count users: %v", models.ErrStorage, err)
	}
	defer rows.Close()

	counts := make(map[models.ConsentStatus]int)
	for rows.Next() {
		var status models.ConsentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			slog.Error("SQLiteStore CountUsersByConsent scan failed", "error", err)
			return nil, fmt.Errorf("%w: scan consent count: %v", models.ErrStorage, err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore CountUsersByConsent rows iteration failed", "error", err)
		return nil, fmt.Errorf("%w: iterate consent counts: %v", models.ErrStorage, err)
	}
	return counts, nil
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
