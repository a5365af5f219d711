// Package catalog provides read-only access to offering facts for VentaFlow.
//
// This file implements the SQLite-backed catalog.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteCatalog reads offerings from a SQLite database. The engine treats it
// as read-only; the offerings table is maintained out of band.
type SQLiteCatalog struct {
	db *sql.DB
}

// NewSQLiteCatalog opens the catalog database at the given DSN and ensures the
// offerings table exists.
func NewSQLiteCatalog(dsn string) (*SQLiteCatalog, error) {
	slog.Debug("NewSQLiteCatalog invoked", "DSN_set", dsn != "")
	if dsn == "" {
		slog.Error("SQLiteCatalog DSN not set")
		return nil, fmt.Errorf("catalog DSN not set")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open catalog SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Catalog SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run catalog migrations", "error", err)
		return nil, fmt.Errorf("failed to run catalog migrations: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

const offeringColumns = `id, name, level, price_amount, currency, duration_weeks,
	lesson_count, summary, resource_ref, campaign_tags, promo_codes`

// GetOffering returns the offering with the given id, or nil when unknown.
func (c *SQLiteCatalog) GetOffering(ctx context.Context, id string) (*Offering, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+offeringColumns+` FROM offerings WHERE id = ?`, id)
	o, err := scanOffering(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteCatalog GetOffering not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteCatalog GetOffering failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query offering %s: %w", id, err)
	}
	return o, nil
}

// ListOfferings returns all offerings ordered by name.
func (c *SQLiteCatalog) ListOfferings(ctx context.Context) ([]Offering, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+offeringColumns+` FROM offerings ORDER BY name`)
	if err != nil {
		slog.Error("SQLiteCatalog ListOfferings query failed", "error", err)
		return nil, fmt.Errorf("failed to query offerings: %w", err)
	}
	defer rows.Close()
	return collectOfferings(rows)
}

// Search matches query against name, level, and summary, case-insensitively.
func (c *SQLiteCatalog) Search(ctx context.Context, query string) ([]Offering, error) {
	like := "%" + query + "%"
	rows, err := c.db.QueryContext(ctx, `SELECT `+offeringColumns+` FROM offerings
		WHERE name LIKE ? COLLATE NOCASE
		   OR level LIKE ? COLLATE NOCASE
		   OR summary LIKE ? COLLATE NOCASE
		ORDER BY name`, like, like, like)
	if err != nil {
		slog.Error("SQLiteCatalog Search query failed", "error", err, "query", query)
		return nil, fmt.Errorf("failed to search offerings: %w", err)
	}
	defer rows.Close()
	return collectOfferings(rows)
}

// Authoritative is true: the catalog database is the source of truth for
// offering facts.
func (c *SQLiteCatalog) Authoritative() bool {
	return true
}

// UpsertOffering inserts or replaces an offering. This is an administrative
// seeding surface; the conversation engine itself never calls it.
func (c *SQLiteCatalog) UpsertOffering(ctx context.Context, o Offering) error {
	tagsJSON, err := json.Marshal(o.CampaignTags)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign tags for %s: %w", o.ID, err)
	}
	codesJSON, err := json.Marshal(o.PromoCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal promo codes for %s: %w", o.ID, err)
	}
	_, err = c.db.ExecContext(ctx, `INSERT OR REPLACE INTO offerings
		(id, name, level, price_amount, currency, duration_weeks, lesson_count,
		 summary, resource_ref, campaign_tags, promo_codes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Name, o.Level, o.PriceAmount, o.Currency, o.DurationWeeks,
		o.LessonCount, o.Summary, o.ResourceRef, string(tagsJSON), string(codesJSON))
	if err != nil {
		slog.Error("SQLiteCatalog UpsertOffering failed", "error", err, "id", o.ID)
		return fmt.Errorf("failed to upsert offering %s: %w", o.ID, err)
	}
	return nil
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type offeringScanner interface {
	Scan(dest ...interface{}) error
}

func scanOffering(row offeringScanner) (*Offering, error) {
	var o Offering
	var tagsJSON, codesJSON sql.NullString
	err := row.Scan(&o.ID, &o.Name, &o.Level, &o.PriceAmount, &o.Currency,
		&o.DurationWeeks, &o.LessonCount, &o.Summary, &o.ResourceRef,
		&tagsJSON, &codesJSON)
	if err != nil {
		return nil, err
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &o.CampaignTags); err != nil {
			slog.Error("SQLiteCatalog campaign tags unmarshal failed", "error", err, "id", o.ID)
		}
	}
	if codesJSON.Valid && codesJSON.String != "" {
		if err := json.Unmarshal([]byte(codesJSON.String), &o.PromoCodes); err != nil {
			slog.Error("SQLiteCatalog promo codes unmarshal failed", "error", err, "id", o.ID)
		}
	}
	return &o, nil
}

func collectOfferings(rows *sql.Rows) ([]Offering, error) {
	var out []Offering
	for rows.Next() {
		o, err := scanOffering(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offering row: %w", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate offering rows: %w", err)
	}
	return out, nil
}
