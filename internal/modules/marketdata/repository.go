// Package marketdata provides read access to the event and price store the
// ingestion adapters populate. It implements the collaborator boundary the
// evaluation engine consumes (domain.EventSource, domain.PriceSource).
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/database"
	"github.com/aristath/edgefinder/internal/domain"
)

const dateLayout = "2006-01-02"

// Repository handles event and daily-price queries
// Database: marketdata.db (events, daily_prices tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market data repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
	}
}

// Open opens the market data database with the cgo SQLite driver.
// The store is written by the ingestion adapters in a separate process;
// this side only needs WAL-friendly read access plus the write helpers the
// fixtures use.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open market data database: %w", err)
	}
	db.SetMaxOpenConns(10)
	return db, nil
}

// EnsureSchema applies the bundled marketdata schema. Idempotent; the
// ingestion adapters normally own this database, but a fresh deployment or
// a test needs the tables to exist before the first read.
func EnsureSchema(db *sql.DB) error {
	schema, err := database.SchemaSQL("marketdata")
	if err != nil {
		return err
	}
	if schema == "" {
		return nil
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply marketdata schema: %w", err)
	}
	return nil
}

// QueryEvents returns events of a type within [start, end], ordered by
// timestamp ascending. An empty entity matches all entities.
func (r *Repository) QueryEvents(ctx context.Context, eventType, entity string, start, end time.Time) ([]domain.Event, error) {
	query := "SELECT timestamp, entity, magnitude, metadata FROM events WHERE event_type = ?"
	args := []interface{}{eventType}

	if entity != "" {
		query += " AND entity = ?"
		args = append(args, entity)
	}
	query += " AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC"
	args = append(args, start.Unix(), end.Unix())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var ts int64
		var entityCol, metadata sql.NullString
		var magnitude sql.NullFloat64

		if err := rows.Scan(&ts, &entityCol, &magnitude, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev.Timestamp = time.Unix(ts, 0).UTC()
		if entityCol.Valid {
			ev.Entity = entityCol.String
		}
		if magnitude.Valid {
			m := magnitude.Float64
			ev.Magnitude = &m
		}
		if metadata.Valid {
			ev.Metadata = metadata.String
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// QueryPrices returns daily OHLCV bars for an asset within [start, end],
// ordered by date ascending.
func (r *Repository) QueryPrices(ctx context.Context, asset string, start, end time.Time) ([]domain.PricePoint, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM daily_prices
		WHERE asset = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, asset, start.UTC().Format(dateLayout), end.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", asset, err)
	}
	defer rows.Close()

	var prices []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var date string
		var volume sql.NullInt64

		if err := rows.Scan(&date, &p.Open, &p.High, &p.Low, &p.Close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}

		day, err := time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q in daily_prices: %w", date, err)
		}
		p.Timestamp = day
		if volume.Valid {
			v := volume.Int64
			p.Volume = &v
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}

	return prices, nil
}

// InsertEvent stores one event. Used by fixtures and backfill tooling; the
// production write path lives in the ingestion adapters.
func (r *Repository) InsertEvent(ev domain.Event, eventType string) error {
	_, err := r.db.Exec(
		"INSERT INTO events (event_type, entity, timestamp, magnitude, metadata) VALUES (?, ?, ?, ?, ?)",
		eventType, nullString(ev.Entity), ev.Timestamp.Unix(), nullFloat(ev.Magnitude), nullString(ev.Metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// UpsertDailyPrice stores one daily bar, replacing any existing bar for the
// same asset/date.
func (r *Repository) UpsertDailyPrice(asset string, p domain.PricePoint) error {
	var volume interface{}
	if p.Volume != nil {
		volume = *p.Volume
	}
	_, err := r.db.Exec(
		"INSERT OR REPLACE INTO daily_prices (asset, date, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?)",
		asset, p.Timestamp.UTC().Format(dateLayout), p.Open, p.High, p.Low, p.Close, volume,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily price: %w", err)
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
