// Package threatdb archives emitted threat events to SQLite for offline
// review. The archive is a sink: detection state lives in the detector and
// losing the database never affects it. Event ids restart per process, so
// rows key on the implicit rowid rather than the event id.
package threatdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/warden-platform/warden-core/internal/domain/threat"
)

// Archive stores threat events in a SQLite database.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path and runs the migration.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open threat archive: %w", err)
	}
	a, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// New wraps an existing database handle and runs the migration.
func New(db *sql.DB) (*Archive, error) {
	a := &Archive{db: db}
	if err := a.migrate(); err != nil {
		return nil, fmt.Errorf("migrate threat archive: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	table := `
	CREATE TABLE IF NOT EXISTS threat_events (
		event_id    TEXT NOT NULL,
		ts          INTEGER NOT NULL,
		category    TEXT NOT NULL,
		level       TEXT NOT NULL,
		level_rank  INTEGER NOT NULL,
		description TEXT NOT NULL,
		user_id     TEXT,
		source      TEXT,
		channel     TEXT,
		details     JSON,
		mitigated   INTEGER NOT NULL DEFAULT 0,
		action      TEXT
	);`
	if _, err := a.db.ExecContext(context.Background(), table); err != nil {
		return err
	}
	index := `CREATE INDEX IF NOT EXISTS threat_events_ts ON threat_events (ts);`
	_, err := a.db.ExecContext(context.Background(), index)
	return err
}

// Store appends one event.
func (a *Archive) Store(ctx context.Context, ev threat.Event) error {
	query := `INSERT INTO threat_events (
		event_id, ts, category, level, level_rank, description, user_id, source, channel, details, mitigated, action
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	detailsJSON, _ := json.Marshal(ev.Details)

	_, err := a.db.ExecContext(ctx, query,
		ev.ID, ev.Timestamp, string(ev.Category), string(ev.Level), ev.Level.Rank(),
		ev.Description, ev.UserID, ev.Source, ev.Channel, string(detailsJSON),
		ev.Mitigated, ev.Action,
	)
	if err != nil {
		return fmt.Errorf("archive threat event: %w", err)
	}
	return nil
}

// Since returns events detected at or after floor with severity at or above
// minLevel, newest first.
func (a *Archive) Since(ctx context.Context, floor time.Time, minLevel threat.Level) ([]threat.Event, error) {
	query := `
		SELECT event_id, ts, category, level, description, user_id, source, channel, details, mitigated, action
		FROM threat_events
		WHERE ts >= ? AND level_rank >= ?
		ORDER BY ts DESC, rowid DESC
	`
	rows, err := a.db.QueryContext(ctx, query, floor.Unix(), minLevel.Rank())
	if err != nil {
		return nil, fmt.Errorf("query threat events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []threat.Event
	for rows.Next() {
		ev, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of archived events.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threat_events`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count threat events: %w", err)
	}
	return n, nil
}

// Close closes the underlying database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

func scanEventRow(rows *sql.Rows) (threat.Event, error) {
	var (
		ev          threat.Event
		category    string
		level       string
		userID      sql.NullString
		source      sql.NullString
		channel     sql.NullString
		detailsJSON sql.NullString
		action      sql.NullString
	)
	err := rows.Scan(&ev.ID, &ev.Timestamp, &category, &level, &ev.Description,
		&userID, &source, &channel, &detailsJSON, &ev.Mitigated, &action)
	if err != nil {
		return threat.Event{}, err
	}

	ev.Category = threat.Category(category)
	ev.Level = threat.Level(level)
	ev.UserID = userID.String
	ev.Source = source.String
	ev.Channel = channel.String
	ev.Action = action.String
	if detailsJSON.Valid && detailsJSON.String != "" {
		_ = json.Unmarshal([]byte(detailsJSON.String), &ev.Details)
	}
	return ev, nil
}
