// Package history is the durable append-only log of observed events, backed
// by SQLite. Rows are never updated or deleted; the current state of a
// message is its most recently inserted row.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/user/chatlog/internal/types"
)

// schemaVersion is stamped into PRAGMA user_version after migration. Stores
// already at this version perform no DDL on startup. Version 1 stores exist
// in the wild without an id column (stamped by earlier tooling); version 2
// adds it.
const schemaVersion = 2

// Store is a SQLite-backed HistoryStore. A single mutex serializes writes;
// reads go through the same connection pool capped at one connection, which
// keeps concurrent lookups safe while media downloads run detached.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// Open opens (creating if absent) the database at path and runs the
// idempotent schema migration.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema migrates the store up to schemaVersion in one transaction,
// applying only the steps above the stamped version. Anything at the current
// version is left untouched.
func (s *Store) ensureSchema(ctx context.Context) error {
	var version int
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if err := migrateToV1(ctx, tx); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := migrateToV2(ctx, tx); err != nil {
			return err
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_event_chat_message ON event(chat_id, message_id)",
		"CREATE INDEX IF NOT EXISTS idx_event_message ON event(message_id)",
	}
	for _, stmt := range indexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	// PRAGMA does not accept bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return tx.Commit()
}

// migrateToV1 establishes the event table. A version 0 store with a legacy
// "events" table (the old two-media-columns-fewer layout) is renamed and
// widened; version 0 without one gets the full table directly.
func migrateToV1(ctx context.Context, tx *sqlx.Tx) error {
	var legacy int
	err := tx.GetContext(ctx, &legacy,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'events'")
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	if legacy > 0 {
		stmts := []string{
			"ALTER TABLE events RENAME TO event",
			"ALTER TABLE event ADD COLUMN id TEXT",
			"ALTER TABLE event ADD COLUMN media_type TEXT",
			"ALTER TABLE event ADD COLUMN media_filename TEXT",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate legacy table: %w", err)
			}
		}
		return nil
	}

	_, err = tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS event (
    id             TEXT,
    type           TEXT NOT NULL,
    date           REAL NOT NULL,
    chat_id        INTEGER,
    message_id     INTEGER NOT NULL,
    user_id        INTEGER,
    text           TEXT,
    media_type     TEXT,
    media_filename TEXT
)`)
	if err != nil {
		return fmt.Errorf("create event table: %w", err)
	}
	return nil
}

// migrateToV2 adds the id column to version 1 stores that predate it. Stores
// that went through migrateToV1 in the same transaction already have it.
func migrateToV2(ctx context.Context, tx *sqlx.Tx) error {
	hasID, err := tableHasColumn(ctx, tx, "event", "id")
	if err != nil {
		return fmt.Errorf("inspect event table: %w", err)
	}
	if hasID {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "ALTER TABLE event ADD COLUMN id TEXT"); err != nil {
		return fmt.Errorf("add id column: %w", err)
	}
	return nil
}

func tableHasColumn(ctx context.Context, tx *sqlx.Tx, table, column string) (bool, error) {
	rows, err := tx.QueryxContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             any
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Version reports the stamped schema version.
func (s *Store) Version(ctx context.Context) (int, error) {
	var version int
	if err := s.db.GetContext(ctx, &version, "PRAGMA user_version"); err != nil {
		return 0, err
	}
	return version, nil
}

// Append inserts an immutable record.
func (s *Store) Append(ctx context.Context, event *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO event (id, type, date, chat_id, message_id, user_id, text, media_type, media_filename)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(event.ID),
		string(event.Kind),
		float64(event.OccurredAt.UnixNano())/float64(time.Second),
		event.ChatID,
		event.MessageID,
		event.UserID,
		event.Text,
		event.MediaType,
		event.MediaFilename,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

type eventRow struct {
	ID            sql.NullString `db:"id"`
	Kind          string         `db:"type"`
	Date          float64        `db:"date"`
	ChatID        sql.NullInt64  `db:"chat_id"`
	MessageID     int64          `db:"message_id"`
	UserID        sql.NullInt64  `db:"user_id"`
	Text          sql.NullString `db:"text"`
	MediaType     sql.NullString `db:"media_type"`
	MediaFilename sql.NullString `db:"media_filename"`
}

// Latest returns the most recent event for (chatID, messageID), last-written
// wins. A nil chatID matches across all chats. Returns (nil, nil) when no
// history exists for the message.
func (s *Store) Latest(ctx context.Context, chatID *int64, messageID int64) (*types.Event, error) {
	var r eventRow
	err := s.db.GetContext(ctx, &r, `
SELECT id, type, date, chat_id, message_id, user_id, text, media_type, media_filename
FROM event
WHERE (? IS NULL OR chat_id = ?) AND message_id = ?
ORDER BY rowid DESC
LIMIT 1`,
		chatID, chatID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest event: %w", err)
	}
	return r.toEvent(), nil
}

func (r *eventRow) toEvent() *types.Event {
	sec, frac := int64(r.Date), r.Date-float64(int64(r.Date))
	e := &types.Event{
		ID:         types.EventID(r.ID.String),
		Kind:       types.EventKind(r.Kind),
		OccurredAt: time.Unix(sec, int64(frac*float64(time.Second))).UTC(),
		MessageID:  r.MessageID,
	}
	if r.ChatID.Valid {
		e.ChatID = &r.ChatID.Int64
	}
	if r.UserID.Valid {
		e.UserID = &r.UserID.Int64
	}
	if r.Text.Valid {
		e.Text = &r.Text.String
	}
	if r.MediaType.Valid {
		e.MediaType = &r.MediaType.String
	}
	if r.MediaFilename.Valid {
		e.MediaFilename = &r.MediaFilename.String
	}
	return e
}
