package store

import (
	"context"
	"database/sql"
	"errors"

	_ "modernc.org/sqlite"
)

// ErrConflict is returned when a compare-and-swap write loses to a concurrent
// cycle. The losing caller treats the contact as a no-op for the pass.
var ErrConflict = errors.New("store: conflicting concurrent write")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

type Store struct{ db *sql.DB }

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The whole pipeline is sequential per account; a single connection keeps
	// sqlite writes serialized.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS schedules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_type TEXT NOT NULL UNIQUE,
	enabled INTEGER NOT NULL DEFAULT 0,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	max_scrapes INTEGER NOT NULL DEFAULT 0,
	max_comments INTEGER NOT NULL DEFAULT 0,
	max_dms INTEGER NOT NULL DEFAULT 0,
	max_friend_requests INTEGER NOT NULL DEFAULT 0,
	min_delay_minutes INTEGER NOT NULL DEFAULT 2,
	max_delay_minutes INTEGER NOT NULL DEFAULT 10,
	jitter_percent INTEGER NOT NULL DEFAULT 20,
	peak_scrapes INTEGER NOT NULL DEFAULT 0,
	peak_comments INTEGER NOT NULL DEFAULT 0,
	peak_dms INTEGER NOT NULL DEFAULT 0,
	peak_friend_requests INTEGER NOT NULL DEFAULT 0,
	normal_scrapes INTEGER NOT NULL DEFAULT 0,
	normal_comments INTEGER NOT NULL DEFAULT 0,
	normal_dms INTEGER NOT NULL DEFAULT 0,
	normal_friend_requests INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS hour_slots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	schedule_id INTEGER NOT NULL,
	hour INTEGER NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 0,
	is_peak INTEGER NOT NULL DEFAULT 0,
	overridden INTEGER NOT NULL DEFAULT 0,
	scrapes INTEGER NOT NULL DEFAULT 0,
	comments INTEGER NOT NULL DEFAULT 0,
	dms INTEGER NOT NULL DEFAULT 0,
	friend_requests INTEGER NOT NULL DEFAULT 0,
	scheduled_times TEXT NOT NULL DEFAULT '',
	UNIQUE(schedule_id, hour),
	FOREIGN KEY(schedule_id) REFERENCES schedules(id)
);
CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	contact_name TEXT NOT NULL,
	contact_external_id TEXT NOT NULL DEFAULT '',
	conversation_ref TEXT NOT NULL DEFAULT '',
	last_their_message TEXT NOT NULL DEFAULT '',
	last_message_is_ours INTEGER NOT NULL DEFAULT 0,
	state TEXT NOT NULL DEFAULT 'NEW',
	last_activity_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(account_id, contact_name)
);
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	contact_id INTEGER NOT NULL,
	sender TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(contact_id, content),
	FOREIGN KEY(contact_id) REFERENCES contacts(id)
);
`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}
