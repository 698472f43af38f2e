package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DateLayout is the timestamp format every store writes to TEXT columns.
// Fixed width so timestamps compare correctly as strings in SQL.
const DateLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC using DateLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseTime parses a DateLayout timestamp; empty or malformed input yields the zero time.
func ParseTime(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Open opens the SQLite database at path with the pragmas the stores rely on:
// WAL for concurrent readers, a busy timeout so concurrent writers wait instead
// of failing, foreign keys, and immediate transactions so a transaction takes
// the write lock on BEGIN.
// PRE: path is a filesystem path
// POST: Returns an open handle; schema is not touched
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables and indexes exist
func InitDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS account (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	stripe_customer_id TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	failed_logins INTEGER NOT NULL DEFAULT 0,
	locked_until TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS service (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price_cents INTEGER NOT NULL,
	duration_minutes INTEGER NOT NULL,
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS package (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price_cents INTEGER NOT NULL,
	sessions_included INTEGER NOT NULL,
	validity_days INTEGER NOT NULL,
	allow_installments INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS membership_tier (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	monthly_price_cents INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS slot (
	id TEXT PRIMARY KEY,
	date TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	coach_id TEXT NOT NULL DEFAULT '',
	max_bookings INTEGER NOT NULL CHECK (max_bookings >= 1),
	current_bookings INTEGER NOT NULL DEFAULT 0 CHECK (current_bookings >= 0 AND current_bookings <= max_bookings),
	is_available INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS athlete_package (
	id TEXT PRIMARY KEY,
	athlete_id TEXT NOT NULL,
	package_id TEXT NOT NULL,
	sessions_total INTEGER NOT NULL,
	sessions_used INTEGER NOT NULL DEFAULT 0 CHECK (sessions_used >= 0 AND sessions_used <= sessions_total),
	purchased_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	amount_cents INTEGER NOT NULL DEFAULT 0,
	installments_total INTEGER NOT NULL DEFAULT 0,
	stripe_checkout_session_id TEXT,
	stripe_payment_intent_id TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_athlete_package_checkout_session
	ON athlete_package(stripe_checkout_session_id) WHERE stripe_checkout_session_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS booking (
	id TEXT PRIMARY KEY,
	athlete_id TEXT NOT NULL,
	coach_id TEXT NOT NULL DEFAULT '',
	service_id TEXT NOT NULL,
	slot_id TEXT REFERENCES slot(id),
	booking_date TEXT NOT NULL,
	start_time TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	payment_status TEXT NOT NULL CHECK (payment_status IN ('pending', 'paid', 'failed')),
	payment_method TEXT NOT NULL DEFAULT 'card' CHECK (payment_method IN ('card', 'comp', 'package')),
	amount_cents INTEGER NOT NULL DEFAULT 0,
	stripe_checkout_session_id TEXT,
	stripe_payment_intent_id TEXT NOT NULL DEFAULT '',
	athlete_package_id TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_booking_checkout_session
	ON booking(stripe_checkout_session_id) WHERE stripe_checkout_session_id IS NOT NULL;

CREATE UNIQUE INDEX IF NOT EXISTS idx_booking_active_athlete_slot
	ON booking(athlete_id, slot_id) WHERE status IN ('pending', 'confirmed') AND slot_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_booking_athlete ON booking(athlete_id, booking_date);

CREATE TABLE IF NOT EXISTS action_request (
	id TEXT PRIMARY KEY,
	requester_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	target_table TEXT NOT NULL,
	target_id TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'denied')),
	reviewed_by TEXT NOT NULL DEFAULT '',
	reviewed_at TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_request_status ON action_request(status, created_at);

CREATE TABLE IF NOT EXISTS simulation_session (
	id TEXT PRIMARY KEY,
	admin_id TEXT NOT NULL,
	role TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	expires_at TEXT NOT NULL,
	ended_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS simulation_data_log (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES simulation_session(id),
	table_name TEXT NOT NULL,
	record_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (session_id, table_name, record_id)
);

CREATE TABLE IF NOT EXISTS drill (
	id TEXT PRIMARY KEY,
	coach_id TEXT NOT NULL,
	title TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drill_assignment (
	id TEXT PRIMARY KEY,
	drill_id TEXT NOT NULL REFERENCES drill(id),
	athlete_id TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drill_completion (
	id TEXT PRIMARY KEY,
	assignment_id TEXT NOT NULL REFERENCES drill_assignment(id),
	completed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS performance_metric (
	id TEXT PRIMARY KEY,
	athlete_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outbox (
	id TEXT PRIMARY KEY,
	action_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 8,
	last_attempted_at TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, created_at, id);

CREATE TABLE IF NOT EXISTS audit_event (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	category TEXT NOT NULL,
	action TEXT NOT NULL,
	severity TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL DEFAULT '',
	resource_id TEXT NOT NULL DEFAULT '',
	resource_type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS setting (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`
