// Package sqlite implements repository.AccountRepository on SQLite.
//
// WHY SQLITE?
// The store needs exactly three things from its engine: a UNIQUE constraint
// on email (the authoritative duplicate-registration signal), a UNIQUE
// constraint on referral_code (global code uniqueness), and atomic
// conditional UPDATEs (the issuance guard and the redemption CAS). SQLite
// provides all three with zero infrastructure — a single file, or ":memory:"
// in tests.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means a C compiler and painful
// cross-compilation. modernc.org/sqlite is a pure Go translation of the
// SQLite sources — works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: the driver registers itself with database/sql
	// under the name "sqlite" at init time.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the account repository.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for a throwaway in-memory database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Fail now on a bad path or permissions, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// account_referrals.referrer_id references accounts(id); SQLite ships
	// with foreign keys off for backwards compatibility.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// SQLite allows one writer at a time; a second pooled connection would
	// only ever see SQLITE_BUSY on writes. Pinning the pool to a single
	// connection also makes ":memory:" behave (each connection would
	// otherwise get its own empty in-memory database). Correctness does not
	// depend on this — the version CAS in ApplyRedemption carries it on any
	// engine — it just removes a whole class of busy-retry noise.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent;
// for this schema size, embedded SQL beats a migration framework.
//
// Two tables:
//
//   - accounts: one row per registered account. referral_code is NULL until
//     the account issues one; the UNIQUE constraint makes codes globally
//     unique and single-owner. version is the optimistic-concurrency guard
//     bumped by every redemption write.
//
//   - account_referrals: append-only list of who redeemed whose code. seq
//     preserves redemption order; UNIQUE(account_id) means an account can be
//     referred at most once, ever. referral_count on the referrer equals the
//     number of rows here because both are written in one transaction.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id             TEXT PRIMARY KEY,
			email          TEXT NOT NULL UNIQUE,
			secret_hash    TEXT NOT NULL,
			referral_code  TEXT UNIQUE,
			referral_count INTEGER NOT NULL DEFAULT 0,
			credit_balance INTEGER NOT NULL DEFAULT 0,
			version        INTEGER NOT NULL DEFAULT 0,
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS account_referrals (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			referrer_id TEXT NOT NULL REFERENCES accounts(id),
			account_id  TEXT NOT NULL UNIQUE,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_account_referrals_referrer
			ON account_referrals(referrer_id);
	`)
	if err != nil {
		return fmt.Errorf("creating account_referrals table: %w", err)
	}

	return nil
}
