package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/secret"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/signaltrader.db"

	// Codec encrypts credential fields at rest. Nil stores them in
	// plaintext, which is only acceptable for tests.
	Codec *secret.Codec
}

// Store persists trades, settings, broker credentials and paper fills.
// Every write commits in its own transaction so the reconciler and
// request-triggered execution never tear each other's updates.
type Store struct {
	db    *sql.DB
	codec *secret.Codec
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db, codec: cfg.Codec}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id                      INTEGER PRIMARY KEY AUTOINCREMENT,
			broker                  TEXT    NOT NULL,
			paper                   INTEGER NOT NULL DEFAULT 0,
			symbol                  TEXT    NOT NULL,
			action                  TEXT    NOT NULL,
			quantity                INTEGER NOT NULL,
			entry_price             REAL,
			target_price            REAL,
			stop_loss               REAL,
			order_type              TEXT,
			exchange                TEXT,
			product_type            TEXT,
			order_id                TEXT,
			status                  TEXT    NOT NULL,
			broker_status           TEXT,
			broker_rejection_reason TEXT,
			average_price           REAL,
			filled_quantity         INTEGER,
			execution_price         REAL,
			execution_time          INTEGER,
			last_status_check       INTEGER,
			notes                   TEXT,
			error_message           TEXT,
			order_variety           TEXT,
			created_at              INTEGER NOT NULL,
			updated_at              INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_status  ON trades(status);
		CREATE INDEX IF NOT EXISTS idx_trades_created ON trades(created_at);

		CREATE TABLE IF NOT EXISTS app_settings (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS broker_configs (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			broker        TEXT    NOT NULL UNIQUE,
			client_id     TEXT,
			api_key       TEXT,
			api_secret    TEXT,
			password      TEXT,
			totp_secret   TEXT,
			access_token  TEXT,
			refresh_token TEXT,
			feed_token    TEXT,
			token_expiry  INTEGER,
			request_token TEXT,
			active        INTEGER NOT NULL DEFAULT 1,
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS paper_trades (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id    TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			exchange    TEXT,
			action      TEXT,
			quantity    INTEGER,
			fill_price  REAL,
			executed_at INTEGER NOT NULL
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) encrypt(plain string) (string, error) {
	if s.codec == nil {
		return plain, nil
	}
	return s.codec.Encrypt(plain)
}

func (s *Store) decrypt(stored string) (string, error) {
	if s.codec == nil {
		return stored, nil
	}
	return s.codec.Decrypt(stored)
}

// unixOrZero converts a stored unix timestamp back to a time.Time,
// preserving the zero value for unset columns.
func unixOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
