package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at path with WAL mode,
// foreign keys, and a busy timeout suitable for concurrent API traffic.
func Open(path string) (*sql.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_journal_mode=WAL&_busy_timeout=10000&_foreign_keys=1")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	// Some drivers ignore connection string pragmas, so set them explicitly.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// IsUniqueViolation reports whether err came from a UNIQUE constraint
// or unique index. The driver exposes no typed error for this.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Migrate creates all tables if they do not exist.
func Migrate(db *sql.DB) error {
	for _, ddl := range Schema {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("migrate: %w\n%s", err, ddl)
		}
	}
	return nil
}

// Schema holds the DDL for every table. CHECK constraints MUST match the
// enum whitelists in the validation package.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT,
		role TEXT DEFAULT 'user',
		active INTEGER DEFAULT 1,
		last_login TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME NOT NULL,
		last_activity DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role TEXT NOT NULL,
		module TEXT NOT NULL,
		action TEXT NOT NULL,
		UNIQUE(role, module, action)
	)`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT DEFAULT '',
		contact_person TEXT DEFAULT '',
		contact_number TEXT DEFAULT '',
		tin TEXT DEFAULT '',
		status TEXT DEFAULT 'active' CHECK(status IN ('active','inactive','blacklisted')),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_requests (
		id TEXT PRIMARY KEY,
		purpose TEXT DEFAULT '',
		department TEXT DEFAULT '',
		mode_procurement TEXT DEFAULT 'small_value' CHECK(mode_procurement IN ('small_value','shopping','public_bidding','direct_contracting')),
		status TEXT DEFAULT 'draft' CHECK(status IN ('draft','pending','approved_cash_available','approved','for_canvassing','for_recanvassing','for_abstract','partially_awarded','awarded','completed','disapproved','cancelled')),
		rfq_batch INTEGER DEFAULT 1,
		total_estimated_cost REAL DEFAULT 0,
		status_timestamps TEXT DEFAULT '{}',
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_request_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pr_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		description TEXT NOT NULL,
		unit TEXT DEFAULT 'pc',
		qty REAL NOT NULL CHECK(qty > 0),
		unit_cost REAL NOT NULL CHECK(unit_cost >= 0),
		estimated_cost REAL NOT NULL DEFAULT 0,
		awarded_to_id TEXT,
		FOREIGN KEY (pr_id) REFERENCES purchase_requests(id) ON DELETE CASCADE,
		FOREIGN KEY (awarded_to_id) REFERENCES suppliers(id)
	)`,
	`CREATE TABLE IF NOT EXISTS request_quotations (
		id TEXT PRIMARY KEY,
		pr_id TEXT NOT NULL,
		batch INTEGER NOT NULL,
		supplier_id TEXT,
		status TEXT DEFAULT 'draft' CHECK(status IN ('draft','canvassing','completed','cancelled')),
		canvassers TEXT DEFAULT '[]',
		status_timestamps TEXT DEFAULT '{}',
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (pr_id) REFERENCES purchase_requests(id) ON DELETE CASCADE,
		FOREIGN KEY (supplier_id) REFERENCES suppliers(id)
	)`,
	`CREATE TABLE IF NOT EXISTS request_quotation_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rfq_id TEXT NOT NULL,
		pr_item_id INTEGER NOT NULL,
		included INTEGER DEFAULT 1,
		unit_cost REAL DEFAULT 0,
		total_cost REAL DEFAULT 0,
		brand_model TEXT DEFAULT '',
		FOREIGN KEY (rfq_id) REFERENCES request_quotations(id) ON DELETE CASCADE,
		FOREIGN KEY (pr_item_id) REFERENCES purchase_request_items(id)
	)`,
	`CREATE TABLE IF NOT EXISTS abstract_quotations (
		id TEXT PRIMARY KEY,
		pr_id TEXT NOT NULL,
		batch INTEGER NOT NULL,
		status TEXT DEFAULT 'draft' CHECK(status IN ('draft','approved','awarded')),
		status_timestamps TEXT DEFAULT '{}',
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (pr_id) REFERENCES purchase_requests(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS abstract_quotation_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		aoq_id TEXT NOT NULL,
		pr_item_id INTEGER NOT NULL,
		included INTEGER DEFAULT 1,
		document_type TEXT DEFAULT 'po' CHECK(document_type IN ('po','jo')),
		awardee_id TEXT,
		FOREIGN KEY (aoq_id) REFERENCES abstract_quotations(id) ON DELETE CASCADE,
		FOREIGN KEY (pr_item_id) REFERENCES purchase_request_items(id),
		FOREIGN KEY (awardee_id) REFERENCES suppliers(id)
	)`,
	`CREATE TABLE IF NOT EXISTS abstract_quotation_details (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		aoq_item_id INTEGER NOT NULL,
		supplier_id TEXT NOT NULL,
		unit_cost REAL NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0,
		brand_model TEXT DEFAULT '',
		FOREIGN KEY (aoq_item_id) REFERENCES abstract_quotation_items(id) ON DELETE CASCADE,
		FOREIGN KEY (supplier_id) REFERENCES suppliers(id)
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		pr_id TEXT NOT NULL,
		supplier_id TEXT NOT NULL,
		document_type TEXT DEFAULT 'po' CHECK(document_type IN ('po','jo')),
		mode_procurement TEXT DEFAULT 'small_value',
		status TEXT DEFAULT 'draft' CHECK(status IN ('draft','pending','approved','issued','for_delivery','delivered','cancelled')),
		status_timestamps TEXT DEFAULT '{}',
		created_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (pr_id) REFERENCES purchase_requests(id) ON DELETE CASCADE,
		FOREIGN KEY (supplier_id) REFERENCES suppliers(id)
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_order_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		po_id TEXT NOT NULL,
		pr_item_id INTEGER NOT NULL,
		description TEXT DEFAULT '',
		unit TEXT DEFAULT 'pc',
		qty REAL NOT NULL,
		unit_cost REAL NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0,
		brand_model TEXT DEFAULT '',
		FOREIGN KEY (po_id) REFERENCES purchase_orders(id) ON DELETE CASCADE,
		FOREIGN KEY (pr_item_id) REFERENCES purchase_request_items(id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		username TEXT DEFAULT 'system',
		action TEXT NOT NULL,
		module TEXT NOT NULL,
		record_id TEXT NOT NULL,
		summary TEXT DEFAULT '',
		payload TEXT DEFAULT '{}',
		is_error INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT DEFAULT '',
		record_id TEXT DEFAULT '',
		module TEXT DEFAULT '',
		read_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_rfq_active_supplier
		ON request_quotations(pr_id, batch, supplier_id)
		WHERE status != 'cancelled'`,
}

// SeedAdmin creates the default admin user if no users exist.
func SeedAdmin(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = db.Exec("INSERT INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)",
		"admin", string(hash), "Administrator", "admin")
	return err
}

// Queryer is satisfied by both *sql.DB and *sql.Tx so document numbers
// can be reserved inside the command transaction.
type Queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

// NextID generates the next document number for a table, e.g. PR-2026-0001.
func NextID(q Queryer, prefix, table string, digits int) string {
	year := time.Now().Format("2006")
	pattern := prefix + "-" + year + "-%"
	var maxID sql.NullString
	q.QueryRow("SELECT id FROM "+table+" WHERE id LIKE ? ORDER BY id DESC LIMIT 1", pattern).Scan(&maxID)

	next := 1
	if maxID.Valid {
		parts := strings.Split(maxID.String, "-")
		if len(parts) >= 3 {
			if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
				next = n + 1
			}
		}
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, year, digits, next)
}

// NS converts a *string to sql.NullString.
func NS(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// SP converts a sql.NullString to *string.
func SP(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Now returns the timestamp format used across all tables.
func Now() string {
	return time.Now().Format("2006-01-02 15:04:05")
}
