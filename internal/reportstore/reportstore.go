// Package reportstore persists InitializationReport history to Postgres
// so an embedder can inspect past startup runs after the fact (spec §9
// supplements "report persistence/retrieval" as a dropped-feature
// addition). It is grounded on the teacher's internal/db/database.go: the
// Config shape and host/port/user validation (SQL-injection hardening via
// allow-lists on the host, port, user, database name and SSL mode; the
// password is interpolated unchecked) are carried over as-is,
// since that validation logic is connection-target-agnostic. The pool
// sizing is not: a startup_reports row is written once per host Run and
// read only when an embedder inspects history, nowhere near the
// per-request churn the teacher's session/template pool was sized for, so
// New uses a smaller pool held open longer rather than the teacher's
// high-turnover numbers (see resolvecache, which does face that churn).
package reportstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Config holds the Postgres connection parameters.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

var (
	hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
	identRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("reportstore: host cannot be empty")
	}
	if net.ParseIP(cfg.Host) == nil && !hostnameRegex.MatchString(cfg.Host) {
		return fmt.Errorf("reportstore: invalid host: %s", cfg.Host)
	}
	if cfg.Port == "" {
		return fmt.Errorf("reportstore: port cannot be empty")
	}
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("reportstore: invalid port: %s", cfg.Port)
	}
	if cfg.User == "" || !identRegex.MatchString(cfg.User) {
		return fmt.Errorf("reportstore: invalid user: %s", cfg.User)
	}
	if cfg.DBName == "" || !identRegex.MatchString(cfg.DBName) {
		return fmt.Errorf("reportstore: invalid database name: %s", cfg.DBName)
	}
	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if cfg.SSLMode != "" {
		ok := false
		for _, mode := range validSSLModes {
			if cfg.SSLMode == mode {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("reportstore: invalid ssl mode: %s (must be one of: %s)", cfg.SSLMode, strings.Join(validSSLModes, ", "))
		}
	}
	return nil
}

// Store persists and retrieves startup report history.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and ensures the schema exists.
func New(cfg Config) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("reportstore: open: %w", err)
	}

	// A handful of connections held open for most of the process
	// lifetime comfortably covers one Record per Run plus the occasional
	// Latest/Get from an embedder's admin surface.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("reportstore: ping: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewForTesting wraps an existing *sql.DB (a sqlmock connection, typically)
// without opening a real connection or running migrations.
func NewForTesting(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS startup_reports (
			id SERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			aborted BOOLEAN NOT NULL,
			aborted_at TEXT NOT NULL DEFAULT '',
			report JSONB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("reportstore: migrate: %w", err)
	}
	return nil
}

// Record appends a report to the history table. The caller supplies the
// orchestrator report as an untyped value, which Record marshals to JSON,
// so this package has no compile-time dependency on internal/orchestrator.
func (s *Store) Record(aborted bool, abortedAt string, report any) (int64, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("reportstore: marshal report: %w", err)
	}

	var id int64
	err = s.db.QueryRow(
		`INSERT INTO startup_reports (aborted, aborted_at, report) VALUES ($1, $2, $3) RETURNING id`,
		aborted, abortedAt, payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reportstore: insert: %w", err)
	}
	return id, nil
}

// Record is a row retrieved from startup_reports.
type Record struct {
	ID         int64           `json:"id"`
	RecordedAt time.Time       `json:"recordedAt"`
	Aborted    bool            `json:"aborted"`
	AbortedAt  string          `json:"abortedAt,omitempty"`
	Report     json.RawMessage `json:"report"`
}

// Latest returns the most recent n reports, newest first.
func (s *Store) Latest(n int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, recorded_at, aborted, aborted_at, report FROM startup_reports ORDER BY id DESC LIMIT $1`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("reportstore: query latest: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RecordedAt, &r.Aborted, &r.AbortedAt, &r.Report); err != nil {
			return nil, fmt.Errorf("reportstore: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns a single report by id.
func (s *Store) Get(id int64) (*Record, error) {
	var r Record
	err := s.db.QueryRow(
		`SELECT id, recorded_at, aborted, aborted_at, report FROM startup_reports WHERE id = $1`, id,
	).Scan(&r.ID, &r.RecordedAt, &r.Aborted, &r.AbortedAt, &r.Report)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reportstore: get %d: %w", id, err)
	}
	return &r, nil
}
