package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/paper-digest/internal/migrate"
)

// TestingTB is the subset of testing.TB the fixtures need.
type TestingTB interface {
	Helper()
	Cleanup(func())
	Failed() bool
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// TestDBConfig addresses the Postgres instance used by integration tests.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* overrides. The default port 55432 matches the local
// docker-compose test profile; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "paperdigest"),
		Password: envOr("TEST_DB_PASSWORD", "paperdigest"),
		DBName:   envOr("TEST_DB_NAME", "paperdigest"),
	}
}

// DSN renders a pgx connection string. A non-empty schema is put first on the search_path.
func (c TestDBConfig) DSN(schema string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", envOr("TEST_DB_SSLMODE", "disable"))
	if schema != "" {
		q.Set("search_path", schema+",public")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// SkipIfNoTestDB skips the test when Postgres is unreachable. With TEST_REQUIRE_DB or
// TEST_REQUIRE_INFRA set it fails instead.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN(""))
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = db.PingContext(ctx)
		cancel()
		closeQuietly(t, "ping db", db)
	}
	if err == nil {
		return
	}
	if envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") {
		t.Fatal("test database not available:", err)
	}
	t.Skip("test database not available:", err)
}

// WithAutoDB runs fn against a migrated digest_jobs schema. With TEST_DB_EPHEMERAL set each
// test gets its own schema, dropped afterwards; otherwise the shared schema is truncated
// before and after. The job table is dumped to the test log when the test fails.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)

	var db *sql.DB
	if envBool("TEST_DB_EPHEMERAL") {
		db = openEphemeralSchema(t)
	} else {
		db = openSharedSchema(t)
	}
	t.Cleanup(func() {
		if t.Failed() {
			LogJobStates(t, db, "digest_jobs at failure")
		}
	})
	fn(db)
}

func openSharedSchema(t TestingTB) *sql.DB {
	t.Helper()
	db := openDB(t, DefaultTestDBConfig().DSN(""))
	migrateDB(t, db)
	truncateJobs(t, db)
	t.Cleanup(func() {
		truncateJobs(t, db)
		closeQuietly(t, "test db", db)
	})
	return db
}

func openEphemeralSchema(t TestingTB) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()
	admin := openDB(t, cfg.DSN(""))
	schema := schemaName()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeQuietly(t, "admin db", admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}

	db := openDB(t, cfg.DSN(schema))
	db.SetMaxOpenConns(10)
	t.Cleanup(func() {
		closeQuietly(t, "schema db", db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
		closeQuietly(t, "admin db", admin)
	})
	t.Logf("using ephemeral schema %s", schema)
	migrateDB(t, db)
	return db
}

func openDB(t TestingTB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal("open test db:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		closeQuietly(t, "test db", db)
		t.Fatal("ping test db:", err)
	}
	return db
}

func migrateDB(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		t.Fatal("migrate test db:", err)
	}
}

// truncateJobs clears the table. TRUNCATE bypasses the row-level transition trigger.
func truncateJobs(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE digest_jobs"); err != nil {
		t.Fatalf("truncate digest_jobs: %v", err)
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "t_" + strings.ReplaceAll(time.Now().UTC().Format("150405.000000"), ".", "")
	}
	return "t_" + hex.EncodeToString(b)
}

// JobState is one digest_jobs row as seen by LogJobStates.
type JobState struct {
	ID           string
	URL          string
	Status       string
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
}

// LogJobStates writes every digest_jobs row to the test log, oldest first.
func LogJobStates(t TestingTB, db *sql.DB, label string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT id, url, status, started_at, completed_at, error_message
		FROM digest_jobs
		ORDER BY created_at, id
	`)
	if err != nil {
		t.Logf("%s: query job states: %v", label, err)
		return
	}
	defer closeQuietly(t, "job state rows", rows)

	t.Logf("=== %s ===", label)
	n := 0
	for rows.Next() {
		var s JobState
		if err := rows.Scan(&s.ID, &s.URL, &s.Status, &s.StartedAt, &s.CompletedAt, &s.ErrorMessage); err != nil {
			t.Logf("scan job state: %v", err)
			return
		}
		n++
		t.Logf("%s status=%s url=%s started=%v completed=%v error=%q",
			s.ID, s.Status, s.URL, s.StartedAt.Time, s.CompletedAt.Time, s.ErrorMessage.String)
	}
	if err := rows.Err(); err != nil {
		t.Logf("iterate job states: %v", err)
	}
	t.Logf("=== %d jobs ===", n)
}

// TestTime returns a fixed clock value for tests.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

func closeQuietly(t TestingTB, name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		t.Logf("close %s: %v", name, err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}
