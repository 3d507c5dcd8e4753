package testutil

import "testing"

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}

		cfg := DefaultTestDBConfig()
		want := TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "paperdigest",
			Password: "paperdigest",
			DBName:   "paperdigest",
		}
		if cfg != want {
			t.Errorf("DefaultTestDBConfig() = %+v, want %+v", cfg, want)
		}
	})

	t.Run("respects TEST_DB_* overrides", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_NAME", "ci")

		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" || cfg.Port != "5432" || cfg.DBName != "ci" {
			t.Errorf("unexpected config %+v", cfg)
		}
	})
}

func TestTextPDF(t *testing.T) {
	pdf := TextPDF(t, "Sleep and memory", "A longer paragraph about consolidation.")
	if len(pdf) < 100 || string(pdf[:5]) != "%PDF-" {
		t.Fatalf("TextPDF() did not produce a PDF document (%d bytes)", len(pdf))
	}
}

func TestTestDBConfig_DSN(t *testing.T) {
	t.Setenv("TEST_DB_SSLMODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss", DBName: "digests"}

	if got, want := cfg.DSN(""), "postgres://u:p%40ss@db:5432/digests?sslmode=disable"; got != want {
		t.Errorf("DSN(\"\") = %q, want %q", got, want)
	}
	if got, want := cfg.DSN("t_abcd"), "postgres://u:p%40ss@db:5432/digests?search_path=t_abcd%2Cpublic&sslmode=disable"; got != want {
		t.Errorf("DSN(schema) = %q, want %q", got, want)
	}
}
