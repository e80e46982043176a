package config

import "testing"

func TestDatabaseDriver(t *testing.T) {
	cases := map[string]string{
		"":           "sqlite3",
		"SQLite3":    "sqlite3",
		"sqlite":     "sqlite",
		"postgresql": "postgres",
		"pgx":        "pgx",
	}
	for raw, want := range cases {
		cfg := &Config{Database: DatabaseConfig{Driver: raw}}
		got, err := cfg.DatabaseDriver()
		if err != nil {
			t.Fatalf("driver %q: unexpected error %v", raw, err)
		}
		if got != want {
			t.Fatalf("driver %q: expected %q, got %q", raw, want, got)
		}
	}

	cfg := &Config{Database: DatabaseConfig{Driver: "oracle"}}
	if _, err := cfg.DatabaseDriver(); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestDatabaseURL(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{
		Driver:   "postgres",
		Host:     "db",
		Port:     5432,
		Name:     "chordnet",
		User:     "u",
		Password: "p",
		SSLMode:  "disable",
	}}
	got, err := cfg.DatabaseURL()
	if err != nil {
		t.Fatal(err)
	}
	if want := "postgres://u:p@db:5432/chordnet?sslmode=disable"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	cfg.Database.DSN = "postgres://override"
	if got, _ := cfg.DatabaseURL(); got != "postgres://override" {
		t.Fatalf("expected dsn override, got %q", got)
	}

	sqlite := &Config{Database: DatabaseConfig{Driver: "sqlite3"}}
	if _, err := sqlite.DatabaseURL(); err == nil {
		t.Fatal("expected sqlite without dsn to fail")
	}
}
