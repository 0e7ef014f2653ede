package dbconfig

import "testing"

func TestNewConfigFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "DB_MAX_CONNS"} {
		t.Setenv(key, "")
	}

	cfg := NewConfigFromEnv()
	if cfg.Database != "collectden" {
		t.Errorf("default database %q, want collectden", cfg.Database)
	}
	if cfg.Port != 5432 || cfg.MaxConns != 4 {
		t.Errorf("unexpected defaults: port=%d max_conns=%d", cfg.Port, cfg.MaxConns)
	}
}

func TestNewConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6432")
	t.Setenv("DB_MAX_CONNS", "16")
	t.Setenv("DB_NAME", "auctions")

	cfg := NewConfigFromEnv()
	if cfg.Host != "db.internal" || cfg.Port != 6432 || cfg.MaxConns != 16 || cfg.Database != "auctions" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}

	t.Setenv("DB_PORT", "not-a-number")
	if got := NewConfigFromEnv().Port; got != 5432 {
		t.Errorf("unparsable port should fall back to 5432, got %d", got)
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{
		Host: "localhost", Port: 5432,
		User: "app", Password: "pw",
		Database: "collectden", SSLMode: "disable",
		MaxConns: 8,
	}
	want := "postgres://app:pw@localhost:5432/collectden?sslmode=disable&pool_max_conns=8"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
