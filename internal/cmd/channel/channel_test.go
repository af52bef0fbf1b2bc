package channel

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("channel", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8091 {
		t.Fatalf("expected default port 8091, got %d", cfg.Port)
	}
	if cfg.DBPath != "channel.db" {
		t.Fatalf("expected default db path channel.db, got %q", cfg.DBPath)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("POSLIVE_CHANNEL_PORT", "9091")
	t.Setenv("POSLIVE_CHANNEL_DB_PATH", "/tmp/env.db")

	fs := flag.NewFlagSet("channel", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-port", "9092"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9092 {
		t.Fatalf("expected port override 9092, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/env.db" {
		t.Fatalf("expected env db path /tmp/env.db, got %q", cfg.DBPath)
	}
}
