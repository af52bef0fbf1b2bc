package viewer

import (
	"context"
	"flag"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.TerminalID != "pos-demo" {
		t.Fatalf("expected default terminal pos-demo, got %q", cfg.TerminalID)
	}
	if cfg.POSURL != "http://localhost:8080" {
		t.Fatalf("expected default pos url, got %q", cfg.POSURL)
	}
	if cfg.ChannelURL != "" {
		t.Fatalf("channel override should default empty, got %q", cfg.ChannelURL)
	}
	if cfg.RetryInterval != 5*time.Second {
		t.Fatalf("expected default retry interval 5s, got %s", cfg.RetryInterval)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("POSLIVE_VIEWER_TERMINAL_ID", "term-env")
	t.Setenv("POSLIVE_VIEWER_POS_URL", "http://pos:8080")

	fs := flag.NewFlagSet("viewer", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-terminal", "term-flag", "-channel", "ws://channel:9091/ws"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.TerminalID != "term-flag" {
		t.Fatalf("expected flag override term-flag, got %q", cfg.TerminalID)
	}
	if cfg.POSURL != "http://pos:8080" {
		t.Fatalf("expected env pos url, got %q", cfg.POSURL)
	}
	if cfg.ChannelURL != "ws://channel:9091/ws" {
		t.Fatalf("expected channel override, got %q", cfg.ChannelURL)
	}
}

func TestFetchTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pos/term-1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"terminal_id":"term-1","account_name":"Chidi Stores","channel_url":"ws://channel:8091/ws"}`))
	}))
	defer server.Close()

	detail, err := fetchTerminal(context.Background(), server.URL, "term-1")
	if err != nil {
		t.Fatalf("fetch terminal: %v", err)
	}
	if detail.ChannelURL != "ws://channel:8091/ws" {
		t.Fatalf("channel url = %q", detail.ChannelURL)
	}

	if _, err := fetchTerminal(context.Background(), server.URL, "term-missing"); err == nil {
		t.Fatal("missing terminal should fail")
	}
}

func TestFetchTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/pos/term-1/transactions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":2,"terminal_id":"term-1","amount":200,"beneficiary":"Mary Jones","bank_name":"GTBank","created_at":"2026-08-31T10:01:00Z","updated_at":"2026-08-31T10:01:00Z"},
			{"id":1,"terminal_id":"term-1","amount":100,"beneficiary":"John Smith","bank_name":"Wema Bank","created_at":"2026-08-31T10:00:00Z","updated_at":"2026-08-31T10:00:00Z"}
		]`))
	}))
	defer server.Close()

	records, err := fetchTransactions(context.Background(), server.URL, "term-1")
	if err != nil {
		t.Fatalf("fetch transactions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Amount != 200 || records[1].Amount != 100 {
		t.Fatalf("records out of order: %+v", records)
	}
	if records[0].Beneficiary != "Mary Jones" {
		t.Fatalf("beneficiary = %q", records[0].Beneficiary)
	}
}
