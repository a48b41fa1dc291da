package main

import (
	"testing"
)

func TestParseRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		conn     string
		addr     string
		password string
		tls      bool
	}{
		{name: "url", conn: "redis://:secret@localhost:6380/0", addr: "localhost:6380", password: "secret"},
		{name: "azure", conn: "cache.example.net:6380,password=pw,ssl=True,abortConnect=False", addr: "cache.example.net:6380", password: "pw", tls: true},
		{name: "plain", conn: "localhost:6379", addr: "localhost:6379"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := parseRedisOptions(tt.conn)
			if opts.Addr != tt.addr || opts.Password != tt.password || (opts.TLSConfig != nil) != tt.tls {
				t.Fatalf("unexpected options: addr=%s password=%s tls=%v", opts.Addr, opts.Password, opts.TLSConfig != nil)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("BOARD_COLUMNS", " blocked, ,review ")
	t.Setenv("HISTORY_LIMIT", "25")
	t.Setenv("EXACT_MOVE_UNDO", "true")

	cols := envList("BOARD_COLUMNS")
	if len(cols) != 2 || cols[0] != "blocked" || cols[1] != "review" {
		t.Fatalf("unexpected columns: %v", cols)
	}
	if got := envInt("HISTORY_LIMIT", 0); got != 25 {
		t.Fatalf("unexpected limit: %d", got)
	}
	if !envBool("EXACT_MOVE_UNDO", false) {
		t.Fatalf("expected exact undo")
	}
	if got := envString("UNSET_VALUE_FOR_TEST", "fallback"); got != "fallback" {
		t.Fatalf("unexpected default: %s", got)
	}
}
