package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/avestan-labs/pigeon/pkg/config"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{input: 0, want: "0 B"},
		{input: 1023, want: "1023 B"},
		{input: 1024, want: "1.0 KiB"},
		{input: 1536, want: "1.5 KiB"},
		{input: 1048576, want: "1.0 MiB"},
	}

	for _, tt := range tests {
		got := formatBytes(tt.input)
		if got != tt.want {
			t.Fatalf("formatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func seedStatusDB(t *testing.T, path string) {
	t.Helper()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT, phone_number TEXT, password_hash TEXT);
		CREATE TABLE messages (id INTEGER PRIMARY KEY AUTOINCREMENT, sender_id INTEGER, receiver_id INTEGER, content TEXT, created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP);
		CREATE TABLE contacts (id INTEGER PRIMARY KEY AUTOINCREMENT, owner_id INTEGER, peer_id INTEGER, nickname TEXT);
		CREATE TABLE push_subscriptions (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, endpoint TEXT, p256dh TEXT, auth TEXT, revoked_at TIMESTAMP);

		INSERT INTO users (username, phone_number, password_hash) VALUES ('alice', '+15550001', 'h'), ('bob', '+15550002', 'h');
		INSERT INTO messages (sender_id, receiver_id, content) VALUES (1, 2, 'hi'), (2, 1, 'hey');
		INSERT INTO contacts (owner_id, peer_id, nickname) VALUES (1, 2, 'bob');
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth) VALUES (1, 'https://push.example/a', 'k', 'a');
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, revoked_at) VALUES (2, 'https://push.example/b', 'k', 'a', CURRENT_TIMESTAMP);
	`)
	if err != nil {
		t.Fatalf("seed db: %v", err)
	}
}

func TestCollectStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pigeon.db")
	seedStatusDB(t, dbPath)

	cfg := &config.Config{
		Environment:  "test",
		Port:         "8080",
		DatabasePath: dbPath,
	}

	status := collectStatus(cfg)

	if status.DBWarning != "" {
		t.Fatalf("unexpected warning: %q", status.DBWarning)
	}
	if !status.DBMetricsReady {
		t.Fatal("expected DBMetricsReady")
	}
	if status.Users != 2 {
		t.Errorf("Users = %d, want 2", status.Users)
	}
	if status.Messages != 2 {
		t.Errorf("Messages = %d, want 2", status.Messages)
	}
	if status.Contacts != 1 {
		t.Errorf("Contacts = %d, want 1", status.Contacts)
	}
	if status.PushSubs != 1 {
		t.Errorf("PushSubs = %d, want 1 (revoked rows excluded)", status.PushSubs)
	}
	if status.LatestMessageAt == "" {
		t.Error("expected LatestMessageAt to be set")
	}
	if status.DBSize <= 0 {
		t.Errorf("DBSize = %d, want > 0", status.DBSize)
	}
}

func TestCollectStatusMissingDatabase(t *testing.T) {
	cfg := &config.Config{
		Environment:  "test",
		Port:         "8080",
		DatabasePath: filepath.Join(t.TempDir(), "missing.db"),
	}

	status := collectStatus(cfg)

	if status.DBWarning == "" {
		t.Fatal("expected warning for missing database")
	}
	if status.DBMetricsReady {
		t.Fatal("metrics must not be marked ready without a database")
	}
}

func TestRunStatusJSON(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pigeon.db")
	seedStatusDB(t, dbPath)

	cfg := &config.Config{
		Environment:  "test",
		Port:         "8080",
		DatabasePath: dbPath,
	}

	var out bytes.Buffer
	if err := runStatus(cfg, &out, true); err != nil {
		t.Fatalf("runStatus returned error: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if payload["Environment"] != "test" {
		t.Errorf("unexpected environment: %#v", payload["Environment"])
	}
}

func TestRunStatusHuman(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "pigeon.db")
	seedStatusDB(t, dbPath)

	cfg := &config.Config{
		Environment:  "test",
		Port:         "8080",
		DatabasePath: dbPath,
	}

	var out bytes.Buffer
	if err := runStatus(cfg, &out, false); err != nil {
		t.Fatalf("runStatus returned error: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Pigeon status", "Users:", "Messages:", "Contacts:"} {
		if !strings.Contains(text, want) {
			t.Errorf("status output missing %q:\n%s", want, text)
		}
	}
}
