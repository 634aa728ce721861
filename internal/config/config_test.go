package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestValidateRequiresKey(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without encryption key")
	}
	cfg.Credentials.EncryptionKey = testKeyHex
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestEncryptionKeyRejectsMalformed(t *testing.T) {
	cfg := Default()
	cfg.Credentials.EncryptionKey = "not-hex"
	if _, err := cfg.EncryptionKey(); err == nil || !strings.Contains(err.Error(), "hex") {
		t.Fatalf("expected hex error, got %v", err)
	}
	cfg.Credentials.EncryptionKey = "abcd" // valid hex, wrong length
	if _, err := cfg.EncryptionKey(); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected length error, got %v", err)
	}
	cfg.Credentials.EncryptionKey = testKeyHex
	key, err := cfg.EncryptionKey()
	if err != nil || len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d %v", len(key), err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vibegraph.yaml")
	cfg := Default()
	cfg.Account.Username = "vibebot"
	cfg.Ingestion.TickInterval = 10 * time.Minute
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Account.Username != "vibebot" || got.Ingestion.TickInterval != 10*time.Minute {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCanRefreshToken(t *testing.T) {
	cfg := Default()
	if cfg.CanRefreshToken() {
		t.Fatal("refresh should be disabled without client credentials")
	}
	cfg.Credentials.ClientID = "id"
	cfg.Credentials.ClientSecret = "secret"
	if !cfg.CanRefreshToken() {
		t.Fatal("refresh should be enabled")
	}
}
