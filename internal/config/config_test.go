package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "http://localhost:8765" {
		t.Errorf("Expected default server URL, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if !cfg.EnableStreaming {
		t.Error("Expected streaming enabled by default")
	}
}

func TestLoadOverridesOnlyProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"server_url": "http://backend:9000", "log_level": "debug"}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "http://backend:9000" {
		t.Errorf("Expected overridden server URL, got %s", cfg.ServerURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected overridden log level, got %s", cfg.LogLevel)
	}
	// Untouched fields keep their defaults.
	if cfg.Socket.DialTimeoutSeconds != 10 {
		t.Errorf("Expected default dial timeout, got %d", cfg.Socket.DialTimeoutSeconds)
	}
	if cfg.Voice.LanguageCode != "en-US" {
		t.Errorf("Expected default language code, got %s", cfg.Voice.LanguageCode)
	}
}

func TestLoadCorrectsPongWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"socket": {"ping_interval_seconds": 30, "pong_wait_seconds": 20}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Socket.PongWaitSeconds <= cfg.Socket.PingIntervalSeconds {
		t.Errorf("Expected pong wait above ping interval, got %d <= %d",
			cfg.Socket.PongWaitSeconds, cfg.Socket.PingIntervalSeconds)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.ServerURL = "http://backend:9000"
	cfg.Mode = "deep_research"
	cfg.EnableWebSearch = true
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ServerURL != "http://backend:9000" {
		t.Errorf("Expected saved server URL, got %s", loaded.ServerURL)
	}
	if loaded.Mode != "deep_research" {
		t.Errorf("Expected saved mode, got %s", loaded.Mode)
	}
	if !loaded.EnableWebSearch {
		t.Error("Expected web search flag to survive the round trip")
	}
}

func TestResolveSocketURL(t *testing.T) {
	tests := []struct {
		name      string
		serverURL string
		socketURL string
		want      string
	}{
		{"explicit", "http://a:1", "ws://b:2/sock", "ws://b:2/sock"},
		{"derived http", "http://localhost:8765", "", "ws://localhost:8765/socket"},
		{"derived https", "https://backend.example.com", "", "wss://backend.example.com/socket"},
		{"trailing slash", "http://localhost:8765/", "", "ws://localhost:8765/socket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ServerURL: tt.serverURL, SocketURL: tt.socketURL}
			if got := cfg.ResolveSocketURL(); got != tt.want {
				t.Errorf("ResolveSocketURL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"log_level": "info"}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, nil, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"log_level": "debug"}`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.LogLevel != "debug" {
			t.Errorf("Expected reloaded log level debug, got %s", cfg.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for reload")
	}
}

func TestWatcherIgnoresInvalidRevision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	reloaded := make(chan *Config, 1)
	w := NewWatcher(path, nil, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	select {
	case <-reloaded:
		t.Fatal("Invalid revision must not reach the callback")
	case <-time.After(500 * time.Millisecond):
	}
}
