package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// VoiceConfig holds transcription defaults.
type VoiceConfig struct {
	LanguageCode string `json:"language_code"` // BCP 47 tag, e.g. "en-US"
	AudioFormat  string `json:"audio_format"`  // container format of captured audio
}

// SocketConfig holds the timing knobs of the duplex connection.
type SocketConfig struct {
	DialTimeoutSeconds      int `json:"dial_timeout_seconds"`
	WriteTimeoutSeconds     int `json:"write_timeout_seconds"`
	PingIntervalSeconds     int `json:"ping_interval_seconds"`
	PongWaitSeconds         int `json:"pong_wait_seconds"` // must exceed the ping interval
	RoundTripTimeoutSeconds int `json:"round_trip_timeout_seconds"`
}

// Config represents application configuration
type Config struct {
	ServerURL       string       `json:"server_url"`
	SocketURL       string       `json:"socket_url"` // derived from ServerURL when empty
	HTTPTimeout     int          `json:"http_timeout_seconds"`
	LogLevel        string       `json:"log_level"` // debug, info, warn, error, none
	LogPath         string       `json:"-"`
	StateDir        string       `json:"-"`
	Model           string       `json:"model,omitempty"`
	Mode            string       `json:"mode,omitempty"` // "", "agent" or "deep_research"
	EnableStreaming bool         `json:"enable_streaming"`
	EnableWebSearch bool         `json:"enable_web_search"`
	ImprovePrompt   bool         `json:"improve_prompt"`
	Socket          SocketConfig `json:"socket"`
	Voice           VoiceConfig  `json:"voice"`
}

func defaultConfigDir() string {
	switch runtime.GOOS {
	case "linux":
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "halcyon")
	case "windows":
		if appData := strings.TrimSpace(os.Getenv("APPDATA")); appData != "" {
			return filepath.Join(appData, "halcyon")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Roaming", "halcyon")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "halcyon")
	}
}

func defaultStateDir() string {
	switch runtime.GOOS {
	case "linux":
		if stateHome := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); stateHome != "" {
			return filepath.Join(stateHome, "halcyon")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".local", "state", "halcyon")
	case "windows":
		if localAppData := strings.TrimSpace(os.Getenv("LOCALAPPDATA")); localAppData != "" {
			return filepath.Join(localAppData, "halcyon")
		}
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, "AppData", "Local", "halcyon")
	default:
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, ".config", "halcyon")
	}
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	stateDir := defaultStateDir()

	return &Config{
		ServerURL:       "http://localhost:8765",
		SocketURL:       "",
		HTTPTimeout:     30,
		LogLevel:        "info",
		LogPath:         filepath.Join(stateDir, "halcyon.log"),
		StateDir:        stateDir,
		EnableStreaming: true,
		Socket: SocketConfig{
			DialTimeoutSeconds:      10,
			WriteTimeoutSeconds:     10,
			PingIntervalSeconds:     54,
			PongWaitSeconds:         60,
			RoundTripTimeoutSeconds: 10,
		},
		Voice: VoiceConfig{
			LanguageCode: "en-US",
			AudioFormat:  "webm",
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Start with default config
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return config, nil
		}
		return nil, err
	}

	// Unmarshal into default config (overrides only provided fields)
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	// Ensure critical fields have defaults if still empty
	stateDir := defaultStateDir()
	if config.ServerURL == "" {
		config.ServerURL = "http://localhost:8765"
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 30
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogPath == "" {
		config.LogPath = filepath.Join(stateDir, "halcyon.log")
	}
	if config.StateDir == "" {
		config.StateDir = stateDir
	}
	if config.Socket.DialTimeoutSeconds <= 0 {
		config.Socket.DialTimeoutSeconds = 10
	}
	if config.Socket.WriteTimeoutSeconds <= 0 {
		config.Socket.WriteTimeoutSeconds = 10
	}
	if config.Socket.PingIntervalSeconds <= 0 {
		config.Socket.PingIntervalSeconds = 54
	}
	if config.Socket.PongWaitSeconds <= config.Socket.PingIntervalSeconds {
		config.Socket.PongWaitSeconds = config.Socket.PingIntervalSeconds + 6
	}
	if config.Socket.RoundTripTimeoutSeconds <= 0 {
		config.Socket.RoundTripTimeoutSeconds = 10
	}
	if config.Voice.LanguageCode == "" {
		config.Voice.LanguageCode = "en-US"
	}
	if config.Voice.AudioFormat == "" {
		config.Voice.AudioFormat = "webm"
	}

	return config, nil
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.json")
}

// ResolveSocketURL returns the websocket endpoint, deriving it from the
// HTTP server URL when no explicit one is configured.
func (c *Config) ResolveSocketURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	url := c.ServerURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return strings.TrimRight(url, "/") + "/socket"
}

// HTTPTimeoutDuration returns the HTTP client timeout.
func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

// DialTimeout returns the socket dial timeout.
func (s SocketConfig) DialTimeout() time.Duration {
	return time.Duration(s.DialTimeoutSeconds) * time.Second
}

// WriteTimeout returns the per-write deadline.
func (s SocketConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// PingInterval returns the keepalive ping period.
func (s SocketConfig) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalSeconds) * time.Second
}

// PongWait returns the read liveness deadline.
func (s SocketConfig) PongWait() time.Duration {
	return time.Duration(s.PongWaitSeconds) * time.Second
}

// RoundTripTimeout returns the request/acknowledgement deadline.
func (s SocketConfig) RoundTripTimeout() time.Duration {
	return time.Duration(s.RoundTripTimeoutSeconds) * time.Second
}
