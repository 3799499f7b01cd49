package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type StoreBackend string

const (
	StoreFile   StoreBackend = "file"
	StoreSQLite StoreBackend = "sqlite"
)

type AudioBackend string

const (
	AudioAuto      AudioBackend = "auto"
	AudioPortAudio AudioBackend = "portaudio"
	AudioFFmpeg    AudioBackend = "ffmpeg"
	AudioNone      AudioBackend = "none"
)

type Config struct {
	// DataDir holds the JSON documents or the sqlite database.
	DataDir string
	Store   StoreBackend

	// Session
	Model            string
	Voice            string // empty => voice_config.json
	Endpoint         string
	ThinkingEnabled  bool
	ThinkingBudget   int
	SilenceDuration  time.Duration
	GoogleSearch     bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Reconciler
	DedupWindow time.Duration

	// Tools
	ToolTimeout      time.Duration // 0 disables
	TurnOffDelay     time.Duration
	AllowShell       bool
	ConfirmMessages  bool
	PolicyFile       string
	AllowPrivateHTTP bool
	HTTPTimeout      time.Duration

	// Audio
	Audio          AudioBackend
	PlaybackMargin time.Duration
	FFmpegPath     string
	FFplayPath     string

	// Credentials
	DisableKeyring bool

	// Persona overrides (YAML)
	PersonaFile string

	LogLevel  string
	LogFormat string
}

// DefaultDataDir is <user config dir>/nova, or ./.nova when no config dir exists.
func DefaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		return ".nova"
	}
	return filepath.Join(base, "nova")
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		DataDir:          envOr("NOVA_DATA_DIR", DefaultDataDir()),
		Store:            StoreBackend(strings.ToLower(envOr("NOVA_STORE", string(StoreFile)))),
		Model:            envOr("NOVA_MODEL", "gemini-2.5-flash-native-audio-preview-12-2025"),
		Voice:            envOr("NOVA_VOICE", ""),
		Endpoint:         envOr("NOVA_ENDPOINT", ""),
		ThinkingEnabled:  envBoolOr("NOVA_THINKING", true),
		ThinkingBudget:   envIntOr("NOVA_THINKING_BUDGET", 2048),
		SilenceDuration:  envDurationOr("NOVA_SILENCE_DURATION", time.Second),
		GoogleSearch:     envBoolOr("NOVA_GOOGLE_SEARCH", true),
		HandshakeTimeout: envDurationOr("NOVA_HANDSHAKE_TIMEOUT", 15*time.Second),
		WriteTimeout:     envDurationOr("NOVA_WRITE_TIMEOUT", 5*time.Second),
		DedupWindow:      envDurationOr("NOVA_DEDUP_WINDOW", 5*time.Second),
		ToolTimeout:      envDurationOr("NOVA_TOOL_TIMEOUT", 10*time.Second),
		TurnOffDelay:     envDurationOr("NOVA_TURN_OFF_DELAY", 2*time.Second),
		AllowShell:       envBoolOr("NOVA_ALLOW_SHELL", true),
		ConfirmMessages:  envBoolOr("NOVA_CONFIRM_MESSAGES", false),
		PolicyFile:       envOr("NOVA_POLICY_FILE", ""),
		AllowPrivateHTTP: envBoolOr("NOVA_HTTP_ALLOW_PRIVATE", false),
		HTTPTimeout:      envDurationOr("NOVA_HTTP_TIMEOUT", 30*time.Second),
		Audio:            AudioBackend(strings.ToLower(envOr("NOVA_AUDIO", string(AudioAuto)))),
		PlaybackMargin:   envDurationOr("NOVA_PLAYBACK_MARGIN", 50*time.Millisecond),
		FFmpegPath:       envOr("NOVA_FFMPEG", "ffmpeg"),
		FFplayPath:       envOr("NOVA_FFPLAY", "ffplay"),
		DisableKeyring:   envBoolOr("NOVA_DISABLE_KEYRING", false),
		PersonaFile:      envOr("NOVA_PERSONA_FILE", ""),
		LogLevel:         strings.ToLower(envOr("NOVA_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOr("NOVA_LOG_FORMAT", "text")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("NOVA_STORE must be one of file, sqlite (got %q)", c.Store)
	}
	switch c.Audio {
	case AudioAuto, AudioPortAudio, AudioFFmpeg, AudioNone:
	default:
		return fmt.Errorf("NOVA_AUDIO must be one of auto, portaudio, ffmpeg, none (got %q)", c.Audio)
	}
	if c.ThinkingBudget < 0 {
		return fmt.Errorf("NOVA_THINKING_BUDGET must be >= 0")
	}
	if c.DedupWindow < 0 {
		return fmt.Errorf("NOVA_DEDUP_WINDOW must be >= 0")
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("NOVA_TOOL_TIMEOUT must be >= 0")
	}
	if c.SilenceDuration < 0 {
		return fmt.Errorf("NOVA_SILENCE_DURATION must be >= 0")
	}
	if c.PlaybackMargin < 0 {
		return fmt.Errorf("NOVA_PLAYBACK_MARGIN must be >= 0")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("NOVA_LOG_FORMAT must be text or json (got %q)", c.LogFormat)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("NOVA_DATA_DIR must be non-empty")
	}
	return nil
}

// DispatcherTimeout maps ToolTimeout onto the dispatcher convention, where
// a negative value disables the bound.
func (c Config) DispatcherTimeout() time.Duration {
	if c.ToolTimeout == 0 {
		return -1
	}
	return c.ToolTimeout
}

// DatabasePath is the sqlite file inside DataDir.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "nova.db")
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
