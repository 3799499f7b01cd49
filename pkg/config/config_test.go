package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var novaEnvKeys = []string{
	"NOVA_DATA_DIR",
	"NOVA_STORE",
	"NOVA_MODEL",
	"NOVA_VOICE",
	"NOVA_ENDPOINT",
	"NOVA_THINKING",
	"NOVA_THINKING_BUDGET",
	"NOVA_SILENCE_DURATION",
	"NOVA_GOOGLE_SEARCH",
	"NOVA_HANDSHAKE_TIMEOUT",
	"NOVA_WRITE_TIMEOUT",
	"NOVA_DEDUP_WINDOW",
	"NOVA_TOOL_TIMEOUT",
	"NOVA_TURN_OFF_DELAY",
	"NOVA_ALLOW_SHELL",
	"NOVA_CONFIRM_MESSAGES",
	"NOVA_POLICY_FILE",
	"NOVA_HTTP_ALLOW_PRIVATE",
	"NOVA_HTTP_TIMEOUT",
	"NOVA_AUDIO",
	"NOVA_PLAYBACK_MARGIN",
	"NOVA_FFMPEG",
	"NOVA_FFPLAY",
	"NOVA_DISABLE_KEYRING",
	"NOVA_PERSONA_FILE",
	"NOVA_LOG_LEVEL",
	"NOVA_LOG_FORMAT",
}

func clearNovaEnv(t *testing.T) {
	t.Helper()
	for _, key := range novaEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearNovaEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Store != StoreFile {
		t.Fatalf("Store = %q, want file", cfg.Store)
	}
	if cfg.Model != "gemini-2.5-flash-native-audio-preview-12-2025" {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if !cfg.ThinkingEnabled || cfg.ThinkingBudget != 2048 {
		t.Fatalf("thinking = %v/%d, want true/2048", cfg.ThinkingEnabled, cfg.ThinkingBudget)
	}
	if cfg.DedupWindow != 5*time.Second {
		t.Fatalf("DedupWindow = %v, want 5s", cfg.DedupWindow)
	}
	if cfg.ToolTimeout != 10*time.Second {
		t.Fatalf("ToolTimeout = %v, want 10s", cfg.ToolTimeout)
	}
	if cfg.TurnOffDelay != 2*time.Second {
		t.Fatalf("TurnOffDelay = %v, want 2s", cfg.TurnOffDelay)
	}
	if cfg.PlaybackMargin != 50*time.Millisecond {
		t.Fatalf("PlaybackMargin = %v, want 50ms", cfg.PlaybackMargin)
	}
	if cfg.Audio != AudioAuto {
		t.Fatalf("Audio = %q, want auto", cfg.Audio)
	}
	if !cfg.AllowShell || cfg.AllowPrivateHTTP {
		t.Fatalf("AllowShell=%v AllowPrivateHTTP=%v", cfg.AllowShell, cfg.AllowPrivateHTTP)
	}
	if cfg.DataDir == "" {
		t.Fatal("DataDir must default to a non-empty path")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearNovaEnv(t)
	t.Setenv("NOVA_STORE", "SQLite")
	t.Setenv("NOVA_DATA_DIR", "/tmp/nova-test")
	t.Setenv("NOVA_THINKING", "off")
	t.Setenv("NOVA_DEDUP_WINDOW", "2s")
	t.Setenv("NOVA_TOOL_TIMEOUT", "0s")
	t.Setenv("NOVA_AUDIO", "none")
	t.Setenv("NOVA_LOG_FORMAT", "json")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Store != StoreSQLite {
		t.Fatalf("Store = %q", cfg.Store)
	}
	if cfg.DatabasePath() != filepath.Join("/tmp/nova-test", "nova.db") {
		t.Fatalf("DatabasePath = %q", cfg.DatabasePath())
	}
	if cfg.ThinkingEnabled {
		t.Fatal("ThinkingEnabled should be false")
	}
	if cfg.DedupWindow != 2*time.Second {
		t.Fatalf("DedupWindow = %v", cfg.DedupWindow)
	}
	if cfg.DispatcherTimeout() >= 0 {
		t.Fatalf("zero tool timeout must disable the bound, got %v", cfg.DispatcherTimeout())
	}
	if cfg.Audio != AudioNone || cfg.LogFormat != "json" {
		t.Fatalf("Audio=%q LogFormat=%q", cfg.Audio, cfg.LogFormat)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	cases := map[string]string{
		"NOVA_STORE":           "postgres",
		"NOVA_AUDIO":           "alsa",
		"NOVA_THINKING_BUDGET": "-1",
		"NOVA_DEDUP_WINDOW":    "-1s",
		"NOVA_LOG_FORMAT":      "xml",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			clearNovaEnv(t)
			t.Setenv(key, val)
			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", key, val)
			}
		})
	}
}

func TestLoadFromEnv_BadValuesFallBack(t *testing.T) {
	clearNovaEnv(t)
	t.Setenv("NOVA_TOOL_TIMEOUT", "soon")
	t.Setenv("NOVA_THINKING", "maybe")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.ToolTimeout != 10*time.Second || !cfg.ThinkingEnabled {
		t.Fatalf("ToolTimeout=%v ThinkingEnabled=%v", cfg.ToolTimeout, cfg.ThinkingEnabled)
	}
}

func TestLoadPersona(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nova.yaml")
	content := "assistant_name: Friday\nvoice_tone: professional\nvoice: Puck\nextra_instructions: |\n  Prefer metric units.\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := LoadPersona(path)
	if err != nil {
		t.Fatalf("LoadPersona error: %v", err)
	}
	if p.AssistantName != "Friday" || p.VoiceTone != "professional" || p.Voice != "Puck" {
		t.Fatalf("persona = %+v", p)
	}
	if p.ExtraInstructions != "Prefer metric units.\n" {
		t.Fatalf("ExtraInstructions = %q", p.ExtraInstructions)
	}

	missing, err := LoadPersona(filepath.Join(dir, "missing.yaml"))
	if err != nil || missing != (Persona{}) {
		t.Fatalf("missing persona = %+v, err = %v", missing, err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("voice_tone: pirate\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPersona(bad); err == nil {
		t.Fatal("expected invalid tone error")
	}
}
