package live

import (
	"google.golang.org/genai"
)

const (
	// DefaultModel is the native-audio Live model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"
	// DefaultVoice is the prebuilt voice used when none is configured.
	DefaultVoice = "Charon"
	// DefaultThinkingBudget is the reasoning token budget when thinking is enabled.
	DefaultThinkingBudget = 2048
)

// SessionConfig is fixed for the lifetime of one duplex stream.
type SessionConfig struct {
	// Model is the Live model name, with or without the "models/" prefix.
	Model string `json:"model"`

	// Voice is the prebuilt voice name.
	Voice string `json:"voice"`

	// SystemInstruction is the system prompt text.
	SystemInstruction string `json:"system_instruction,omitempty"`

	// Tools is the catalog the model may invoke.
	Tools []*genai.Tool `json:"tools,omitempty"`

	// Thinking configures reasoning narration.
	Thinking ThinkingConfig `json:"thinking"`

	// Activity configures server-side voice activity detection.
	Activity ActivityConfig `json:"activity"`

	// Transcribe enables input and output audio transcription.
	Transcribe bool `json:"transcribe"`
}

// ThinkingConfig configures the model's thought stream.
type ThinkingConfig struct {
	// Enabled requests thoughts with Budget tokens; disabled sends a zero budget.
	Enabled bool `json:"enabled"`
	// Budget is the token budget when enabled. Default: 2048.
	Budget int `json:"budget"`
}

// EffectiveBudget returns the budget sent on the wire.
func (c ThinkingConfig) EffectiveBudget() int32 {
	if !c.Enabled {
		return 0
	}
	if c.Budget <= 0 {
		return DefaultThinkingBudget
	}
	return int32(c.Budget)
}

// ActivityConfig configures automatic activity detection.
type ActivityConfig struct {
	StartSensitivity genai.StartSensitivity `json:"start_sensitivity"`
	EndSensitivity   genai.EndSensitivity   `json:"end_sensitivity"`
	// SilenceDurationMs is how long the user must pause before the turn ends.
	SilenceDurationMs int `json:"silence_duration_ms"`
}

// DefaultActivityConfig favors fewer false starts and quick end-of-turn detection.
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		StartSensitivity:  genai.StartSensitivityLow,
		EndSensitivity:    genai.EndSensitivityHigh,
		SilenceDurationMs: 1000,
	}
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Model:      DefaultModel,
		Voice:      DefaultVoice,
		Thinking:   ThinkingConfig{Enabled: true, Budget: DefaultThinkingBudget},
		Activity:   DefaultActivityConfig(),
		Transcribe: true,
	}
}

// WithDefaults fills unset fields from DefaultSessionConfig.
func (c SessionConfig) WithDefaults() SessionConfig {
	def := DefaultSessionConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Voice == "" {
		c.Voice = def.Voice
	}
	if c.Activity.StartSensitivity == "" {
		c.Activity.StartSensitivity = def.Activity.StartSensitivity
	}
	if c.Activity.EndSensitivity == "" {
		c.Activity.EndSensitivity = def.Activity.EndSensitivity
	}
	if c.Activity.SilenceDurationMs <= 0 {
		c.Activity.SilenceDurationMs = def.Activity.SilenceDurationMs
	}
	return c
}
