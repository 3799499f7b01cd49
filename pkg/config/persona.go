package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tones accepted by the system instruction builder.
var Tones = []string{"friendly", "professional", "jarvis", "girlfriend"}

// Persona overrides the stored assistant settings from a YAML file.
//
//	assistant_name: Nova
//	voice_tone: jarvis
//	voice: Charon
//	extra_instructions: |
//	  Prefer metric units.
type Persona struct {
	AssistantName     string `yaml:"assistant_name"`
	WakeWord          string `yaml:"wake_word"`
	VoiceTone         string `yaml:"voice_tone"`
	Voice             string `yaml:"voice"`
	CreatorName       string `yaml:"creator_name"`
	ExtraInstructions string `yaml:"extra_instructions"`
	VaultPath         string `yaml:"vault_path"`
}

// LoadPersona reads path. A missing file yields a zero Persona.
func LoadPersona(path string) (Persona, error) {
	var p Persona
	if strings.TrimSpace(path) == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read persona %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if p.VoiceTone != "" && !validTone(p.VoiceTone) {
		return p, fmt.Errorf("persona voice_tone must be one of %s (got %q)", strings.Join(Tones, ", "), p.VoiceTone)
	}
	return p, nil
}

// Marshal renders the persona as YAML.
func (p Persona) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

func validTone(t string) bool {
	for _, tone := range Tones {
		if t == tone {
			return true
		}
	}
	return false
}
