package gemini

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/nova-live/pkg/core"
	"github.com/vango-go/nova-live/pkg/core/live"
)

// BuildSetup translates a session configuration into the wire setup message.
func BuildSetup(cfg live.SessionConfig) *Setup {
	cfg = cfg.WithDefaults()

	model := strings.TrimSpace(cfg.Model)
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	setup := &Setup{
		Model: model,
		GenerationConfig: &GenerationConfig{
			ResponseModalities: []genai.Modality{genai.ModalityAudio},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			},
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: true,
				ThinkingBudget:  genai.Ptr(cfg.Thinking.EffectiveBudget()),
			},
		},
		Tools: cfg.Tools,
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				StartOfSpeechSensitivity: cfg.Activity.StartSensitivity,
				EndOfSpeechSensitivity:   cfg.Activity.EndSensitivity,
				SilenceDurationMs:        genai.Ptr(int32(cfg.Activity.SilenceDurationMs)),
			},
		},
	}
	if text := strings.TrimSpace(cfg.SystemInstruction); text != "" {
		setup.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}
	if cfg.Transcribe {
		setup.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		setup.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return setup
}

// BuildTurnParts assembles a user turn. Attachments always precede the text
// part so the model reads file context before the question that refers to it.
// When text is blank and attachments exist, defaultPrompt is used instead.
func BuildTurnParts(attachments []live.Attachment, text, defaultPrompt string) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(attachments)+1)
	for _, a := range attachments {
		data, err := a.Bytes()
		if err != nil {
			return nil, core.NewValidationError(fmt.Sprintf("attachment %q is not valid base64", a.Name), "attachments")
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: a.MIMEType, Data: data}})
	}
	if strings.TrimSpace(text) == "" && len(attachments) > 0 {
		text = defaultPrompt
	}
	if strings.TrimSpace(text) != "" {
		parts = append(parts, &genai.Part{Text: text})
	}
	return parts, nil
}
