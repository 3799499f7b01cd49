package gemini

import (
	"google.golang.org/genai"
)

// clientMessage is the outbound envelope of the BidiGenerateContent protocol.
// Exactly one field is set per message.
type clientMessage struct {
	Setup         *Setup         `json:"setup,omitempty"`
	ClientContent *ClientContent `json:"clientContent,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *ToolResponse  `json:"toolResponse,omitempty"`
}

// Setup is the first message on a stream and fixes its configuration.
type Setup struct {
	Model                    string                          `json:"model"`
	GenerationConfig         *GenerationConfig               `json:"generationConfig,omitempty"`
	SystemInstruction        *genai.Content                  `json:"systemInstruction,omitempty"`
	Tools                    []*genai.Tool                   `json:"tools,omitempty"`
	RealtimeInputConfig      *genai.RealtimeInputConfig      `json:"realtimeInputConfig,omitempty"`
	InputAudioTranscription  *genai.AudioTranscriptionConfig `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *genai.AudioTranscriptionConfig `json:"outputAudioTranscription,omitempty"`
}

// GenerationConfig is the subset of generation settings used by Live sessions.
type GenerationConfig struct {
	ResponseModalities []genai.Modality      `json:"responseModalities,omitempty"`
	SpeechConfig       *genai.SpeechConfig   `json:"speechConfig,omitempty"`
	ThinkingConfig     *genai.ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ClientContent appends turns to the conversation.
type ClientContent struct {
	Turns        []*genai.Content `json:"turns"`
	TurnComplete bool             `json:"turnComplete"`
}

// RealtimeInput carries streaming media.
type RealtimeInput struct {
	Audio *MediaChunk `json:"audio,omitempty"`
	Video *MediaChunk `json:"video,omitempty"`
}

// MediaChunk is base64 media with its MIME type.
type MediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolResponse answers one or more function calls.
type ToolResponse struct {
	FunctionResponses []*genai.FunctionResponse `json:"functionResponses"`
}
