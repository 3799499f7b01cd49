package host

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultImageModel generates images from text prompts.
const DefaultImageModel = "gemini-2.5-flash-image"

// ImageGenerator turns a prompt into image bytes.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (data []byte, mimeType string, err error)
}

// GeminiImager generates images with the Gemini API.
type GeminiImager struct {
	client *genai.Client
	model  string
}

// NewGeminiImager creates an image generator authenticated with apiKey.
func NewGeminiImager(ctx context.Context, apiKey, model string) (*GeminiImager, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("image generation requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultImageModel
	}
	return &GeminiImager{client: client, model: model}, nil
}

func (g *GeminiImager) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("generate image: %w", err)
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, part.InlineData.MIMEType, nil
			}
		}
	}
	return nil, "", errors.New("model returned no image")
}
