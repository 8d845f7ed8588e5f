package pitch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// ErrInvalidJSON is returned when the model's output cannot be coerced into
// a Pitch even after repair.
var ErrInvalidJSON = errors.New("pitch: model returned invalid JSON")

// gemini is the production LLM backed by the Gemini API.
type gemini struct {
	cli   *genai.Client
	model string
}

func newGemini(ctx context.Context, apiKey, model string) (*gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("pitch: create gemini client: %w", err)
	}
	return &gemini{cli: cli, model: model}, nil
}

// GenerateJSON performs one model call in JSON mode and returns the raw
// candidate text. Retries are the caller's concern.
func (g *gemini) GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("pitch: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(resp.Candidates[0].Content.Parts[0].Text), nil
}
