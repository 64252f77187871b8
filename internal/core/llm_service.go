package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mindhelper.ai/backend/internal/store"
)

// GeminiGenerator talks to the Gemini API through the generative-ai-go SDK.
type GeminiGenerator struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiGenerator returns a generator even when apiKey is empty, so the
// server can boot without credentials. Every call then fails with
// ErrAPIKeyMissing. opts are applied after the API key.
func NewGeminiGenerator(ctx context.Context, apiKey string, logger *zap.Logger, opts ...option.ClientOption) (*GeminiGenerator, error) {
	g := &GeminiGenerator{logger: logger}
	if apiKey == "" {
		logger.Warn("Gemini API key is not set, chat requests will fail")
		return g, nil
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GeminiGenerator) Close() {
	if g.client == nil {
		return
	}
	if err := g.client.Close(); err != nil {
		g.logger.Error("Error closing Gemini client", zap.Error(err))
		return
	}
	g.logger.Info("Gemini client closed")
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if g.client == nil {
		return "", ErrAPIKeyMissing
	}
	if len(req.Turns) == 0 {
		return "", fmt.Errorf("turn list is empty")
	}

	last := req.Turns[len(req.Turns)-1]
	if last.Role != store.RoleUser {
		return "", fmt.Errorf("last turn is not from %q, cannot send", store.RoleUser)
	}

	model := g.client.GenerativeModel(req.Model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(req.SystemInstruction)},
	}
	model.SetTemperature(req.Temperature)

	chatSession := model.StartChat()
	chatSession.History = make([]*genai.Content, 0, len(req.Turns)-1)
	for _, t := range req.Turns[:len(req.Turns)-1] {
		chatSession.History = append(chatSession.History, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}

	resp, err := chatSession.SendMessage(ctx, genai.Text(last.Text))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			g.logger.Warn("Gemini response was blocked", zap.String("model", req.Model), zap.Error(err))
			return "", ErrEmptyResponse
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			g.logger.Error("Gemini API returned an error",
				zap.String("model", req.Model),
				zap.Int("status", apiErr.Code),
				zap.String("message", apiErr.Message))
		}
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		} else {
			g.logger.Debug("Skipping non-text response part", zap.String("type", fmt.Sprintf("%T", part)))
		}
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}
