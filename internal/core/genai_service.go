package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"mindhelper.ai/backend/internal/store"
)

type GenAIConfig struct {
	APIKey string
	// Vertex routes requests through Vertex AI using Project and Location
	// with application default credentials instead of an API key.
	Vertex   bool
	Project  string
	Location string
	// BaseURL overrides the API endpoint when set.
	BaseURL  string
}

// GenAIGenerator talks to Gemini through the google.golang.org/genai SDK,
// either on the Gemini API or on Vertex AI.
type GenAIGenerator struct {
	client *genai.Client
	logger *zap.Logger
}

func NewGenAIGenerator(ctx context.Context, cfg GenAIConfig, logger *zap.Logger) (*GenAIGenerator, error) {
	g := &GenAIGenerator{logger: logger}

	var cc *genai.ClientConfig
	switch {
	case cfg.Vertex:
		if cfg.Project == "" || cfg.Location == "" {
			return nil, errors.New("vertex backend requires a project and a location")
		}
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	case cfg.APIKey != "":
		cc = &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		}
	default:
		logger.Warn("GenAI API key is not set, chat requests will fail")
		return g, nil
	}

	cc.HTTPOptions.BaseURL = cfg.BaseURL
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *GenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if g.client == nil {
		return "", ErrAPIKeyMissing
	}
	if len(req.Turns) == 0 {
		return "", fmt.Errorf("turn list is empty")
	}

	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		var role genai.Role = genai.RoleUser
		if t.Role == store.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Temperature:       &temp,
	}

	res, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			g.logger.Error("GenAI API returned an error",
				zap.String("model", req.Model),
				zap.Int("status", apiErr.Code),
				zap.String("message", apiErr.Message))
		}
		return "", fmt.Errorf("genai generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
