package core

import (
	"context"
	"fmt"
	"strings"

	"mindhelper.ai/backend/internal/store"
)

// Turn is one entry of the outbound conversation.
type Turn struct {
	Role string // store.RoleUser or store.RoleModel
	Text string
}

type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Turns             []Turn
	Temperature       float32
}

// Generator issues exactly one request to a model backend per call.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// MockGenerator answers without a network round trip. Used for local
// development and tests.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	if len(req.Turns) == 0 {
		return "", ErrEmptyResponse
	}
	last := req.Turns[len(req.Turns)-1]
	if last.Role != store.RoleUser {
		return "", fmt.Errorf("last turn must come from the user, got %q", last.Role)
	}
	return fmt.Sprintf("Я вас слышу. Вы написали: %q. Расскажите, пожалуйста, что вы при этом чувствуете?", strings.TrimSpace(last.Text)), nil
}
