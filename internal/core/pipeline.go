package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"mindhelper.ai/backend/internal/store"
)

const (
	DefaultModel = "gemini-3-flash-preview"
	PremiumModel = "gemini-3-pro-preview"

	// Temperature is fixed for every request.
	Temperature float32 = 0.7

	FallbackReply = "Извините, я задумался. Повторите, пожалуйста."
)

type TurnRequest struct {
	// SessionID scopes the one-in-flight rule. Usually the chat ID.
	SessionID string
	History   []store.Message
	Text      string
	Persona   Persona
	Tariff    Tariff
	// OnEmergency, if set, runs synchronously before the model request
	// when Text matches a crisis keyword.
	OnEmergency func()
}

type TurnResult struct {
	Reply     string
	Emergency bool
	// Skipped is set when Text was blank and no request was issued.
	Skipped bool
	Model   string
}

// TurnOutcome is the single value delivered by SendTurnAsync.
type TurnOutcome struct {
	Result TurnResult
	Err    error
}

type Pipeline struct {
	gen          Generator
	defaultModel string
	premiumModel string
	logger       *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

type PipelineOption func(*Pipeline)

func WithModels(defaultModel, premiumModel string) PipelineOption {
	return func(p *Pipeline) {
		if defaultModel != "" {
			p.defaultModel = defaultModel
		}
		if premiumModel != "" {
			p.premiumModel = premiumModel
		}
	}
}

func NewPipeline(gen Generator, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		gen:          gen,
		defaultModel: DefaultModel,
		premiumModel: PremiumModel,
		logger:       logger,
		inflight:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ModelFor maps a tariff to a model identifier.
func (p *Pipeline) ModelFor(t Tariff) string {
	if t == TariffPremium {
		return p.premiumModel
	}
	return p.defaultModel
}

func (p *Pipeline) acquire(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[sessionID]; busy {
		return false
	}
	p.inflight[sessionID] = struct{}{}
	return true
}

func (p *Pipeline) release(sessionID string) {
	p.mu.Lock()
	delete(p.inflight, sessionID)
	p.mu.Unlock()
}

// Reservation holds the in-flight slot of one session. Callers that store
// messages around the model call keep it for the whole turn.
type Reservation struct {
	p         *Pipeline
	sessionID string
	once      sync.Once
}

// Reserve claims the session or returns ErrTurnInProgress.
func (p *Pipeline) Reserve(sessionID string) (*Reservation, error) {
	if !p.acquire(sessionID) {
		return nil, ErrTurnInProgress
	}
	return &Reservation{p: p, sessionID: sessionID}, nil
}

// Release frees the slot. Calling it more than once is a no-op.
func (r *Reservation) Release() {
	r.once.Do(func() { r.p.release(r.sessionID) })
}

// SendTurn runs the turn under the held slot. req.SessionID is ignored.
func (r *Reservation) SendTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	req.SessionID = r.sessionID
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return TurnResult{Skipped: true}, nil
	}
	return r.p.runTurn(ctx, req, text)
}

// SendTurn runs one user turn against the model backend. It issues at most
// one request and never retries. A backend failure is returned as *ChatError.
func (p *Pipeline) SendTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return TurnResult{Skipped: true}, nil
	}

	rsv, err := p.Reserve(req.SessionID)
	if err != nil {
		return TurnResult{}, err
	}
	defer rsv.Release()
	return p.runTurn(ctx, req, text)
}

func (p *Pipeline) runTurn(ctx context.Context, req TurnRequest, text string) (TurnResult, error) {
	result := TurnResult{Emergency: IsEmergency(text)}
	if result.Emergency {
		p.logger.Warn("Crisis keyword detected", zap.String("session_id", req.SessionID))
		if req.OnEmergency != nil {
			req.OnEmergency()
		}
	}

	persona, tariff := req.Persona, req.Tariff
	if !persona.Valid() {
		p.logger.Warn("Invalid persona, using default", zap.Stringer("persona", persona))
		persona = PersonaEmpathic
	}
	if !tariff.Valid() {
		p.logger.Warn("Invalid tariff, using default", zap.Stringer("tariff", tariff))
		tariff = TariffFree
	}
	instruction, err := BuildSystemInstruction(persona, tariff)
	if err != nil {
		return TurnResult{}, err
	}

	window := WindowHistory(req.History)
	turns := make([]Turn, 0, len(window)+1)
	for _, m := range window {
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	turns = append(turns, Turn{Role: store.RoleUser, Text: text})

	result.Model = p.ModelFor(tariff)
	p.logger.Debug("Sending chat turn",
		zap.String("session_id", req.SessionID),
		zap.String("model", result.Model),
		zap.Int("turns", len(turns)))

	reply, err := p.gen.Generate(ctx, GenerateRequest{
		Model:             result.Model,
		SystemInstruction: instruction,
		Turns:             turns,
		Temperature:       Temperature,
	})
	if err != nil {
		if errors.Is(err, ErrEmptyResponse) {
			result.Reply = FallbackReply
			return result, nil
		}
		chatErr := &ChatError{Kind: classifyBackendError(err), Model: result.Model, Err: err}
		p.logger.Error("Chat turn failed",
			zap.String("session_id", req.SessionID),
			zap.Stringer("kind", chatErr.Kind),
			zap.Error(err))
		return result, chatErr
	}

	if strings.TrimSpace(reply) == "" {
		reply = FallbackReply
	}
	result.Reply = reply
	return result, nil
}

// SendTurnAsync runs SendTurn in its own goroutine. The returned channel
// yields exactly one outcome and is then closed.
func (p *Pipeline) SendTurnAsync(ctx context.Context, req TurnRequest) <-chan TurnOutcome {
	out := make(chan TurnOutcome, 1)
	go func() {
		defer close(out)
		res, err := p.SendTurn(ctx, req)
		out <- TurnOutcome{Result: res, Err: err}
	}()
	return out
}
