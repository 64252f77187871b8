package core

import (
	"context"
	"errors"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindhelper.ai/backend/internal/store"
)

func newTestPipeline(gen Generator) *Pipeline {
	return NewPipeline(gen, zap.NewNop())
}

func TestSendTurnBlankTextIsSkipped(t *testing.T) {
	gen := &fakeGenerator{reply: "unused"}
	p := newTestPipeline(gen)

	res, err := p.SendTurn(context.Background(), TurnRequest{SessionID: "s", Text: "  \n\t "})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, gen.Calls())
}

func TestSendTurnBuildsSingleRequest(t *testing.T) {
	gen := &fakeGenerator{reply: "Я рядом."}
	p := newTestPipeline(gen)
	history := makeMessages(15)

	res, err := p.SendTurn(context.Background(), TurnRequest{
		SessionID: "s",
		History:   history,
		Text:      "  Мне тревожно  ",
		Persona:   PersonaMindfulness,
		Tariff:    TariffBasic,
	})
	require.NoError(t, err)
	assert.Equal(t, "Я рядом.", res.Reply)
	assert.False(t, res.Emergency)
	assert.Equal(t, DefaultModel, res.Model)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, DefaultModel, req.Model)
	assert.Equal(t, Temperature, req.Temperature)

	wantInstruction, err := BuildSystemInstruction(PersonaMindfulness, TariffBasic)
	require.NoError(t, err)
	assert.Equal(t, wantInstruction, req.SystemInstruction)

	require.Len(t, req.Turns, HistoryWindow+1)
	for i, m := range history[5:] {
		assert.Equal(t, Turn{Role: m.Role, Text: m.Text}, req.Turns[i])
	}
	assert.Equal(t, Turn{Role: store.RoleUser, Text: "Мне тревожно"}, req.Turns[HistoryWindow])
}

func TestSendTurnModelSelection(t *testing.T) {
	tests := []struct {
		tariff Tariff
		want   string
	}{
		{TariffFree, DefaultModel},
		{TariffBasic, DefaultModel},
		{TariffPro, DefaultModel},
		{TariffPremium, PremiumModel},
	}
	for _, tt := range tests {
		t.Run(tt.tariff.String(), func(t *testing.T) {
			gen := &fakeGenerator{reply: "ok"}
			res, err := newTestPipeline(gen).SendTurn(context.Background(), TurnRequest{
				SessionID: "s", Text: "привет", Persona: PersonaEmpathic, Tariff: tt.tariff,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Model)
			assert.Equal(t, tt.want, gen.Calls()[0].Model)
		})
	}
}

func TestWithModelsOverridesDefaults(t *testing.T) {
	p := NewPipeline(&fakeGenerator{}, zap.NewNop(), WithModels("flash-x", ""))
	assert.Equal(t, "flash-x", p.ModelFor(TariffFree))
	assert.Equal(t, PremiumModel, p.ModelFor(TariffPremium))
}

func TestSendTurnInvalidEnumsFallBack(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	_, err := newTestPipeline(gen).SendTurn(context.Background(), TurnRequest{
		SessionID: "s", Text: "привет", Persona: Persona(77), Tariff: Tariff(0),
	})
	require.NoError(t, err)

	want, err := BuildSystemInstruction(PersonaEmpathic, TariffFree)
	require.NoError(t, err)
	assert.Equal(t, want, gen.Calls()[0].SystemInstruction)
}

func TestSendTurnEmptyReplyUsesFallback(t *testing.T) {
	for name, gen := range map[string]*fakeGenerator{
		"blank text":     {reply: "   "},
		"empty response": {err: ErrEmptyResponse},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := newTestPipeline(gen).SendTurn(context.Background(), TurnRequest{
				SessionID: "s", Text: "привет", Persona: PersonaEmpathic, Tariff: TariffFree,
			})
			require.NoError(t, err)
			assert.Equal(t, FallbackReply, res.Reply)
		})
	}
}

func TestSendTurnEmergencyHook(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	var hookCalls int
	res, err := newTestPipeline(gen).SendTurn(context.Background(), TurnRequest{
		SessionID:   "s",
		Text:        "я не хочу жить",
		Persona:     PersonaEmpathic,
		Tariff:      TariffFree,
		OnEmergency: func() { hookCalls++ },
	})
	require.NoError(t, err)
	assert.True(t, res.Emergency)
	assert.Equal(t, 1, hookCalls)
	assert.Len(t, gen.Calls(), 1, "emergency must not block the exchange")
}

func TestSendTurnBackendFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"missing key", ErrAPIKeyMissing, BackendError},
		{"api rejection", errors.New("googleapi: Error 403: permission denied"), BackendError},
		{"deadline", context.DeadlineExceeded, BackendUnavailable},
		{"url error", &url.Error{Op: "Post", URL: "https://example.invalid", Err: errors.New("dial")}, BackendUnavailable},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, BackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := makeMessages(12)
			snapshot := make([]store.Message, len(history))
			copy(snapshot, history)

			gen := &fakeGenerator{err: tt.err}
			res, err := newTestPipeline(gen).SendTurn(context.Background(), TurnRequest{
				SessionID: "s", History: history, Text: "привет", Persona: PersonaEmpathic, Tariff: TariffPremium,
			})

			var chatErr *ChatError
			require.ErrorAs(t, err, &chatErr)
			assert.Equal(t, tt.kind, chatErr.Kind)
			assert.Equal(t, PremiumModel, chatErr.Model)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, res.Reply)
			assert.Len(t, gen.Calls(), 1, "no retry")

			if diff := cmp.Diff(snapshot, history); diff != "" {
				t.Errorf("history mutated (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUserFacingError(t *testing.T) {
	assert.Equal(t, userFacingBackendError, UserFacingError(&ChatError{Kind: BackendError, Err: ErrAPIKeyMissing}))
	assert.Equal(t, userFacingConnectionError, UserFacingError(&ChatError{Kind: BackendUnavailable, Err: context.DeadlineExceeded}))
	assert.Equal(t, userFacingConnectionError, UserFacingError(errors.New("other")))
}

func TestSendTurnRejectsConcurrentTurnInSameSession(t *testing.T) {
	gen := &fakeGenerator{
		reply:   "ok",
		started: make(chan struct{}, 1),
		block:   make(chan struct{}),
	}
	p := newTestPipeline(gen)
	req := TurnRequest{SessionID: "chat-1", Text: "привет", Persona: PersonaEmpathic, Tariff: TariffFree}

	first := p.SendTurnAsync(context.Background(), req)
	<-gen.started

	_, err := p.SendTurn(context.Background(), req)
	assert.ErrorIs(t, err, ErrTurnInProgress)

	// Other sessions are independent.
	other := req
	other.SessionID = "chat-2"
	second := p.SendTurnAsync(context.Background(), other)
	<-gen.started

	close(gen.block)
	for _, ch := range []<-chan TurnOutcome{first, second} {
		outcome := <-ch
		require.NoError(t, outcome.Err)
		assert.Equal(t, "ok", outcome.Result.Reply)
	}
	assert.Len(t, gen.Calls(), 2)

	// The slot is released once the turn resolves.
	gen.started, gen.block = nil, nil
	_, err = p.SendTurn(context.Background(), req)
	require.NoError(t, err)
}

func TestReserveHoldsSessionUntilReleased(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	p := newTestPipeline(gen)

	rsv, err := p.Reserve("chat-1")
	require.NoError(t, err)

	_, err = p.Reserve("chat-1")
	assert.ErrorIs(t, err, ErrTurnInProgress)
	_, err = p.SendTurn(context.Background(), TurnRequest{SessionID: "chat-1", Text: "привет"})
	assert.ErrorIs(t, err, ErrTurnInProgress)

	res, err := rsv.SendTurn(context.Background(), TurnRequest{SessionID: "ignored", Text: "привет"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Reply)

	// Still held after the turn resolves.
	_, err = p.Reserve("chat-1")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	rsv.Release()
	rsv.Release()

	again, err := p.Reserve("chat-1")
	require.NoError(t, err)
	again.Release()
	assert.Len(t, gen.Calls(), 1)
}

func TestSendTurnAsyncResolvesOnce(t *testing.T) {
	p := newTestPipeline(&fakeGenerator{reply: "ok"})
	ch := p.SendTurnAsync(context.Background(), TurnRequest{
		SessionID: "s", Text: "привет", Persona: PersonaEmpathic, Tariff: TariffFree,
	})

	select {
	case outcome, ok := <-ch:
		require.True(t, ok)
		require.NoError(t, outcome.Err)
		assert.Equal(t, "ok", outcome.Result.Reply)
	case <-time.After(2 * time.Second):
		t.Fatal("async turn did not resolve")
	}
	_, ok := <-ch
	assert.False(t, ok, "channel must be closed after the single outcome")
}

func TestConversationAppendOnly(t *testing.T) {
	conv := NewConversation(makeMessages(2))
	snapshot := conv.Messages()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv.Append(store.Message{Role: store.RoleUser, Text: "x"})
		}()
	}
	wg.Wait()

	assert.Len(t, conv.Messages(), 22)
	assert.Len(t, snapshot, 2, "earlier snapshots are not affected by appends")
}
