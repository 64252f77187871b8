package core

import (
	"context"
	"sync"
)

// fakeGenerator records every request. When block is set, Generate waits
// on it after signalling started.
type fakeGenerator struct {
	mu    sync.Mutex
	calls []GenerateRequest

	reply string
	err   error

	started chan struct{}
	block   chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func (f *fakeGenerator) Calls() []GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]GenerateRequest, len(f.calls))
	copy(out, f.calls)
	return out
}
