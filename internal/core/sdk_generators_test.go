package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/genai"

	"mindhelper.ai/backend/internal/store"
)

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireGenerateRequest struct {
	Contents          []wireContent `json:"contents"`
	SystemInstruction *wireContent  `json:"systemInstruction"`
	GenerationConfig  struct {
		Temperature *float32 `json:"temperature"`
	} `json:"generationConfig"`
}

type capturedRequest struct {
	Path   string
	APIKey string
	Body   wireGenerateRequest
}

// newModelServer answers every generateContent call with status and body
// and records what it received.
func newModelServer(t *testing.T, status int, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	seen := make(chan capturedRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured := capturedRequest{Path: r.URL.Path, APIKey: r.Header.Get("x-goog-api-key")}
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		select {
		case seen <- captured:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

// redirectTransport sends every request to target, keeping path and query.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newTestGeminiGenerator(t *testing.T, srv *httptest.Server) *GeminiGenerator {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	gen, err := NewGeminiGenerator(context.Background(), "test-key", zap.NewNop(),
		option.WithHTTPClient(&http.Client{Transport: redirectTransport{target: target}}))
	require.NoError(t, err)
	t.Cleanup(gen.Close)
	return gen
}

func newTestGenAIGenerator(t *testing.T, srv *httptest.Server) *GenAIGenerator {
	t.Helper()
	gen, err := NewGenAIGenerator(context.Background(), GenAIConfig{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	return gen
}

func sampleGenerateRequest() GenerateRequest {
	return GenerateRequest{
		Model:             "gemini-test",
		SystemInstruction: "Будь бережным.",
		Temperature:       Temperature,
		Turns: []Turn{
			{Role: store.RoleModel, Text: WelcomeMessage},
			{Role: store.RoleUser, Text: "Мне тревожно"},
			{Role: store.RoleModel, Text: "Расскажите, что случилось."},
			{Role: store.RoleUser, Text: "Не могу уснуть"},
		},
	}
}

func receive(t *testing.T, seen <-chan capturedRequest) capturedRequest {
	t.Helper()
	select {
	case req := <-seen:
		return req
	default:
		t.Fatal("model server received no request")
		return capturedRequest{}
	}
}

// assertWireMapping checks the outbound request. method is the RPC suffix
// of the path: generative-ai-go chat sessions stream, genai does not.
func assertWireMapping(t *testing.T, got capturedRequest, method string) {
	t.Helper()
	req := sampleGenerateRequest()

	assert.Equal(t, "/v1beta/models/gemini-test:"+method, got.Path)

	require.Len(t, got.Body.Contents, len(req.Turns))
	for i, turn := range req.Turns {
		assert.Equal(t, turn.Role, got.Body.Contents[i].Role, "content %d", i)
		require.Len(t, got.Body.Contents[i].Parts, 1)
		assert.Equal(t, turn.Text, got.Body.Contents[i].Parts[0].Text, "content %d", i)
	}

	require.NotNil(t, got.Body.SystemInstruction)
	require.Len(t, got.Body.SystemInstruction.Parts, 1)
	assert.Equal(t, req.SystemInstruction, got.Body.SystemInstruction.Parts[0].Text)

	require.NotNil(t, got.Body.GenerationConfig.Temperature)
	assert.InDelta(t, Temperature, *got.Body.GenerationConfig.Temperature, 1e-6)
}

func TestGeminiGeneratorRequestMapping(t *testing.T) {
	// Chat sessions use the streaming endpoint, which answers with a JSON array.
	srv, seen := newModelServer(t, http.StatusOK,
		`[{"candidates":[{"content":{"role":"model","parts":[{"text":"Я "},{"text":"рядом."}]},"finishReason":1}]}]`)
	gen := newTestGeminiGenerator(t, srv)

	reply, err := gen.Generate(context.Background(), sampleGenerateRequest())
	require.NoError(t, err)
	assert.Equal(t, "Я рядом.", reply)
	assertWireMapping(t, receive(t, seen), "streamGenerateContent")
}

func TestGeminiGeneratorEmptyResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "prompt blocked", body: `[{"promptFeedback":{"blockReason":1}}]`},
		{name: "candidate blocked", body: `[{"candidates":[{"content":{"role":"model","parts":[{"text":"x"}]},"finishReason":3}]}]`},
		{name: "no candidates", body: `[{}]`},
		{name: "no text parts", body: `[{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":1}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newModelServer(t, http.StatusOK, tt.body)
			gen := newTestGeminiGenerator(t, srv)

			_, err := gen.Generate(context.Background(), sampleGenerateRequest())
			assert.ErrorIs(t, err, ErrEmptyResponse)
		})
	}
}

func TestGeminiGeneratorAPIError(t *testing.T) {
	srv, _ := newModelServer(t, http.StatusForbidden,
		`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	gen := newTestGeminiGenerator(t, srv)

	_, err := gen.Generate(context.Background(), sampleGenerateRequest())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyResponse)
}

func TestGenAIGeneratorRequestMapping(t *testing.T) {
	srv, seen := newModelServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Я рядом."}]},"finishReason":"STOP"}]}`)
	gen := newTestGenAIGenerator(t, srv)

	reply, err := gen.Generate(context.Background(), sampleGenerateRequest())
	require.NoError(t, err)
	assert.Equal(t, "Я рядом.", reply)

	got := receive(t, seen)
	assert.Equal(t, "test-key", got.APIKey)
	assertWireMapping(t, got, "generateContent")
}

func TestGenAIGeneratorEmptyResponse(t *testing.T) {
	srv, _ := newModelServer(t, http.StatusOK, `{"candidates":[]}`)
	gen := newTestGenAIGenerator(t, srv)

	_, err := gen.Generate(context.Background(), sampleGenerateRequest())
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenAIGeneratorAPIError(t *testing.T) {
	srv, _ := newModelServer(t, http.StatusBadRequest,
		`{"error":{"code":400,"message":"bad temperature","status":"INVALID_ARGUMENT"}}`)
	gen := newTestGenAIGenerator(t, srv)

	_, err := gen.Generate(context.Background(), sampleGenerateRequest())
	require.Error(t, err)
	var apiErr genai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)
	assert.Equal(t, "INVALID_ARGUMENT", apiErr.Status)
}
