package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/playforge/internal/common"
	"github.com/ternarybob/playforge/internal/models"
)

func TestSystemPrompt_SelectsModeTemplate(t *testing.T) {
	create := SystemPrompt(models.ModeCreate)
	pc := SystemPrompt(models.ModePC)
	mobile := SystemPrompt(models.ModeMobile)

	for _, p := range []string{create, pc, mobile} {
		assert.Contains(t, p, `"html"`)
		assert.Contains(t, p, "JSON object")
	}

	assert.Contains(t, create, "AUTO-PLAY")
	assert.Contains(t, pc, "PC GAME")
	assert.Contains(t, mobile, "MOBILE GAME")
	assert.Equal(t, create, SystemPrompt("unknown"))
}

// sseServer replays chunks as an OpenAI-compatible streaming response and
// records the decoded request body.
func sseServer(t *testing.T, chunks []string, captured *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		if captured != nil {
			assert.NoError(t, json.Unmarshal(body, captured))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for i, content := range chunks {
			chunk := map[string]interface{}{
				"id":      "gen-1",
				"object":  "chat.completion.chunk",
				"created": 1700000000,
				"model":   "google/gemini-3-pro-preview",
				"choices": []map[string]interface{}{
					{"index": 0, "delta": map[string]string{"content": content}, "finish_reason": nil},
				},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if f, ok := w.(http.Flusher); ok && i%2 == 0 {
				f.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newTestOpenRouter(t *testing.T, baseURL string) *OpenRouterService {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.OpenRouter.APIKey = "test-key"
	cfg.OpenRouter.BaseURL = baseURL

	svc, err := NewOpenRouterService(&cfg.OpenRouter, &cfg.Generation, arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func TestOpenRouterService_ConcatenatesStream(t *testing.T) {
	var body map[string]interface{}
	server := sseServer(t, []string{`{"html":`, `"<p>x</p>",`, `"css":"","js":""}`}, &body)
	defer server.Close()

	svc := newTestOpenRouter(t, server.URL)

	out, err := svc.Generate(context.Background(), models.ModePC, "make a shooter")
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<p>x</p>","css":"","js":""}`, out)

	assert.Equal(t, "google/gemini-3-pro-preview", body["model"])
	assert.Equal(t, 0.7, body["temperature"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])

	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	system := messages[0].(map[string]interface{})
	user := messages[1].(map[string]interface{})
	assert.Equal(t, "system", system["role"])
	assert.Contains(t, fmt.Sprint(system["content"]), "PC GAME")
	assert.Equal(t, "user", user["role"])
	assert.Equal(t, "make a shooter", user["content"])
}

func TestOpenRouterService_EmptyStream(t *testing.T) {
	server := sseServer(t, nil, nil)
	defer server.Close()

	_, err := newTestOpenRouter(t, server.URL).Generate(context.Background(), models.ModeCreate, "snake")
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, "openrouter", genErr.Provider)
}

func TestOpenRouterService_UpstreamErrorIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
	}))
	defer server.Close()

	_, err := newTestOpenRouter(t, server.URL).Generate(context.Background(), models.ModeCreate, "snake")
	require.Error(t, err)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, 1, calls)
	assert.NotEmpty(t, genErr.Message())
}

func TestNewOpenRouterService_RequiresKey(t *testing.T) {
	cfg := common.NewDefaultConfig()
	_, err := NewOpenRouterService(&cfg.OpenRouter, &cfg.Generation, arbor.NewLogger())
	assert.Error(t, err)
}

func TestNewGenerator_UnknownProvider(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Generation.Provider = "mystery"

	_, err := NewGenerator(context.Background(), cfg, arbor.NewLogger())
	assert.Error(t, err)
}

func TestGenerationError_Message(t *testing.T) {
	err := &GenerationError{Provider: "gemini", Model: "m", Err: errors.New("quota exceeded")}
	assert.Equal(t, "quota exceeded", err.Message())
	assert.Contains(t, err.Error(), "gemini")
	assert.Equal(t, "Failed to generate code", (&GenerationError{}).Message())
}
