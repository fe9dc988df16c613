package intent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/chat/completions", r.URL.Path)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(server.Close)

	return server, &calls
}

func newTestOpenAIParser(baseURL string) *OpenAIParser {
	return NewOpenAIParser(OpenAIOptions{
		BaseURL:               baseURL + "/",
		APIKey:                "test",
		Model:                 "test-model",
		Timeout:               2 * time.Second,
		RetryAttempts:         1,
		IntervalCB:            time.Minute,
		ConsecutiveFailuresCB: 5,
	}, KeywordParser{})
}

func TestOpenAIParserReadsCompletion(t *testing.T) {
	server, _ := completionServer(t, http.StatusOK,
		"```json\n{\"person\":\"Jane Doe\",\"department\":\"billing\",\"reason\":\"invoice\",\"caller_name\":\"Anna\",\"wants_message\":false}\n```")

	got, err := newTestOpenAIParser(server.URL).Parse(context.Background(), "whatever the caller said")
	require.NoError(t, err)
	require.Equal(t, Intent{Person: "Jane Doe", Department: "Finance", Reason: "invoice", CallerName: "Anna"}, got)
}

func TestOpenAIParserFallsBackOnServerError(t *testing.T) {
	server, calls := completionServer(t, http.StatusInternalServerError, "")

	got, err := newTestOpenAIParser(server.URL).Parse(context.Background(), "Please connect me to John Smith")
	require.NoError(t, err)
	require.Equal(t, "John Smith", got.Person)
	require.Equal(t, int32(1), calls.Load())
}

func TestOpenAIParserFallsBackOnProse(t *testing.T) {
	server, _ := completionServer(t, http.StatusOK, "I am not sure what the caller wants.")

	got, err := newTestOpenAIParser(server.URL).Parse(context.Background(), "I want to leave a message")
	require.NoError(t, err)
	require.True(t, got.WantsMessage)
}

func TestExtractJSON(t *testing.T) {
	require.Equal(t, `{"a":1}`, extractJSON("sure: {\"a\":1} done"))
	require.Equal(t, "no object", extractJSON("no object"))
}
