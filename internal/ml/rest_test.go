package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/franckalain/dietplanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGen = GenerationConfig{Temperature: 0.7, TopK: 40, TopP: 0.95, MaxOutputTokens: 2048}

type captured struct {
	path   string
	apiKey string
	body   restRequest
}

func stubServer(t *testing.T, status int, reply string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.path = r.URL.Path
			got.apiKey = r.Header.Get("x-goog-api-key")
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestCompleter(url string) *RESTCompleter {
	return NewRESTCompleter(Config{Endpoint: url, APIKey: "test-key", Model: "gemini-test"}, nil, nil)
}

func TestRESTCompleteSuccess(t *testing.T) {
	var got captured
	srv := stubServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello "},{"text":"world"}]}}]}`, &got)

	text, err := newTestCompleter(srv.URL).Complete(context.Background(), "hi", testGen, DefaultSafetySettings())
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)

	assert.Equal(t, "/models/gemini-test:generateContent", got.path)
	assert.Equal(t, "test-key", got.apiKey)
	require.Len(t, got.body.Contents, 1)
	assert.Equal(t, "hi", got.body.Contents[0].Parts[0].Text)
	assert.Equal(t, testGen, got.body.GenerationConfig)
	assert.Equal(t, DefaultSafetySettings(), got.body.SafetySettings)
}

func TestRESTCompleteFailuresAreServiceUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`},
		{"rate limited", http.StatusTooManyRequests, `{}`},
		{"missing candidates", http.StatusOK, `{}`},
		{"blocked prompt", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`},
		{"empty content", http.StatusOK, `{"candidates":[{"finishReason":"SAFETY"}]}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := stubServer(t, tt.status, tt.reply, nil)
			_, err := newTestCompleter(srv.URL).Complete(context.Background(), "hi", testGen, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrServiceUnavailable))

			var terr *TransportError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.status, terr.StatusCode)
		})
	}
}

func TestRESTCompleteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestCompleter(url).Complete(context.Background(), "hi", testGen, nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestRESTCompleteWithHistorySendsBoundedWindow(t *testing.T) {
	var got captured
	srv := stubServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`, &got)

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	var history []models.ChatMessage
	for i := 0; i < 15; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		history = append(history, models.ChatMessage{
			ID:        fmt.Sprintf("m%d", i),
			Role:      role,
			Content:   fmt.Sprintf("message-%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	_, err := newTestCompleter(srv.URL).CompleteWithHistory(context.Background(), "latest question", history, testGen, nil)
	require.NoError(t, err)

	sent := got.body.Contents[0].Parts[0].Text
	for i := 0; i < 5; i++ {
		assert.NotContains(t, sent, fmt.Sprintf("message-%02d", i))
	}
	for i := 5; i < 15; i++ {
		assert.Contains(t, sent, fmt.Sprintf("message-%02d", i))
	}
	assert.True(t, strings.HasSuffix(sent, "User: latest question"))
}
