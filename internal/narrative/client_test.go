package narrative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-interpretation-server/internal/domain"
)

func TestClientComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Mild microcytic anemia.  "}}]}`))
	}))
	defer server.Close()

	client := NewClient(domain.NarrativeConfig{
		BaseURL:     server.URL + "/",
		APIKey:      "secret",
		Model:       "llama3.1",
		Temperature: 0.2,
		MaxTokens:   300,
		Timeout:     5 * time.Second,
	})

	text, err := client.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Mild microcytic anemia.", text)

	assert.Equal(t, "llama3.1", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 300, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Content)
}

func TestClientCompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-200 status",
			status: http.StatusServiceUnavailable,
			body:   "model loading",
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
				assert.Equal(t, "model loading", statusErr.Body)
			},
		},
		{
			name:   "error payload",
			status: http.StatusOK,
			body:   `{"error":{"message":"model not found"}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "model not found")
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "no choices")
			},
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"choices":`,
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to decode")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(domain.NarrativeConfig{BaseURL: server.URL, Model: "m"})
			_, err := client.Complete(context.Background(), "s", "u")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}
