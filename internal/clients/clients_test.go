package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
)

func visionRequest() *VisionRequest {
	return &VisionRequest{
		ImageBase64: "aGVsbG8=",
		MediaType:   "image/jpeg",
		Prompt:      "Extract all text",
	}
}

func TestOpenAIClient_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", req.Messages[0].Content[1].ImageURL.URL)

		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"content":"Hello world"},"finish_reason":"length"}]}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(ClientConfig{APIKey: "sk-test", Endpoint: server.URL + "/", Model: "gpt-test"})
	resp, err := client.Extract(context.Background(), visionRequest())

	require.NoError(t, err)
	assert.Equal(t, "Hello world", resp.Text)
	assert.True(t, resp.Truncated)
	assert.Equal(t, "gpt-test", resp.Model)
	assert.NotEmpty(t, resp.Raw)
}

func TestOpenAIClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		code      ocrerrors.ErrorCode
		retryable bool
	}{
		{http.StatusTooManyRequests, ocrerrors.ErrorRateLimited, true},
		{http.StatusPaymentRequired, ocrerrors.ErrorQuotaExceeded, false},
		{http.StatusForbidden, ocrerrors.ErrorQuotaExceeded, false},
		{http.StatusBadGateway, ocrerrors.ErrorAPI, true},
		{http.StatusBadRequest, ocrerrors.ErrorAPI, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			client := NewOpenAIClient(ClientConfig{APIKey: "k", Endpoint: server.URL})
			_, err := client.Extract(context.Background(), visionRequest())

			ocrErr, ok := ocrerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, ocrErr.Code)
			assert.Equal(t, tt.retryable, ocrErr.Retryable)
			if tt.code == ocrerrors.ErrorRateLimited {
				assert.Equal(t, 3*time.Second, ocrErr.RetryAfter)
			}
		})
	}
}

func TestOpenAIClient_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": "not-a-list"`))
	}))
	defer server.Close()

	client := NewOpenAIClient(ClientConfig{APIKey: "k", Endpoint: server.URL})
	_, err := client.Extract(context.Background(), visionRequest())

	assert.Equal(t, ocrerrors.ErrorInvalidResponse, ocrerrors.CodeOf(err))
	assert.True(t, ocrerrors.IsRetryable(err))
}

func TestOpenAIClient_DeadlineIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewOpenAIClient(ClientConfig{APIKey: "k", Endpoint: server.URL})
	_, err := client.Extract(ctx, visionRequest())

	assert.Equal(t, ocrerrors.ErrorTimeout, ocrerrors.CodeOf(err))
	assert.True(t, ocrerrors.IsRetryable(err))
}

func TestOpenAIClient_CallerDeadlineOutlivesConfiguredTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"slow but fine"}}]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := NewOpenAIClient(ClientConfig{APIKey: "k", Endpoint: server.URL, Timeout: 50 * time.Millisecond})
	resp, err := client.Extract(ctx, visionRequest())

	require.NoError(t, err)
	assert.Equal(t, "slow but fine", resp.Text)
}

func TestOpenAIClient_ConfiguredTimeoutAppliesWithoutDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewOpenAIClient(ClientConfig{APIKey: "k", Endpoint: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Extract(context.Background(), visionRequest())

	assert.Equal(t, ocrerrors.ErrorTimeout, ocrerrors.CodeOf(err))
}

func TestAnthropicClient_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "image", req.Messages[0].Content[0].Type)
		assert.Equal(t, "aGVsbG8=", req.Messages[0].Content[0].Source.Data)

		_, _ = w.Write([]byte(`{"model":"claude-test","stop_reason":"end_turn","content":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(ClientConfig{APIKey: "ak-test", Endpoint: server.URL})
	resp, err := client.Extract(context.Background(), visionRequest())

	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", resp.Text)
	assert.False(t, resp.Truncated)
}

func TestAnthropicClient_MaxTokensIsTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"stop_reason":"max_tokens","content":[{"type":"text","text":"partial"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClient(ClientConfig{APIKey: "k", Endpoint: server.URL})
	resp, err := client.Extract(context.Background(), visionRequest())

	require.NoError(t, err)
	assert.True(t, resp.Truncated)
}

func TestAnthropicClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewAnthropicClient(ClientConfig{APIKey: "k", Endpoint: server.URL})
	assert.NoError(t, client.HealthCheck(context.Background()))
}
