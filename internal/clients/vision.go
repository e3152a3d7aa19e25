/**
 * Vision Clients - HTTPS/JSON transports for hosted vision models
 *
 * Each client speaks one wire protocol and returns a VisionResponse.
 * Non-2xx responses, malformed bodies and deadline expiry are classified
 * into the OCR error taxonomy here so adapters never inspect raw HTTP.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
	"github.com/adverant/nexus/ocr-engine/internal/logging"
)

// VisionRequest is one image + instruction sent to a vision model
type VisionRequest struct {
	ImageBase64 string
	MediaType   string
	Prompt      string
	MaxTokens   int
}

// VisionResponse is the normalized reply of a vision model
type VisionResponse struct {
	Text      string
	Truncated bool
	Model     string
	Raw       json.RawMessage
}

// VisionClient is implemented by every hosted vision transport
type VisionClient interface {
	Extract(ctx context.Context, req *VisionRequest) (*VisionResponse, error)
	HealthCheck(ctx context.Context) error
}

// ClientConfig holds connection settings shared by the vision clients
type ClientConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// DefaultMaxTokens bounds generation when the caller sets no limit
const DefaultMaxTokens = 4096

// maxErrorBody caps how much of an error body is kept for diagnostics
const maxErrorBody = 64 * 1024

// httpTransport leaves http.Client.Timeout unset: the caller's deadline
// governs, and timeout only applies to calls made without one.
type httpTransport struct {
	provider   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *logging.Logger
}

func newHTTPTransport(provider string, timeout time.Duration) httpTransport {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return httpTransport{
		provider:   provider,
		httpClient: &http.Client{},
		timeout:    timeout,
		logger:     logging.NewLogger(provider + "-client"),
	}
}

// withDefaultDeadline bounds ctx by the transport timeout unless it already has a deadline
func (t *httpTransport) withDefaultDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, t.timeout)
}

// postJSON marshals payload, POSTs it and returns the raw 2xx body.
// Everything else comes back as a classified *OCRError.
func (t *httpTransport) postJSON(ctx context.Context, endpoint string, headers map[string]string, payload interface{}) ([]byte, error) {
	ctx, cancel := t.withDefaultDeadline(ctx)
	defer cancel()

	// Marshal request
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, ocrerrors.NewAPIError(t.provider, 0, false, fmt.Errorf("failed to marshal request: %w", err))
	}

	// Create HTTP request
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, ocrerrors.NewAPIError(t.provider, 0, false, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()

	// Execute request
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, t.classifyTransportError(ctx, start, err)
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.classifyTransportError(ctx, start, fmt.Errorf("failed to read response body: %w", err))
	}

	// Check status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		t.logger.Warn("Provider returned error status",
			"status", resp.StatusCode,
			"durationMs", time.Since(start).Milliseconds())
		return nil, ocrerrors.FromHTTPStatus(t.provider, resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
	}

	t.logger.Debug("Provider call complete",
		"status", resp.StatusCode,
		"bytes", len(body),
		"durationMs", time.Since(start).Milliseconds())

	return body, nil
}

// get issues a GET and only checks the status code
func (t *httpTransport) get(ctx context.Context, endpoint string, headers map[string]string) error {
	ctx, cancel := t.withDefaultDeadline(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return t.classifyTransportError(ctx, time.Now(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return ocrerrors.FromHTTPStatus(t.provider, resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
	}

	return nil
}

func (t *httpTransport) classifyTransportError(ctx context.Context, start time.Time, err error) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return ocrerrors.NewTimeoutError(t.provider, time.Since(start), err)
	}
	// Network failures are transient
	return ocrerrors.NewAPIError(t.provider, 0, true, err)
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return stderrors.As(err, &te) && te.Timeout()
}

func invalidResponse(provider string, format string, args ...interface{}) error {
	return ocrerrors.NewInvalidResponseError(provider, fmt.Errorf(format, args...))
}
