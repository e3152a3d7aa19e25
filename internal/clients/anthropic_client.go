package clients

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	DefaultAnthropicEndpoint = "https://api.anthropic.com"
	DefaultAnthropicModel    = "claude-sonnet-4-20250514"
	anthropicVersion         = "2023-06-01"
)

// AnthropicClient talks to the Anthropic messages API
type AnthropicClient struct {
	httpTransport
	cfg ClientConfig
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicContent struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// NewAnthropicClient creates a new messages API client
func NewAnthropicClient(cfg ClientConfig) *AnthropicClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultAnthropicEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &AnthropicClient{
		httpTransport: newHTTPTransport("anthropic", cfg.Timeout),
		cfg:           cfg,
	}
}

func (c *AnthropicClient) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}
}

// Extract sends the image as a base64 source block followed by the instruction
func (c *AnthropicClient) Extract(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	payload := anthropicRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicContent{
					{Type: "image", Source: &anthropicImageSource{
						Type:      "base64",
						MediaType: req.MediaType,
						Data:      req.ImageBase64,
					}},
					{Type: "text", Text: req.Prompt},
				},
			},
		},
	}

	body, err := c.postJSON(ctx, c.cfg.Endpoint+"/v1/messages", c.headers(), payload)
	if err != nil {
		return nil, err
	}

	var msgResp anthropicResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return nil, invalidResponse("anthropic", "failed to parse response: %w", err)
	}
	if msgResp.Content == nil {
		return nil, invalidResponse("anthropic", "response has no content blocks")
	}

	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type != "text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block.Text)
	}

	return &VisionResponse{
		Text:      sb.String(),
		Truncated: msgResp.StopReason == "max_tokens",
		Model:     msgResp.Model,
		Raw:       json.RawMessage(body),
	}, nil
}

// HealthCheck verifies the credential by listing models
func (c *AnthropicClient) HealthCheck(ctx context.Context) error {
	return c.get(ctx, c.cfg.Endpoint+"/v1/models", c.headers())
}
