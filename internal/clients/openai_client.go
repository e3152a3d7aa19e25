package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	DefaultOpenAIEndpoint = "https://api.openai.com/v1"
	DefaultOpenAIModel    = "gpt-4o"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	httpTransport
	cfg ClientConfig
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIChatRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new chat completions client
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultOpenAIEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &OpenAIClient{
		httpTransport: newHTTPTransport("openai", cfg.Timeout),
		cfg:           cfg,
	}
}

func (c *OpenAIClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
}

// Extract sends the image as a data URL alongside the instruction
func (c *OpenAIClient) Extract(ctx context.Context, req *VisionRequest) (*VisionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	payload := openAIChatRequest{
		Model:     c.cfg.Model,
		MaxTokens: maxTokens,
		Messages: []openAIMessage{
			{
				Role: "user",
				Content: []openAIContentPart{
					{Type: "text", Text: req.Prompt},
					{Type: "image_url", ImageURL: &openAIImageURL{
						URL:    fmt.Sprintf("data:%s;base64,%s", req.MediaType, req.ImageBase64),
						Detail: "high",
					}},
				},
			},
		},
	}

	body, err := c.postJSON(ctx, c.cfg.Endpoint+"/chat/completions", c.headers(), payload)
	if err != nil {
		return nil, err
	}

	// Parse response
	var chatResp openAIChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, invalidResponse("openai", "failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == nil {
		return nil, invalidResponse("openai", "response has no message content")
	}

	choice := chatResp.Choices[0]
	return &VisionResponse{
		Text:      *choice.Message.Content,
		Truncated: choice.FinishReason == "length",
		Model:     chatResp.Model,
		Raw:       json.RawMessage(body),
	}, nil
}

// HealthCheck verifies the credential by listing models
func (c *OpenAIClient) HealthCheck(ctx context.Context) error {
	return c.get(ctx, c.cfg.Endpoint+"/models", c.headers())
}
