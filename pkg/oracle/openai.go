package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kadirpekel/upchain/pkg/config"
	"github.com/kadirpekel/upchain/pkg/httpclient"
)

// ============================================================================
// OPENAI-COMPATIBLE PROVIDER
// ============================================================================

// OpenAIProvider calls any chat-completions compatible endpoint and forces
// structured output through response_format json_schema.
type OpenAIProvider struct {
	config  *config.OracleConfig
	client  *httpclient.Client
	counter *TokenCounter
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature,omitempty"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *openAIJSONSchema `json:"json_schema,omitempty"`
}

type openAIJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIProvider creates an OpenAI-compatible provider from config.
func NewOpenAIProvider(cfg *config.OracleConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewError("openai", "init", "api_key is required", nil)
	}

	counter, err := NewTokenCounter(cfg.Model)
	if err != nil {
		return nil, NewError("openai", "init", "failed to initialize token counter", err)
	}

	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
	)

	return &OpenAIProvider{config: cfg, client: client, counter: counter}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Close() error { return nil }

// Invoke performs one structured-output chat completion.
func (p *OpenAIProvider) Invoke(ctx context.Context, req Request) ([]byte, error) {
	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = "result"
	}

	body := openAIRequest{
		Model:       p.config.Model,
		Messages:    p.buildMessages(req),
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
		ResponseFormat: &openAIResponseFormat{
			Type: "json_schema",
			JSONSchema: &openAIJSONSchema{
				Name:   schemaName,
				Strict: true,
				Schema: req.Schema,
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to marshal request", err)
	}

	url := p.config.Host + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to read response", err)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to decode response", err)
	}
	if parsed.Error != nil {
		return nil, NewError(p.Name(), "invoke", parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return nil, NewError(p.Name(), "invoke", "no choices in response", nil)
	}

	return []byte(parsed.Choices[0].Message.Content), nil
}

func (p *OpenAIProvider) buildMessages(req Request) []openAIMessage {
	messages := []openAIMessage{
		{
			Role:    "system",
			Content: "You are a precise analyst. Answer strictly in the requested JSON format.",
		},
	}

	if serialized := SerializeContext(req, p.counter, p.config.ContextBudget); serialized != "" {
		messages = append(messages, openAIMessage{
			Role:    "user",
			Content: fmt.Sprintf("Context:\n%s\nTask: %s", serialized, req.Task),
		})
	} else {
		messages = append(messages, openAIMessage{Role: "user", Content: req.Task})
	}

	return messages
}

var _ Provider = (*OpenAIProvider)(nil)
