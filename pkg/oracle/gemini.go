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
// GEMINI PROVIDER
// ============================================================================

// GeminiProvider calls the Gemini REST API with responseSchema-constrained
// JSON output.
type GeminiProvider struct {
	config  *config.OracleConfig
	client  *httpclient.Client
	counter *TokenCounter
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int            `json:"maxOutputTokens,omitempty"`
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// NewGeminiProvider creates a Gemini provider from config.
func NewGeminiProvider(cfg *config.OracleConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, NewError("gemini", "init", "api_key is required", nil)
	}

	// Gemini is not a tiktoken model; cl100k_base is close enough for
	// budget enforcement.
	counter, err := NewTokenCounter(cfg.Model)
	if err != nil {
		return nil, NewError("gemini", "init", "failed to initialize token counter", err)
	}

	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
	)

	return &GeminiProvider{config: cfg, client: client, counter: counter}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Close() error { return nil }

// Invoke performs one generateContent call.
func (p *GeminiProvider) Invoke(ctx context.Context, req Request) ([]byte, error) {
	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: p.buildPrompt(req)}}},
		},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      p.config.Temperature,
			MaxOutputTokens:  p.config.MaxTokens,
			ResponseMIMEType: "application/json",
			ResponseSchema:   sanitizeGeminiSchema(req.Schema),
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.config.Host, p.config.Model, p.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to read response", err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewError(p.Name(), "invoke", "failed to decode response", err)
	}
	if parsed.Error != nil {
		return nil, NewError(p.Name(), "invoke", parsed.Error.Message, nil)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, NewError(p.Name(), "invoke", "no candidates in response", nil)
	}

	return []byte(parsed.Candidates[0].Content.Parts[0].Text), nil
}

func (p *GeminiProvider) buildPrompt(req Request) string {
	serialized := SerializeContext(req, p.counter, p.config.ContextBudget)
	if serialized == "" {
		return req.Task
	}
	return fmt.Sprintf("Context:\n%s\nTask: %s", serialized, req.Task)
}

// sanitizeGeminiSchema strips JSON-schema keywords the Gemini API rejects.
func sanitizeGeminiSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}

	out := make(map[string]any, len(schema))
	for key, value := range schema {
		switch key {
		case "$schema", "$id", "additionalProperties", "$defs":
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			out[key] = sanitizeGeminiSchema(v)
		case []any:
			items := make([]any, len(v))
			for i, item := range v {
				if m, ok := item.(map[string]any); ok {
					items[i] = sanitizeGeminiSchema(m)
				} else {
					items[i] = item
				}
			}
			out[key] = items
		default:
			out[key] = value
		}
	}
	return out
}

var _ Provider = (*GeminiProvider)(nil)
