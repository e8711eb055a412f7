package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxOllamaResponseBytes bounds the response body read, preventing
// memory exhaustion from a misbehaving endpoint.
const maxOllamaResponseBytes = 10 * 1024 * 1024

// OllamaConfig configures an OllamaProvider against an OpenAI-compatible
// chat completions endpoint (Ollama, vLLM, and similar local servers).
type OllamaConfig struct {
	Name              string
	Endpoint          string
	Model             string
	Temperature       float64
	ConnectionTimeout time.Duration
	ResponseTimeout   time.Duration
}

// OllamaProvider is a ResponseProvider backed by an OpenAI-compatible
// chat completions HTTP endpoint.
type OllamaProvider struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

// NewOllamaProvider constructs an OllamaProvider from cfg.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	return &OllamaProvider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.ConnectionTimeout,
		},
	}
}

// Metadata implements Provider.
func (o *OllamaProvider) Metadata() Metadata {
	respTimeout := o.cfg.ResponseTimeout
	connTimeout := o.cfg.ConnectionTimeout
	return Metadata{
		Name:                 o.cfg.Name,
		ConnectionTimeout:    &connTimeout,
		ResponseTimeout:      &respTimeout,
		FSAbility:            FSNone,
		SupportsSystemPrompt: true,
	}
}

// Validate implements Provider.
func (o *OllamaProvider) Validate() error {
	if o.cfg.Endpoint == "" {
		return fmt.Errorf("ollama provider %q: endpoint is required", o.cfg.Name)
	}
	if o.cfg.Model == "" {
		return fmt.Errorf("ollama provider %q: model is required", o.cfg.Name)
	}
	if o.cfg.Temperature < 0 || o.cfg.Temperature > 1 {
		return fmt.Errorf("ollama provider %q: temperature must be between 0 and 1", o.cfg.Name)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (o *OllamaProvider) buildURL() string {
	base := strings.TrimSuffix(o.cfg.Endpoint, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Generate implements Provider by issuing a single chat completion
// request. A transport failure or a 5xx status is returned as a
// TransientError; a 4xx status or a malformed response is returned as
// a FatalError.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, _ map[string]any, systemPrompt string) (Result, error) {
	var messages []chatMessage
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return Result{}, NewFatalError(fmt.Errorf("marshal chat request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.buildURL(), bytes.NewReader(body))
	if err != nil {
		return Result{}, NewFatalError(fmt.Errorf("build chat request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Result{}, NewTransientError(fmt.Errorf("call ollama endpoint: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponseBytes))
	if err != nil {
		return Result{}, NewTransientError(fmt.Errorf("read ollama response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return Result{}, NewTransientError(fmt.Errorf("ollama endpoint returned %d: %s", resp.StatusCode, raw))
	}
	if resp.StatusCode >= 400 {
		return Result{}, NewFatalError(fmt.Errorf("ollama endpoint returned %d: %s", resp.StatusCode, raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, NewFatalError(fmt.Errorf("parse ollama response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return Result{}, NewFatalError(fmt.Errorf("ollama response had no choices"))
	}

	return Result{Text: parsed.Choices[0].Message.Content, Raw: parsed}, nil
}
