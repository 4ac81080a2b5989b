package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// systemPrompt frames every completion as raw JSON output.
const systemPrompt = "You generate synthetic datasets. Reply with a JSON array only, no prose and no markdown."

// DriverOptions are the sampling settings shared by all drivers.
type DriverOptions struct {
	Temperature float32
	MaxTokens   int
}

func apiKey(provider *models.ModelProvider) string {
	if provider.APIKey != "" {
		return provider.APIKey
	}
	k, _ := provider.Config["api_key"].(string)
	return k
}

func endpointOr(provider *models.ModelProvider, def string) string {
	if provider.Endpoint != "" {
		return strings.TrimRight(provider.Endpoint, "/")
	}
	return def
}

func postJSON(ctx context.Context, client *http.Client, name, url string, body interface{}, headers map[string]string, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: name, Code: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", name, err)
	}
	return nil
}

// ── OpenAI / Azure OpenAI ───────────────────────────────────

// OpenAIDriver talks to OpenAI-compatible chat completion APIs via go-openai.
type OpenAIDriver struct {
	kind   string
	client *http.Client
	opts   DriverOptions
}

// NewOpenAIDriver creates a driver for kind "openai" or "azure-openai".
func NewOpenAIDriver(kind string, client *http.Client, opts DriverOptions) *OpenAIDriver {
	return &OpenAIDriver{kind: kind, client: client, opts: opts}
}

func (d *OpenAIDriver) Kind() string { return d.kind }

func (d *OpenAIDriver) newClient(provider *models.ModelProvider) (*openai.Client, error) {
	key := apiKey(provider)
	if key == "" {
		return nil, &permanentError{fmt.Errorf("%s: api_key not configured for provider %s", d.kind, provider.Name)}
	}
	var cfg openai.ClientConfig
	if d.kind == "azure-openai" {
		if provider.Endpoint == "" {
			return nil, &permanentError{fmt.Errorf("azure-openai: endpoint not configured for provider %s", provider.Name)}
		}
		cfg = openai.DefaultAzureConfig(key, provider.Endpoint)
	} else {
		cfg = openai.DefaultConfig(key)
		if provider.Endpoint != "" {
			cfg.BaseURL = strings.TrimRight(provider.Endpoint, "/")
		}
	}
	cfg.HTTPClient = d.client
	return openai.NewClientWithConfig(cfg), nil
}

func (d *OpenAIDriver) Complete(ctx context.Context, provider *models.ModelProvider, model, prompt string) (string, error) {
	client, err := d.newClient(provider)
	if err != nil {
		return "", err
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return chatCompletion(ctx, client, d.kind, model, prompt, d.opts)
}

func (d *OpenAIDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	client, err := d.newClient(provider)
	if err != nil {
		return err
	}
	_, err = client.ListModels(ctx)
	return classifyOpenAIError(d.kind, err)
}

func chatCompletion(ctx context.Context, client *openai.Client, name, model, prompt string, opts DriverOptions) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty choices in response", name)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(name string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Provider: name, Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Provider: name, Code: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// ── Ollama ──────────────────────────────────────────────────

// OllamaDriver uses Ollama's OpenAI-compatible endpoint for completions and
// its native /api/tags endpoint for health checks.
type OllamaDriver struct {
	client *http.Client
	opts   DriverOptions
}

func NewOllamaDriver(client *http.Client, opts DriverOptions) *OllamaDriver {
	return &OllamaDriver{client: client, opts: opts}
}

func (d *OllamaDriver) Kind() string { return "ollama" }

func (d *OllamaDriver) Complete(ctx context.Context, provider *models.ModelProvider, model, prompt string) (string, error) {
	cfg := openai.DefaultConfig("ollama")
	cfg.BaseURL = endpointOr(provider, "http://localhost:11434") + "/v1"
	cfg.HTTPClient = d.client
	if model == "" {
		model = "llama3.1"
	}
	return chatCompletion(ctx, openai.NewClientWithConfig(cfg), "ollama", model, prompt, d.opts)
}

func (d *OllamaDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	url := endpointOr(provider, "http://localhost:11434") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: "ollama", Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// ── Anthropic ───────────────────────────────────────────────

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// AnthropicDriver calls the Anthropic Messages API.
type AnthropicDriver struct {
	client *http.Client
	opts   DriverOptions
}

func NewAnthropicDriver(client *http.Client, opts DriverOptions) *AnthropicDriver {
	return &AnthropicDriver{client: client, opts: opts}
}

func (d *AnthropicDriver) Kind() string { return "anthropic" }

func (d *AnthropicDriver) Complete(ctx context.Context, provider *models.ModelProvider, model, prompt string) (string, error) {
	key := apiKey(provider)
	if key == "" {
		return "", &permanentError{fmt.Errorf("anthropic: api_key not configured for provider %s", provider.Name)}
	}
	if model == "" {
		model = "claude-3-5-haiku-20241022"
	}

	var out anthropicResponse
	err := postJSON(ctx, d.client, "anthropic", endpointOr(provider, "https://api.anthropic.com")+"/v1/messages",
		anthropicRequest{
			Model:       model,
			System:      systemPrompt,
			Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
			MaxTokens:   d.opts.MaxTokens,
			Temperature: d.opts.Temperature,
		},
		map[string]string{"x-api-key": key, "anthropic-version": "2023-06-01"},
		&out)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String(), nil
}

func (d *AnthropicDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	if apiKey(provider) == "" {
		return fmt.Errorf("anthropic: api_key not configured")
	}
	return nil
}

// ── Gemini ──────────────────────────────────────────────────

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float32 `json:"temperature,omitempty"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GeminiDriver calls the Gemini generateContent REST API.
type GeminiDriver struct {
	client *http.Client
	opts   DriverOptions
}

func NewGeminiDriver(client *http.Client, opts DriverOptions) *GeminiDriver {
	return &GeminiDriver{client: client, opts: opts}
}

func (d *GeminiDriver) Kind() string { return "gemini" }

func (d *GeminiDriver) Complete(ctx context.Context, provider *models.ModelProvider, model, prompt string) (string, error) {
	key := apiKey(provider)
	if key == "" {
		return "", &permanentError{fmt.Errorf("gemini: api_key not configured for provider %s", provider.Name)}
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	body := geminiRequest{
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
	}
	body.GenerationConfig.Temperature = d.opts.Temperature
	body.GenerationConfig.MaxOutputTokens = d.opts.MaxTokens

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		endpointOr(provider, "https://generativelanguage.googleapis.com"), model)

	var out geminiResponse
	if err := postJSON(ctx, d.client, "gemini", url, body, map[string]string{"x-goog-api-key": key}, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates in response")
	}

	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (d *GeminiDriver) HealthCheck(ctx context.Context, provider *models.ModelProvider) error {
	key := apiKey(provider)
	if key == "" {
		return fmt.Errorf("gemini: api_key not configured")
	}
	url := endpointOr(provider, "https://generativelanguage.googleapis.com") + "/v1beta/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", key)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Provider: "gemini", Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}
