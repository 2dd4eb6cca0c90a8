package llmrouter

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

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	anthropicAPIBase      = "https://api.anthropic.com/v1"
	anthropicAPIVersion   = "2023-06-01"
)

// anthropicProvider implements Provider over the Anthropic Messages API,
// adapted from the teacher's AnthropicProvider HTTP-client shape (functional
// construction, doRequest/parseResponse split) trimmed to PersonalityChatCore's
// plain-text chat needs — no tool-call or thinking-block plumbing here.
type anthropicProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

func newAnthropicProvider(apiKey, apiBase, defaultModel string) Provider {
	if apiBase == "" {
		apiBase = anthropicAPIBase
	}
	if defaultModel == "" {
		defaultModel = defaultAnthropicModel
	}
	return &anthropicProvider{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

func init() { RegisterProvider("anthropic", newAnthropicProvider) }

func (p *anthropicProvider) Name() string        { return "anthropic" }
func (p *anthropicProvider) DefaultModel() string { return p.defaultModel }

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := p.buildBody(req, false)
	respBody, err := p.doRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var resp anthropicMessageResponse
	if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	return resp.toChatResponse(), nil
}

func (p *anthropicProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	// Streaming not wired for the chat personality path (spec §4.8 only
	// requires the final assistant text); fall back to a single Chat call
	// and deliver it as one chunk, matching the teacher's "non-streaming
	// providers still satisfy the interface" convention.
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(StreamChunk{Content: resp.Content, Done: true})
	}
	return resp, nil
}

func (p *anthropicProvider) buildBody(req ChatRequest, stream bool) map[string]interface{} {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	var system string
	var messages []map[string]interface{}
	for _, m := range req.Messages {
		if m.Role == "system" {
			system += m.Content + "\n"
			continue
		}
		messages = append(messages, map[string]interface{}{"role": m.Role, "content": m.Content})
	}

	out := map[string]interface{}{
		"model":      model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if system != "" {
		out["system"] = strings.TrimSpace(system)
	}
	if stream {
		out["stream"] = true
	}
	return out
}

func (p *anthropicProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp.Body, nil
}

type anthropicMessageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (r *anthropicMessageResponse) toChatResponse() *ChatResponse {
	out := &ChatResponse{FinishReason: "stop"}
	for _, block := range r.Content {
		if block.Type == "text" {
			out.Content += block.Text
		}
	}
	if r.StopReason == "max_tokens" {
		out.FinishReason = "length"
	}
	return out
}
