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
	defaultOpenAIModel = "gpt-4o"
	openAIAPIBase      = "https://api.openai.com/v1"
)

// openAIProvider implements Provider over the Chat Completions API,
// adapted from the teacher's provider-file shape for OpenAI-compatible
// backends (same request/response skeleton DashScope and OpenAI share
// there, trimmed here to plain chat).
type openAIProvider struct {
	apiKey       string
	baseURL      string
	defaultModel string
	client       *http.Client
}

func newOpenAIProvider(apiKey, apiBase, defaultModel string) Provider {
	if apiBase == "" {
		apiBase = openAIAPIBase
	}
	if defaultModel == "" {
		defaultModel = defaultOpenAIModel
	}
	return &openAIProvider{
		apiKey:       apiKey,
		baseURL:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

func init() { RegisterProvider("openai", newOpenAIProvider) }

func (p *openAIProvider) Name() string         { return "openai" }
func (p *openAIProvider) DefaultModel() string { return p.defaultModel }

func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []map[string]string
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}
	body := map[string]interface{}{"model": model, "messages": messages}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		Choices []struct {
			Message      struct{ Content string `json:"content"` } `json:"message"`
			FinishReason string                                    `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return &ChatResponse{FinishReason: "stop"}, nil
	}
	return &ChatResponse{
		Content:      decoded.Choices[0].Message.Content,
		FinishReason: decoded.Choices[0].FinishReason,
	}, nil
}

func (p *openAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(StreamChunk{Content: resp.Content, Done: true})
	}
	return resp, nil
}
