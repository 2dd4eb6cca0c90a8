package llmrouter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	ollamaapi "github.com/ollama/ollama/api"
)

const defaultOllamaModel = "llava"

// localProvider implements Provider over a local Ollama instance, grounded
// on win30221-genesis's pkg/llm/ollama client construction (api.NewClient
// over a custom *http.Client). This is the provider ImageAssist() resolves
// to by default — spec §4.6 requires image-assist stay on a local backend
// independent of the user's chosen chat provider.
type localProvider struct {
	client       *ollamaapi.Client
	defaultModel string
}

func newLocalProvider(apiKey, apiBase, defaultModel string) Provider {
	if defaultModel == "" {
		defaultModel = defaultOllamaModel
	}
	if apiBase == "" {
		apiBase = "http://127.0.0.1:11434"
	}
	u, err := url.Parse(apiBase)
	var client *ollamaapi.Client
	if err == nil {
		client = ollamaapi.NewClient(u, &http.Client{Timeout: 60 * time.Second})
	}
	return &localProvider{client: client, defaultModel: defaultModel}
}

func init() { RegisterProvider("ollama", newLocalProvider) }

func (p *localProvider) Name() string         { return "ollama" }
func (p *localProvider) DefaultModel() string { return p.defaultModel }

func (p *localProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("ollama: client not configured")
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	var messages []ollamaapi.Message
	for _, m := range req.Messages {
		msg := ollamaapi.Message{Role: m.Role, Content: m.Content}
		if len(m.Image) > 0 {
			msg.Images = []ollamaapi.ImageData{m.Image}
		}
		messages = append(messages, msg)
	}

	stream := false
	var content strings.Builder
	var doneReason string
	err := p.client.Chat(ctx, &ollamaapi.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
	}, func(resp ollamaapi.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			doneReason = resp.DoneReason
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: chat: %w", err)
	}

	finish := "stop"
	if doneReason == "length" {
		finish = "length"
	}
	return &ChatResponse{Content: content.String(), FinishReason: finish}, nil
}

func (p *localProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(StreamChunk{Content: resp.Content, Done: true})
	}
	return resp, nil
}
