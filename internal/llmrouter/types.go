// Package llmrouter resolves a chat turn to a concrete LLM provider and
// keeps the image-assist channel pinned to its own provider regardless of
// which chat provider a user has selected.
package llmrouter

import "context"

// Message is one turn of a chat exchange, shaped after the teacher's
// providers.Message but trimmed to what PersonalityChatCore and the vision
// image-assist path actually need.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
	Image   []byte `json:"-"` // optional inline image for vision calls
}

// ChatRequest is the input to Provider.Chat.
type ChatRequest struct {
	Messages []Message
	Model    string
	MaxTokens int
}

// ChatResponse is the result of Provider.Chat.
type ChatResponse struct {
	Content      string
	FinishReason string
}

// StreamChunk is one piece of a streamed response.
type StreamChunk struct {
	Content string
	Done    bool
}

// Provider is the interface every concrete LLM backend implements.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error)
	DefaultModel() string
	Name() string
}
