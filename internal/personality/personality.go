// Package personality implements PersonalityChatCore (spec §4.8): a single
// "chat with context" call that layers status/rate checks, personality
// selection, image-intent detection, and history management on top of
// LLMRouter's chat channel.
//
// Grounded on the teacher pack's internal/agent/loop.go (status/rate checks
// gating every provider call before the turn proceeds) and sanitize.go's
// thinking-tag stripping, reimplemented narrowly here for plain assistant
// text rather than the teacher's full tool-call transcript sanitizer.
package personality

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/convstore"
	"github.com/sdforge/sdforge-gateway/internal/llmrouter"
)

// ImageOrchestrator is the narrow slice of ToolSurface's generation
// orchestration PersonalityChatCore needs for its image-assist branch,
// kept as an interface to avoid a personality↔toolsurface import cycle.
type ImageOrchestrator interface {
	Orchestrate(ctx context.Context, userID, prompt string) (jobID string, err error)
}

// Reply is the outcome of a chat turn.
type Reply struct {
	Text        string
	ImageJobID  string // non-empty when the turn branched to image-assist
	Refused     bool
	RefusalReason string
}

// Core is the PersonalityChatCore component.
type Core struct {
	conversations *convstore.Store
	llm           *llmrouter.Registry
	images        ImageOrchestrator
	maxContext    int
}

// New creates a Core.
func New(conversations *convstore.Store, llm *llmrouter.Registry, images ImageOrchestrator, maxContextMessages int) *Core {
	if maxContextMessages <= 0 {
		maxContextMessages = 20
	}
	return &Core{conversations: conversations, llm: llm, images: images, maxContext: maxContextMessages}
}

// imageIntent matches a small set of generation verbs combined with a
// following subject phrase, per spec §4.8's "simple tokenized heuristics".
var imageIntent = regexp.MustCompile(`(?i)\b(generate|draw|render|paint|create)\b.{0,40}\b(image|picture|photo|art|illustration|drawing)\b|\bcreate an image\b`)

// Chat runs one chat turn for userID within contextKey, following the
// six-step algorithm spec §4.8 names.
func (c *Core) Chat(ctx context.Context, userID, contextKey, message string, rateLimitPerMinute int) (*Reply, error) {
	status := c.conversations.CheckStatus(userID)
	if !status.Allowed {
		return &Reply{Refused: true, RefusalReason: status.Reason}, nil
	}

	allowed, resetSeconds := c.conversations.CheckRate(userID, "chat", rateLimitPerMinute)
	if !allowed {
		return &Reply{Refused: true, RefusalReason: refusalRateLimited(resetSeconds)}, nil
	}

	personality := c.conversations.ActivePersonality(userID)

	if imageIntent.MatchString(message) {
		reply, err := c.imageAssist(ctx, userID, contextKey, message, personality)
		if err != nil {
			return nil, err
		}
		c.conversations.RecordAction(userID, "chat")
		return reply, nil
	}

	reply, err := c.plainChat(ctx, userID, contextKey, message, personality)
	if err != nil {
		return nil, err
	}
	c.conversations.RecordAction(userID, "chat")
	return reply, nil
}

func (c *Core) imageAssist(ctx context.Context, userID, contextKey, message string, personality convstore.Personality) (*Reply, error) {
	if c.images == nil {
		return nil, apperr.New(apperr.Configuration, "image orchestration is not configured")
	}

	enhancer, err := c.llm.ImageAssist()
	if err != nil {
		return nil, err
	}
	resp, err := enhancer.Chat(ctx, llmrouter.ChatRequest{
		Messages: []llmrouter.Message{
			{Role: "system", Content: personality.ImageInjectionPrompt},
			{Role: "user", Content: message},
		},
	})
	if err != nil {
		return nil, err
	}
	enhancedPrompt := strings.TrimSpace(resp.Content)
	if enhancedPrompt == "" {
		enhancedPrompt = message
	}

	jobID, err := c.images.Orchestrate(ctx, userID, enhancedPrompt)
	if err != nil {
		return nil, err
	}

	return &Reply{
		Text:       personalityFlavoredAck(personality),
		ImageJobID: jobID,
	}, nil
}

func (c *Core) plainChat(ctx context.Context, userID, contextKey, message string, personality convstore.Personality) (*Reply, error) {
	history, err := c.conversations.History(ctx, contextKey, c.maxContext)
	if err != nil {
		return nil, err
	}

	messages := make([]llmrouter.Message, 0, len(history)+2)
	messages = append(messages, llmrouter.Message{Role: "system", Content: personality.SystemPrompt})
	for _, m := range history {
		messages = append(messages, llmrouter.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llmrouter.Message{Role: "user", Content: message})

	provider, err := c.llm.Chat(userID)
	if err != nil {
		return nil, err
	}
	resp, err := provider.Chat(ctx, llmrouter.ChatRequest{Messages: messages})
	if err != nil {
		return nil, err
	}

	if err := c.conversations.Append(ctx, contextKey, "user", message); err != nil {
		return nil, err
	}
	cleaned := stripThinking(resp.Content)
	if err := c.conversations.Append(ctx, contextKey, "assistant", cleaned); err != nil {
		return nil, err
	}

	return &Reply{Text: cleaned}, nil
}

func personalityFlavoredAck(p convstore.Personality) string {
	switch p.Name {
	case "uwu":
		return "okie~ generating that for you now! (づ｡◕‿‿◕｡)づ"
	case "sarcastic":
		return "Sure, let me just conjure that image out of thin air. One moment."
	case "professional":
		return "Your image request has been queued for generation."
	default:
		return "Working on that image now."
	}
}

func refusalRateLimited(resetSeconds int) string {
	return fmt.Sprintf("rate limit exceeded, try again in %ds", resetSeconds)
}

// thinkingTagPatterns matches the internal reasoning delimiters some LLM
// providers emit inline, stripped before the reply reaches the user per
// spec §4.8 step 5.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinking(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return strings.TrimSpace(content)
	}
	cleaned := content
	for _, pat := range thinkingTagPatterns {
		cleaned = pat.ReplaceAllString(cleaned, "")
	}
	return strings.TrimSpace(cleaned)
}
