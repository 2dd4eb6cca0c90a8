package personality

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/convstore"
	"github.com/sdforge/sdforge-gateway/internal/llmrouter"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// fakeConvStore is a minimal in-memory store.ConversationStore for tests.
type fakeConvStore struct {
	mu   sync.Mutex
	recs map[string]*store.ConversationRecord
}

func newFakeConvStore() *fakeConvStore {
	return &fakeConvStore{recs: make(map[string]*store.ConversationRecord)}
}

func (f *fakeConvStore) GetOrCreate(ctx context.Context, contextKey string) (*store.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[contextKey]
	if !ok {
		rec = &store.ConversationRecord{ContextKey: contextKey, Personality: "default", Settings: map[string]string{}}
		f.recs[contextKey] = rec
	}
	return rec, nil
}

func (f *fakeConvStore) AppendMessage(ctx context.Context, contextKey string, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.recs[contextKey]
	rec.Messages = append(rec.Messages, msg)
	return nil
}

func (f *fakeConvStore) History(ctx context.Context, contextKey string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[contextKey]
	if !ok {
		return nil, nil
	}
	return rec.Messages, nil
}

func (f *fakeConvStore) Clear(ctx context.Context, contextKey string) error { return nil }
func (f *fakeConvStore) SetPersonality(ctx context.Context, contextKey, personality string, locked bool) error {
	return nil
}
func (f *fakeConvStore) SetSetting(ctx context.Context, contextKey, key, value string) error {
	return nil
}
func (f *fakeConvStore) GetSettings(ctx context.Context, contextKey string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeConvStore) SetModeration(ctx context.Context, contextKey string, until time.Time) error {
	return nil
}
func (f *fakeConvStore) IncrementLaunch(ctx context.Context, contextKey string) (int, error) {
	return 0, nil
}
func (f *fakeConvStore) ListStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	return nil, nil
}
func (f *fakeConvStore) Delete(ctx context.Context, contextKey string) error { return nil }

type fakeOrchestrator struct {
	jobID string
	err   error
}

func (f *fakeOrchestrator) Orchestrate(ctx context.Context, userID, prompt string) (string, error) {
	return f.jobID, f.err
}

type scriptedProvider struct {
	reply string
	err   error
}

func (p *scriptedProvider) Chat(ctx context.Context, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llmrouter.ChatResponse{Content: p.reply}, nil
}
func (p *scriptedProvider) ChatStream(ctx context.Context, req llmrouter.ChatRequest, onChunk func(llmrouter.StreamChunk)) (*llmrouter.ChatResponse, error) {
	return p.Chat(ctx, req)
}
func (p *scriptedProvider) DefaultModel() string { return "scripted" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func init() {
	llmrouter.RegisterProvider("personality-test-chat", func(apiKey, apiBase, defaultModel string) llmrouter.Provider {
		return &scriptedProvider{reply: "a plain reply"}
	})
	llmrouter.RegisterProvider("personality-test-vision", func(apiKey, apiBase, defaultModel string) llmrouter.Provider {
		return &scriptedProvider{reply: "an enhanced prompt"}
	})
}

func newTestCore(t *testing.T, images ImageOrchestrator) (*Core, *convstore.Store) {
	t.Helper()
	reg := llmrouter.NewRegistry("personality-test-chat", "personality-test-vision")
	if err := reg.Install("personality-test-chat", "", "", "", 0); err != nil {
		t.Fatalf("Install chat: %v", err)
	}
	if err := reg.Install("personality-test-vision", "", "", "", 0); err != nil {
		t.Fatalf("Install vision: %v", err)
	}
	conv := convstore.New(newFakeConvStore(), convstore.AutoCleanPolicy{Method: "days", RetainDays: 30})
	return New(conv, reg, images, 20), conv
}

func TestChat_RefusesSuspendedUser(t *testing.T) {
	core, conv := newTestCore(t, nil)
	conv.SuspendUser("u1", "abuse", "admin1")

	reply, err := core.Chat(context.Background(), "u1", "dm:u1", "hello", 10)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !reply.Refused || reply.RefusalReason != "abuse" {
		t.Fatalf("got %+v, want refused with reason abuse", reply)
	}
}

func TestChat_RefusesOverRateLimit(t *testing.T) {
	core, conv := newTestCore(t, nil)
	conv.RecordAction("u1", "chat")

	reply, err := core.Chat(context.Background(), "u1", "dm:u1", "hello", 1)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !reply.Refused {
		t.Fatalf("expected refusal once the per-minute limit is hit")
	}
}

func TestChat_PlainMessageReturnsProviderReply(t *testing.T) {
	core, _ := newTestCore(t, nil)
	reply, err := core.Chat(context.Background(), "u1", "dm:u1", "how is the weather today", 10)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Refused || reply.Text != "a plain reply" {
		t.Fatalf("got %+v", reply)
	}
}

func TestChat_ImageIntentRoutesToOrchestrator(t *testing.T) {
	core, _ := newTestCore(t, &fakeOrchestrator{jobID: "job-123"})
	reply, err := core.Chat(context.Background(), "u1", "dm:u1", "please generate an image of a cat", 10)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.ImageJobID != "job-123" {
		t.Fatalf("got job ID %q, want job-123", reply.ImageJobID)
	}
}

func TestChat_ImageIntentWithoutOrchestratorFails(t *testing.T) {
	core, _ := newTestCore(t, nil)
	_, err := core.Chat(context.Background(), "u1", "dm:u1", "draw me a picture of a dog", 10)
	if err == nil {
		t.Fatalf("expected configuration error with no image orchestrator wired")
	}
}

func TestChat_ImageIntentPropagatesOrchestratorError(t *testing.T) {
	core, _ := newTestCore(t, &fakeOrchestrator{err: errors.New("queue full")})
	_, err := core.Chat(context.Background(), "u1", "dm:u1", "render an image of a sunset", 10)
	if err == nil {
		t.Fatalf("expected orchestrator error to propagate")
	}
}

func TestStripThinking_RemovesThinkTags(t *testing.T) {
	got := stripThinking("<think>internal reasoning</think>the actual reply")
	if got != "the actual reply" {
		t.Fatalf("got %q, want %q", got, "the actual reply")
	}
}

func TestStripThinking_LeavesPlainTextUntouched(t *testing.T) {
	got := stripThinking("just a normal reply")
	if got != "just a normal reply" {
		t.Fatalf("got %q, want unchanged", got)
	}
}
