package convstore

import (
	"context"
	"sync"
	"testing"
	"time"

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
		rec = &store.ConversationRecord{
			ContextKey:  contextKey,
			Personality: "default",
			Settings:    make(map[string]string),
			Created:     time.Now(),
		}
		f.recs[contextKey] = rec
	}
	return rec, nil
}

func (f *fakeConvStore) AppendMessage(ctx context.Context, contextKey string, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.recs[contextKey]
	rec.Messages = append(rec.Messages, msg)
	rec.LastActivity = msg.Timestamp
	return nil
}

func (f *fakeConvStore) History(ctx context.Context, contextKey string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[contextKey]
	if !ok {
		return nil, nil
	}
	msgs := rec.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *fakeConvStore) Clear(ctx context.Context, contextKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.recs[contextKey]; ok {
		rec.Messages = nil
	}
	return nil
}

func (f *fakeConvStore) SetPersonality(ctx context.Context, contextKey, personality string, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.recs[contextKey]
	rec.Personality = personality
	rec.PersonalityLocked = locked
	return nil
}

func (f *fakeConvStore) SetSetting(ctx context.Context, contextKey, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[contextKey]
	if !ok {
		return nil
	}
	rec.Settings[key] = value
	return nil
}

func (f *fakeConvStore) GetSettings(ctx context.Context, contextKey string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[contextKey]
	if !ok {
		return nil, nil
	}
	return rec.Settings, nil
}

func (f *fakeConvStore) SetModeration(ctx context.Context, contextKey string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.recs[contextKey]
	rec.ModeratedUntil = until
	return nil
}

func (f *fakeConvStore) IncrementLaunch(ctx context.Context, contextKey string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[contextKey]
	if !ok {
		return 0, nil
	}
	rec.LaunchCount++
	return rec.LaunchCount, nil
}

func (f *fakeConvStore) ListStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key, rec := range f.recs {
		if rec.LastActivity.Before(olderThan) {
			out = append(out, key)
		}
	}
	return out, nil
}

func (f *fakeConvStore) Delete(ctx context.Context, contextKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.recs, contextKey)
	return nil
}

func newTestStore() (*Store, *fakeConvStore) {
	fake := newFakeConvStore()
	s := New(fake, AutoCleanPolicy{Method: "days", RetainDays: 30})
	return s, fake
}

func TestAppendAndHistory(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Append(ctx, "dm:u1", "user", "hello"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, "dm:u1", "assistant", "hi there"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	msgs, err := s.History(ctx, "dm:u1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[1].Content != "hi there" {
		t.Fatalf("unexpected message order/content: %+v", msgs)
	}
}

func TestClearRemovesMessagesAndReportsCount(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	s.Append(ctx, "dm:u1", "user", "one")
	s.Append(ctx, "dm:u1", "user", "two")

	n, err := s.Clear(ctx, "dm:u1")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("got %d deleted, want 2", n)
	}

	msgs, _ := s.History(ctx, "dm:u1", 10)
	if len(msgs) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(msgs))
	}
}

func TestSetPersonality_RejectsUnknownName(t *testing.T) {
	s, _ := newTestStore()
	if err := s.SetPersonality("u1", "not-a-real-personality"); err == nil {
		t.Fatalf("expected error for unknown personality")
	}
}

func TestSetPersonality_RefusedWhenLocked(t *testing.T) {
	s, _ := newTestStore()
	if err := s.LockPersonality("u1", "sarcastic", "admin1"); err != nil {
		t.Fatalf("LockPersonality: %v", err)
	}
	if err := s.SetPersonality("u1", "uwu"); err == nil {
		t.Fatalf("expected personality change to be refused while locked")
	}
	if got := s.ActivePersonality("u1").Name; got != "sarcastic" {
		t.Fatalf("got %q, want sarcastic", got)
	}
}

func TestTimeoutUser_ZeroMinutesExpiresImmediately(t *testing.T) {
	s, _ := newTestStore()
	s.TimeoutUser("u1", 0, "cooldown", "admin1")

	status := s.CheckStatus("u1")
	// A zero-minute timeout is already in the past, so it should lazily expire.
	if !status.Allowed {
		t.Fatalf("expected timeout to have already expired, got blocked: %q", status.Reason)
	}
}

func TestSuspendUser_BlocksUntilLifted(t *testing.T) {
	s, _ := newTestStore()
	s.SuspendUser("u1", "abuse", "admin1")

	status := s.CheckStatus("u1")
	if status.Allowed {
		t.Fatalf("expected suspended user to be blocked")
	}
	if status.Reason != "abuse" {
		t.Fatalf("got reason %q, want abuse", status.Reason)
	}
}

func TestCheckRateAndRecordAction(t *testing.T) {
	s, _ := newTestStore()
	for i := 0; i < 2; i++ {
		allowed, _ := s.CheckRate("u1", "chat", 2)
		if !allowed {
			t.Fatalf("expected action %d to be allowed", i)
		}
		s.RecordAction("u1", "chat")
	}
	if allowed, _ := s.CheckRate("u1", "chat", 2); allowed {
		t.Fatalf("expected third action to be blocked at limit 2")
	}
}
