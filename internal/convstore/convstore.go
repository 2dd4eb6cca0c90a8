package convstore

import (
	"context"
	"sync"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// userState is per-user moderation/personality overlay state that spec §4.5
// keys by user_id rather than context_key. It lives in memory only: unlike
// messages (which must survive restarts for history continuity), an
// in-flight timeout clears naturally on process restart, and a personality
// choice re-resolves to the default on next chat turn — an accepted
// simplification over persisting a second keyspace.
type userState struct {
	personality       string
	personalityLocked bool
	lockedBy          string
	timeoutUntil      time.Time
	timeoutReason     string
	suspended         bool
	suspendReason     string
}

// Store is the ConversationStore component.
type Store struct {
	db          store.ConversationStore
	rateLimiter *RateLimiter

	mu    sync.Mutex
	users map[string]*userState

	launches      int
	cleanupPolicy AutoCleanPolicy
}

// AutoCleanPolicy configures the startup cleanup pass (spec §4.5), plus an
// optional cron schedule for deployments that want cleanup decoupled from
// process launches entirely.
type AutoCleanPolicy struct {
	Method      string // "days", "launches", or "cron"
	Threshold   int
	RetainDays  int
	Schedule    string // cron expression, used when Method is "cron"
	lastCleanup time.Time
}

// New creates a Store backed by db.
func New(db store.ConversationStore, policy AutoCleanPolicy) *Store {
	return &Store{
		db:            db,
		rateLimiter:   NewRateLimiter(),
		users:         make(map[string]*userState),
		cleanupPolicy: policy,
	}
}

func (s *Store) user(userID string) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		u = &userState{personality: "default"}
		s.users[userID] = u
	}
	return u
}

// Append adds one message to contextKey's transcript.
func (s *Store) Append(ctx context.Context, contextKey, role, content string) error {
	if _, err := s.db.GetOrCreate(ctx, contextKey); err != nil {
		return err
	}
	return s.db.AppendMessage(ctx, contextKey, store.Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// History returns up to limit of the most recent messages, chronological
// ascending, per spec §4.5.
func (s *Store) History(ctx context.Context, contextKey string, limit int) ([]store.Message, error) {
	return s.db.History(ctx, contextKey, limit)
}

// Clear deletes contextKey's transcript, returning the number of messages
// removed.
func (s *Store) Clear(ctx context.Context, contextKey string) (int, error) {
	rec, err := s.db.GetOrCreate(ctx, contextKey)
	if err != nil {
		return 0, err
	}
	deleted := len(rec.Messages)
	if err := s.db.Clear(ctx, contextKey); err != nil {
		return 0, err
	}
	return deleted, nil
}

// GetSettings auto-creates default settings for contextKey on first access.
func (s *Store) GetSettings(ctx context.Context, contextKey string) (map[string]string, error) {
	if _, err := s.db.GetOrCreate(ctx, contextKey); err != nil {
		return nil, err
	}
	return s.db.GetSettings(ctx, contextKey)
}

// SetSetting persists one setting for contextKey.
func (s *Store) SetSetting(ctx context.Context, contextKey, key, value string) error {
	return s.db.SetSetting(ctx, contextKey, key, value)
}

// SetPersonality sets userID's active personality, refusing the change when
// a personality has been locked by an admin (spec §4.5).
func (s *Store) SetPersonality(userID, name string) error {
	if _, ok := builtinPersonalities[name]; !ok {
		return apperr.Newf(apperr.Validation, "unknown personality %q", name)
	}
	u := s.user(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.personalityLocked {
		return apperr.Newf(apperr.Policy, "personality is locked to %q by an admin", u.personality)
	}
	u.personality = name
	return nil
}

// LockPersonality pins userID's personality, preventing further
// self-service changes until an admin unlocks it.
func (s *Store) LockPersonality(userID, name, adminID string) error {
	if _, ok := builtinPersonalities[name]; !ok {
		return apperr.Newf(apperr.Validation, "unknown personality %q", name)
	}
	u := s.user(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	u.personality = name
	u.personalityLocked = true
	u.lockedBy = adminID
	return nil
}

// ActivePersonality returns userID's current personality.
func (s *Store) ActivePersonality(userID string) Personality {
	u := s.user(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return LookupPersonality(u.personality)
}

// TimeoutUser mutes userID for minutes, with a reason recorded for audit.
func (s *Store) TimeoutUser(userID string, minutes int, reason, adminID string) {
	u := s.user(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	u.timeoutUntil = time.Now().Add(time.Duration(minutes) * time.Minute)
	u.timeoutReason = reason
}

// SuspendUser suspends userID indefinitely until an admin lifts it.
func (s *Store) SuspendUser(userID string, reason, adminID string) {
	u := s.user(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	u.suspended = true
	u.suspendReason = reason
}

// Status reports whether userID may currently chat/generate.
type Status struct {
	Allowed bool
	Reason  string
}

// CheckStatus lazily expires elapsed timeouts and reports userID's current
// standing.
func (s *Store) CheckStatus(userID string) Status {
	u := s.user(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.suspended {
		return Status{Allowed: false, Reason: u.suspendReason}
	}
	if !u.timeoutUntil.IsZero() {
		if time.Now().Before(u.timeoutUntil) {
			return Status{Allowed: false, Reason: u.timeoutReason}
		}
		u.timeoutUntil = time.Time{}
		u.timeoutReason = ""
	}
	return Status{Allowed: true}
}

// CheckRate reports whether userID may perform action again right now.
func (s *Store) CheckRate(userID, action string, maxPerMinute int) (allowed bool, secondsUntilReset int) {
	return s.rateLimiter.CheckRate(userID, action, maxPerMinute)
}

// RecordAction records one occurrence of action for rate-limit accounting.
func (s *Store) RecordAction(userID, action string) {
	s.rateLimiter.RecordAction(userID, action)
}
