// Package store defines the persistence interfaces used by the gateway's
// components. Each interface backs exactly one domain — conversations,
// the LoRA catalog, the content taxonomy, the job queue, and per-user
// hosting credentials — and none of the concrete backends share a primary
// key space across tables, matching the isolation spec §3 requires.
package store

import (
	"context"
	"time"
)

// StoreConfig selects and configures the relational backend.
type StoreConfig struct {
	Driver      string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresDSN string
}

// Stores is the top-level container for all storage backends, handed to
// every component's constructor.
type Stores struct {
	Conversations ConversationStore
	LoRA          LoRAStore
	Classifier    ClassifierStore
	Queue         QueueStore
	Hosting       HostingStore
}

// Message is one turn of conversation history, stored as JSON inside the
// conversations table.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationRecord is the persisted state for one context key (spec §4.5).
type ConversationRecord struct {
	ContextKey       string
	Personality      string
	PersonalityLocked bool
	Messages         []Message
	Settings         map[string]string
	Created          time.Time
	Updated          time.Time
	LastActivity     time.Time
	LaunchCount      int
	ModeratedUntil   time.Time
}

// ConversationStore persists conversation transcripts, personality state,
// settings, and moderation state per context key.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, contextKey string) (*ConversationRecord, error)
	AppendMessage(ctx context.Context, contextKey string, msg Message) error
	History(ctx context.Context, contextKey string, limit int) ([]Message, error)
	Clear(ctx context.Context, contextKey string) error
	SetPersonality(ctx context.Context, contextKey, personality string, locked bool) error
	SetSetting(ctx context.Context, contextKey, key, value string) error
	GetSettings(ctx context.Context, contextKey string) (map[string]string, error)
	SetModeration(ctx context.Context, contextKey string, until time.Time) error
	IncrementLaunch(ctx context.Context, contextKey string) (int, error)
	ListStale(ctx context.Context, olderThan time.Time) ([]string, error)
	Delete(ctx context.Context, contextKey string) error
}

// LoRAEntry is one persisted LoRA model record (spec §3, §4.2). Category is
// derived deterministically from TrainingTagFrequency when present, otherwise
// from name/path heuristics; recomputing it from identical inputs must be
// idempotent.
type LoRAEntry struct {
	Name        string
	FilePath    string
	Alias       string
	Description string

	Category    string // "anime", "realistic", "character", "style", "concept", "general"
	ContentType string // "safe", "suggestive", "nsfw"

	TriggerWords []string
	Tags         []string

	// TrainingTagFrequency is tag->count summed across the engine's training
	// metadata buckets; when non-empty it drives category/content-type
	// derivation, and it is the input to suggest_for_prompt's scoring formula.
	TrainingTagFrequency map[string]int
	RecommendedWeight    float64

	Created    time.Time
	LastSynced time.Time
}

// LoRAStore persists the LoRA catalog.
type LoRAStore interface {
	Upsert(ctx context.Context, e LoRAEntry) error
	Get(ctx context.Context, name string) (*LoRAEntry, error)
	List(ctx context.Context) ([]LoRAEntry, error)
	Search(ctx context.Context, query string) ([]LoRAEntry, error)
	ByCategory(ctx context.Context, category string) ([]LoRAEntry, error)
	Delete(ctx context.Context, name string) error
}

// CategoryNode is one node in the content-classifier taxonomy (spec §3, §4.3).
// Confidences is aligned by index with Words: Confidences[i] is the
// confidence ∈[0,1] of Words[i] belonging to this category, matching
// ContentWord's `(word, category_path, confidence)` record.
type CategoryNode struct {
	ID          int64
	Name        string
	ParentID    int64 // 0 for root categories
	Words       []string
	Confidences []float64
	SafetyTier  string // "safe", "moderate", "explicit"
}

// ClassifierStore persists the hierarchical content-category taxonomy.
type ClassifierStore interface {
	AddCategory(ctx context.Context, name string, parentID int64, safetyTier string) (int64, error)
	AddWords(ctx context.Context, categoryID int64, words []string, confidences []float64) error
	Category(ctx context.Context, id int64) (*CategoryNode, error)
	Children(ctx context.Context, parentID int64) ([]CategoryNode, error)
	AllCategories(ctx context.Context) ([]CategoryNode, error)
	SearchWords(ctx context.Context, query string) ([]CategoryNode, error)
}

// JobRecord is one queued or completed generation job (spec §3, §4.4).
type JobRecord struct {
	ID          string
	ContextKey  string
	Priority    int
	Status      string // "queued", "running", "done", "failed", "canceled"
	Request     []byte // serialized Txt2ImgRequest
	ResultPaths []string
	Error       string
	Created     time.Time
	Started     time.Time
	Finished    time.Time
}

// QueueStore persists job history (the in-memory heap holds live ordering;
// this store is the durable record read back by history). ListPending
// returns unfinished jobs; the queue engine does not reload them on start.
type QueueStore interface {
	Insert(ctx context.Context, job JobRecord) error
	UpdateStatus(ctx context.Context, id, status, errMsg string, resultPaths []string) error
	Get(ctx context.Context, id string) (*JobRecord, error)
	ListByContext(ctx context.Context, contextKey string, limit int) ([]JobRecord, error)
	ListPending(ctx context.Context) ([]JobRecord, error)
}

// HostingCredential is a per-user hosting-service credential (spec §4.7, §6).
type HostingCredential struct {
	UserID    string
	APIKey    string
	AlbumID   string
	Created   time.Time
}

// HostingStore persists per-user hosting-service credentials.
type HostingStore interface {
	SetCredential(ctx context.Context, cred HostingCredential) error
	GetCredential(ctx context.Context, userID string) (*HostingCredential, error)
	DeleteCredential(ctx context.Context, userID string) error
}
