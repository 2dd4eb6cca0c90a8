package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// ConversationStore implements store.ConversationStore over database/sql.
type ConversationStore struct{ db *DB }

func NewConversationStore(db *DB) *ConversationStore { return &ConversationStore{db: db} }

func (s *ConversationStore) GetOrCreate(ctx context.Context, contextKey string) (*store.ConversationRecord, error) {
	rec, err := s.load(ctx, contextKey)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Wrap(apperr.Internal, "load conversation", err)
	}

	now := time.Now()
	rec = &store.ConversationRecord{
		ContextKey:   contextKey,
		Messages:     []store.Message{},
		Settings:     map[string]string{},
		Created:      now,
		Updated:      now,
		LastActivity: now,
	}
	_, err = s.db.ExecContext(ctx, s.db.rebind(
		`INSERT INTO conversations (context_key, messages, settings, created_at, updated_at, last_activity_at)
		 VALUES (?, '[]', '{}', ?, ?, ?)`),
		contextKey, now, now, now,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "create conversation", err)
	}
	return rec, nil
}

func (s *ConversationStore) load(ctx context.Context, contextKey string) (*store.ConversationRecord, error) {
	var rec store.ConversationRecord
	var msgsJSON, settingsJSON string
	var locked int
	var moderatedUntil sql.NullTime

	err := s.db.QueryRowContext(ctx, s.db.rebind(
		`SELECT context_key, personality, personality_locked, messages, settings,
		        launch_count, moderated_until, created_at, updated_at, last_activity_at
		 FROM conversations WHERE context_key = ?`), contextKey,
	).Scan(&rec.ContextKey, &rec.Personality, &locked, &msgsJSON, &settingsJSON,
		&rec.LaunchCount, &moderatedUntil, &rec.Created, &rec.Updated, &rec.LastActivity)
	if err != nil {
		return nil, err
	}

	rec.PersonalityLocked = locked != 0
	if moderatedUntil.Valid {
		rec.ModeratedUntil = moderatedUntil.Time
	}
	_ = json.Unmarshal([]byte(msgsJSON), &rec.Messages)
	_ = json.Unmarshal([]byte(settingsJSON), &rec.Settings)
	if rec.Messages == nil {
		rec.Messages = []store.Message{}
	}
	if rec.Settings == nil {
		rec.Settings = map[string]string{}
	}
	return &rec, nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, contextKey string, msg store.Message) error {
	rec, err := s.GetOrCreate(ctx, contextKey)
	if err != nil {
		return err
	}
	rec.Messages = append(rec.Messages, msg)
	data, _ := json.Marshal(rec.Messages)
	now := time.Now()
	_, err = s.db.ExecContext(ctx, s.db.rebind(
		`UPDATE conversations SET messages = ?, updated_at = ?, last_activity_at = ? WHERE context_key = ?`),
		string(data), now, now, contextKey,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "append message", err)
	}
	return nil
}

func (s *ConversationStore) History(ctx context.Context, contextKey string, limit int) ([]store.Message, error) {
	rec, err := s.load(ctx, contextKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []store.Message{}, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "load history", err)
	}
	if limit > 0 && len(rec.Messages) > limit {
		return rec.Messages[len(rec.Messages)-limit:], nil
	}
	return rec.Messages, nil
}

func (s *ConversationStore) Clear(ctx context.Context, contextKey string) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(
		`UPDATE conversations SET messages = '[]', updated_at = ? WHERE context_key = ?`),
		time.Now(), contextKey,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "clear conversation", err)
	}
	return nil
}

func (s *ConversationStore) SetPersonality(ctx context.Context, contextKey, personality string, locked bool) error {
	if _, err := s.GetOrCreate(ctx, contextKey); err != nil {
		return err
	}
	lockedInt := 0
	if locked {
		lockedInt = 1
	}
	_, err := s.db.ExecContext(ctx, s.db.rebind(
		`UPDATE conversations SET personality = ?, personality_locked = ?, updated_at = ? WHERE context_key = ?`),
		personality, lockedInt, time.Now(), contextKey,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "set personality", err)
	}
	return nil
}

func (s *ConversationStore) SetSetting(ctx context.Context, contextKey, key, value string) error {
	rec, err := s.GetOrCreate(ctx, contextKey)
	if err != nil {
		return err
	}
	rec.Settings[key] = value
	data, _ := json.Marshal(rec.Settings)
	_, err = s.db.ExecContext(ctx, s.db.rebind(
		`UPDATE conversations SET settings = ?, updated_at = ? WHERE context_key = ?`),
		string(data), time.Now(), contextKey,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "set setting", err)
	}
	return nil
}

func (s *ConversationStore) GetSettings(ctx context.Context, contextKey string) (map[string]string, error) {
	rec, err := s.load(ctx, contextKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]string{}, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "get settings", err)
	}
	return rec.Settings, nil
}

func (s *ConversationStore) SetModeration(ctx context.Context, contextKey string, until time.Time) error {
	if _, err := s.GetOrCreate(ctx, contextKey); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.db.rebind(
		`UPDATE conversations SET moderated_until = ?, updated_at = ? WHERE context_key = ?`),
		until, time.Now(), contextKey,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "set moderation", err)
	}
	return nil
}

func (s *ConversationStore) IncrementLaunch(ctx context.Context, contextKey string) (int, error) {
	if _, err := s.GetOrCreate(ctx, contextKey); err != nil {
		return 0, err
	}
	_, err := s.db.ExecContext(ctx, s.db.rebind(
		`UPDATE conversations SET launch_count = launch_count + 1, updated_at = ? WHERE context_key = ?`),
		time.Now(), contextKey,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "increment launch", err)
	}
	rec, err := s.load(ctx, contextKey)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "reload launch count", err)
	}
	return rec.LaunchCount, nil
}

func (s *ConversationStore) ListStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.db.rebind(
		`SELECT context_key FROM conversations WHERE last_activity_at < ?`), olderThan)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list stale conversations", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *ConversationStore) Delete(ctx context.Context, contextKey string) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`DELETE FROM conversations WHERE context_key = ?`), contextKey)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete conversation", err)
	}
	return nil
}
