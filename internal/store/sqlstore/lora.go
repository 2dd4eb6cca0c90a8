package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// LoRAStore implements store.LoRAStore over database/sql.
type LoRAStore struct{ db *DB }

func NewLoRAStore(db *DB) *LoRAStore { return &LoRAStore{db: db} }

func (s *LoRAStore) Upsert(ctx context.Context, e store.LoRAEntry) error {
	triggers, _ := json.Marshal(e.TriggerWords)
	tags, _ := json.Marshal(e.Tags)
	freq, _ := json.Marshal(e.TrainingTagFrequency)
	synced := e.LastSynced
	if synced.IsZero() {
		synced = time.Now()
	}
	created := e.Created
	if created.IsZero() {
		created = synced
	}

	_, err := s.db.ExecContext(ctx, s.db.rebind(`
		INSERT INTO lora_entries (
			name, file_path, alias, description, category, content_type,
			trigger_words, tags, training_tag_frequency, recommended_weight,
			created_at, last_synced
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			file_path = excluded.file_path,
			alias = excluded.alias,
			description = excluded.description,
			category = excluded.category,
			content_type = excluded.content_type,
			trigger_words = excluded.trigger_words,
			tags = excluded.tags,
			training_tag_frequency = excluded.training_tag_frequency,
			recommended_weight = excluded.recommended_weight,
			last_synced = excluded.last_synced`),
		e.Name, e.FilePath, e.Alias, e.Description, e.Category, e.ContentType,
		string(triggers), string(tags), string(freq), e.RecommendedWeight,
		created, synced,
	)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "upsert lora entry", err)
	}
	return nil
}

const loraColumns = `name, file_path, alias, description, category, content_type,
	trigger_words, tags, training_tag_frequency, recommended_weight, created_at, last_synced`

func (s *LoRAStore) scanRow(row interface{ Scan(...any) error }) (*store.LoRAEntry, error) {
	var e store.LoRAEntry
	var triggers, tags, freq string
	var created, lastSynced sql.NullTime
	if err := row.Scan(
		&e.Name, &e.FilePath, &e.Alias, &e.Description, &e.Category, &e.ContentType,
		&triggers, &tags, &freq, &e.RecommendedWeight, &created, &lastSynced,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(triggers), &e.TriggerWords)
	_ = json.Unmarshal([]byte(tags), &e.Tags)
	_ = json.Unmarshal([]byte(freq), &e.TrainingTagFrequency)
	if created.Valid {
		e.Created = created.Time
	}
	if lastSynced.Valid {
		e.LastSynced = lastSynced.Time
	}
	return &e, nil
}

func (s *LoRAStore) Get(ctx context.Context, name string) (*store.LoRAEntry, error) {
	row := s.db.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+loraColumns+` FROM lora_entries WHERE name = ?`), name)
	e, err := s.scanRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.Newf(apperr.NotFound, "lora %q not found", name)
		}
		return nil, apperr.Wrap(apperr.Internal, "get lora entry", err)
	}
	return e, nil
}

func (s *LoRAStore) queryAll(ctx context.Context, query string, args ...any) ([]store.LoRAEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query lora entries", err)
	}
	defer rows.Close()

	var out []store.LoRAEntry
	for rows.Next() {
		e, err := s.scanRow(rows)
		if err != nil {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (s *LoRAStore) List(ctx context.Context) ([]store.LoRAEntry, error) {
	return s.queryAll(ctx, `SELECT `+loraColumns+` FROM lora_entries ORDER BY name`)
}

func (s *LoRAStore) Search(ctx context.Context, query string) ([]store.LoRAEntry, error) {
	like := "%" + query + "%"
	return s.queryAll(ctx, `SELECT `+loraColumns+` FROM lora_entries
		WHERE name LIKE ? OR description LIKE ? OR category LIKE ? OR tags LIKE ? ORDER BY name`,
		like, like, like, like)
}

func (s *LoRAStore) ByCategory(ctx context.Context, category string) ([]store.LoRAEntry, error) {
	return s.queryAll(ctx, `SELECT `+loraColumns+` FROM lora_entries WHERE category = ? ORDER BY name`, category)
}

func (s *LoRAStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, s.db.rebind(`DELETE FROM lora_entries WHERE name = ?`), name)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "delete lora entry", err)
	}
	return nil
}
