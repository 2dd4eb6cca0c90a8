package sqlstore

import (
	"context"
	"testing"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

func TestLoRAStore_UpsertThenGet(t *testing.T) {
	s := NewLoRAStore(newTestDB(t))
	ctx := context.Background()

	entry := store.LoRAEntry{
		Name:                 "anime-style",
		FilePath:             "/loras/anime-style.safetensors",
		Alias:                "anime",
		Description:          "anime cel-shaded style",
		TriggerWords:         []string{"anime", "cel shaded"},
		Category:             "style",
		ContentType:          "safe",
		Tags:                 []string{"2d"},
		TrainingTagFrequency: map[string]int{"anime": 500},
		RecommendedWeight:    0.8,
	}
	if err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, "anime-style")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.FilePath != entry.FilePath || len(got.TriggerWords) != 2 || got.RecommendedWeight != 0.8 {
		t.Fatalf("got %+v, want match for %+v", got, entry)
	}
	if got.TrainingTagFrequency["anime"] != 500 {
		t.Fatalf("expected training tag frequency to round-trip, got %+v", got.TrainingTagFrequency)
	}
}

func TestLoRAStore_UpsertOverwritesExistingEntry(t *testing.T) {
	s := NewLoRAStore(newTestDB(t))
	ctx := context.Background()

	_ = s.Upsert(ctx, store.LoRAEntry{Name: "x", Category: "a", RecommendedWeight: 1.0})
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "x", Category: "b", RecommendedWeight: 0.5})

	got, err := s.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Category != "b" || got.RecommendedWeight != 0.5 {
		t.Fatalf("got %+v, want the second upsert to win", got)
	}
}

func TestLoRAStore_GetUnknownReturnsNotFound(t *testing.T) {
	s := NewLoRAStore(newTestDB(t))
	_, err := s.Get(context.Background(), "nope")
	if apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestLoRAStore_ListReturnsAllEntriesSortedByName(t *testing.T) {
	s := NewLoRAStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "zeta"})
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "alpha"})

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Name != "alpha" || all[1].Name != "zeta" {
		t.Fatalf("got %+v, want alpha before zeta", all)
	}
}

func TestLoRAStore_SearchMatchesNameOrCategory(t *testing.T) {
	s := NewLoRAStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "cat-ears", Category: "accessory"})
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "dog-ears", Category: "accessory"})
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "unrelated", Category: "pose"})

	got, err := s.Search(ctx, "ears")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
}

func TestLoRAStore_ByCategoryFiltersExactly(t *testing.T) {
	s := NewLoRAStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "a", Category: "style"})
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "b", Category: "pose"})

	got, err := s.ByCategory(ctx, "style")
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("got %+v, want only entry a", got)
	}
}

func TestLoRAStore_DeleteRemovesEntry(t *testing.T) {
	s := NewLoRAStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Upsert(ctx, store.LoRAEntry{Name: "to-delete"})

	if err := s.Delete(ctx, "to-delete"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "to-delete"); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}
