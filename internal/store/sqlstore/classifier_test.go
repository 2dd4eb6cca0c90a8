package sqlstore

import (
	"context"
	"testing"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
)

func TestClassifierStore_AddCategoryThenGet(t *testing.T) {
	s := NewClassifierStore(newTestDB(t))
	ctx := context.Background()

	id, err := s.AddCategory(ctx, "suggestive-poses", 0, "suggestive")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected a non-zero category id")
	}

	node, err := s.Category(ctx, id)
	if err != nil {
		t.Fatalf("Category: %v", err)
	}
	if node.Name != "suggestive-poses" || node.SafetyTier != "suggestive" {
		t.Fatalf("got %+v, want name=suggestive-poses tier=suggestive", node)
	}
}

func TestClassifierStore_CategoryUnknownReturnsNotFound(t *testing.T) {
	s := NewClassifierStore(newTestDB(t))
	if _, err := s.Category(context.Background(), 999); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
}

func TestClassifierStore_AddWordsMergesWithoutDuplicates(t *testing.T) {
	s := NewClassifierStore(newTestDB(t))
	ctx := context.Background()

	id, err := s.AddCategory(ctx, "cat", 0, "safe")
	if err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	if err := s.AddWords(ctx, id, []string{"foo", "bar"}, []float64{0.5, 0.6}); err != nil {
		t.Fatalf("AddWords: %v", err)
	}
	if err := s.AddWords(ctx, id, []string{"bar", "baz"}, []float64{0.9, 0.7}); err != nil {
		t.Fatalf("AddWords second call: %v", err)
	}

	node, err := s.Category(ctx, id)
	if err != nil {
		t.Fatalf("Category: %v", err)
	}
	if len(node.Words) != 3 {
		t.Fatalf("got %v, want 3 unique words", node.Words)
	}
	if len(node.Confidences) != len(node.Words) {
		t.Fatalf("expected confidences aligned with words, got %v vs %v", node.Confidences, node.Words)
	}
}

func TestClassifierStore_ChildrenFiltersByParent(t *testing.T) {
	s := NewClassifierStore(newTestDB(t))
	ctx := context.Background()

	root, err := s.AddCategory(ctx, "root", 0, "safe")
	if err != nil {
		t.Fatalf("AddCategory root: %v", err)
	}
	if _, err := s.AddCategory(ctx, "child-a", root, "safe"); err != nil {
		t.Fatalf("AddCategory child: %v", err)
	}
	if _, err := s.AddCategory(ctx, "other-root", 0, "safe"); err != nil {
		t.Fatalf("AddCategory other root: %v", err)
	}

	children, err := s.Children(ctx, root)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 1 || children[0].Name != "child-a" {
		t.Fatalf("got %+v, want only child-a", children)
	}
}

func TestClassifierStore_AllCategoriesReturnsEverything(t *testing.T) {
	s := NewClassifierStore(newTestDB(t))
	ctx := context.Background()
	_, _ = s.AddCategory(ctx, "one", 0, "safe")
	_, _ = s.AddCategory(ctx, "two", 0, "safe")

	all, err := s.AllCategories(ctx)
	if err != nil {
		t.Fatalf("AllCategories: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d categories, want 2", len(all))
	}
}

func TestClassifierStore_SearchWordsMatchesNameOrWords(t *testing.T) {
	s := NewClassifierStore(newTestDB(t))
	ctx := context.Background()
	id, _ := s.AddCategory(ctx, "explicit-acts", 0, "explicit")
	_ = s.AddWords(ctx, id, []string{"particular-term"}, []float64{0.8})

	byName, err := s.SearchWords(ctx, "explicit")
	if err != nil {
		t.Fatalf("SearchWords by name: %v", err)
	}
	if len(byName) != 1 {
		t.Fatalf("got %d, want 1 match by name", len(byName))
	}

	byWord, err := s.SearchWords(ctx, "particular-term")
	if err != nil {
		t.Fatalf("SearchWords by word: %v", err)
	}
	if len(byWord) != 1 {
		t.Fatalf("got %d, want 1 match by word", len(byWord))
	}
}
