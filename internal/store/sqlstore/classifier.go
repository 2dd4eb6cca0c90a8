package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// ClassifierStore implements store.ClassifierStore over database/sql.
type ClassifierStore struct{ db *DB }

func NewClassifierStore(db *DB) *ClassifierStore { return &ClassifierStore{db: db} }

func (s *ClassifierStore) AddCategory(ctx context.Context, name string, parentID int64, safetyTier string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.rebind(
		`INSERT INTO classifier_categories (name, parent_id, safety_tier, words, confidences) VALUES (?, ?, ?, '[]', '[]')`),
		name, parentID, safetyTier,
	)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "add category", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		// postgres via pgx stdlib doesn't populate LastInsertId; fall back to a lookup.
		row := s.db.QueryRowContext(ctx, s.db.rebind(
			`SELECT id FROM classifier_categories WHERE name = ? AND parent_id = ? ORDER BY id DESC LIMIT 1`),
			name, parentID)
		if scanErr := row.Scan(&id); scanErr != nil {
			return 0, apperr.Wrap(apperr.Internal, "resolve new category id", scanErr)
		}
	}
	return id, nil
}

func (s *ClassifierStore) AddWords(ctx context.Context, categoryID int64, words []string, confidences []float64) error {
	node, err := s.Category(ctx, categoryID)
	if err != nil {
		return err
	}
	mergedWords, mergedConfidences := mergeWordConfidences(node.Words, node.Confidences, words, confidences)
	wordsJSON, _ := json.Marshal(mergedWords)
	confJSON, _ := json.Marshal(mergedConfidences)
	_, err = s.db.ExecContext(ctx, s.db.rebind(
		`UPDATE classifier_categories SET words = ?, confidences = ? WHERE id = ?`),
		string(wordsJSON), string(confJSON), categoryID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "add words", err)
	}
	return nil
}

// mergeWordConfidences appends add/addConf to existing/existingConf, skipping
// words already present and keeping the two slices index-aligned.
func mergeWordConfidences(existing []string, existingConf []float64, add []string, addConf []float64) ([]string, []float64) {
	seen := make(map[string]bool, len(existing))
	words := make([]string, 0, len(existing)+len(add))
	confs := make([]float64, 0, len(existing)+len(add))
	for i, w := range existing {
		if seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
		if i < len(existingConf) {
			confs = append(confs, existingConf[i])
		} else {
			confs = append(confs, 0)
		}
	}
	for i, w := range add {
		if seen[w] {
			continue
		}
		seen[w] = true
		words = append(words, w)
		if i < len(addConf) {
			confs = append(confs, addConf[i])
		} else {
			confs = append(confs, 0)
		}
	}
	return words, confs
}

func (s *ClassifierStore) scanNode(row interface{ Scan(...any) error }) (*store.CategoryNode, error) {
	var n store.CategoryNode
	var words, confidences string
	if err := row.Scan(&n.ID, &n.Name, &n.ParentID, &n.SafetyTier, &words, &confidences); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(words), &n.Words)
	_ = json.Unmarshal([]byte(confidences), &n.Confidences)
	return &n, nil
}

const categoryColumns = `id, name, parent_id, safety_tier, words, confidences`

func (s *ClassifierStore) Category(ctx context.Context, id int64) (*store.CategoryNode, error) {
	row := s.db.QueryRowContext(ctx, s.db.rebind(
		`SELECT `+categoryColumns+` FROM classifier_categories WHERE id = ?`), id)
	n, err := s.scanNode(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.Newf(apperr.NotFound, "category %d not found", id)
		}
		return nil, apperr.Wrap(apperr.Internal, "get category", err)
	}
	return n, nil
}

func (s *ClassifierStore) queryNodes(ctx context.Context, query string, args ...any) ([]store.CategoryNode, error) {
	rows, err := s.db.QueryContext(ctx, s.db.rebind(query), args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "query categories", err)
	}
	defer rows.Close()

	var out []store.CategoryNode
	for rows.Next() {
		n, err := s.scanNode(rows)
		if err != nil {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (s *ClassifierStore) Children(ctx context.Context, parentID int64) ([]store.CategoryNode, error) {
	return s.queryNodes(ctx, `SELECT `+categoryColumns+` FROM classifier_categories
		WHERE parent_id = ? ORDER BY name`, parentID)
}

func (s *ClassifierStore) AllCategories(ctx context.Context) ([]store.CategoryNode, error) {
	return s.queryNodes(ctx, `SELECT `+categoryColumns+` FROM classifier_categories ORDER BY id`)
}

func (s *ClassifierStore) SearchWords(ctx context.Context, query string) ([]store.CategoryNode, error) {
	like := "%" + query + "%"
	return s.queryNodes(ctx, `SELECT `+categoryColumns+` FROM classifier_categories
		WHERE name LIKE ? OR words LIKE ? ORDER BY name`, like, like)
}
