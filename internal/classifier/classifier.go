// Package classifier implements the hierarchical content-category taxonomy
// spec §4.3 describes: categories arranged in a tree, each carrying a word
// list and a safety tier, with an Analyze operation that scores free text
// against the tree and an Enhance operation that expands a thin prompt with
// matched category words or strips unsafe ones.
//
// Grounded on the teacher pack's agentoven guardrail evaluator: keyword/
// phrase matching against a configured word list, producing a structured
// per-match result — generalized here from a flat allow/deny guardrail list
// to a parent/child category forest with per-word confidence.
package classifier

import (
	"context"
	"strings"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// Match records one taxonomy word found in analyzed text, the category it
// belongs to, and the confidence the taxonomy carries for that word.
type Match struct {
	Category   store.CategoryNode
	Word       string
	Confidence float64
}

// Safety summarizes the aggregate risk of a piece of text: Level is the
// coarse tier for display, Score is the confidence-weighted numeric signal
// callers can threshold or log (spec §4.3, §8).
type Safety struct {
	Level string // "safe", "moderate", "explicit"
	Score float64
}

// AnalyzeResult is the outcome of scoring text against the taxonomy.
type AnalyzeResult struct {
	Matches           []Match
	CategoriesPresent []string // root axis names with at least one match
	MissingAxes       []string // axes from knownAxes with no match at all
	Safety            Safety
}

var tierRank = map[string]int{"safe": 0, "moderate": 1, "explicit": 2}

// explicitWeight/moderateWeight set how much a matched word contributes to
// the aggregate safety score depending on the tier of the category it
// matched, so an explicit hit dominates the score while a moderate one
// nudges it.
const (
	explicitWeight = 1.0
	moderateWeight = 0.5
)

// knownAxes are the prompt-composition dimensions enhance considers when
// deciding what's missing from a prompt. A taxonomy category counts as
// covering an axis when its root ancestor's name matches one, case
// insensitively (spec §4.3's "missing_axes").
var knownAxes = []string{"subject", "style", "quality", "lighting", "composition"}

// axisFiller is the canonical text enhance appends for each axis absent
// from a prompt when apply_suggestions is set.
var axisFiller = map[string]string{
	"subject":     "a clear subject",
	"style":       "a defined art style",
	"quality":     "high quality, detailed",
	"lighting":    "cinematic lighting",
	"composition": "balanced composition",
}

// Classifier evaluates text against a persisted category taxonomy.
type Classifier struct {
	store store.ClassifierStore
}

// New creates a Classifier.
func New(s store.ClassifierStore) *Classifier { return &Classifier{store: s} }

// AddCategory creates a new taxonomy node under parentID (0 for a root).
func (c *Classifier) AddCategory(ctx context.Context, name string, parentID int64, safetyTier string) (int64, error) {
	if safetyTier == "" {
		safetyTier = "safe"
	}
	if _, ok := tierRank[safetyTier]; !ok {
		return 0, apperr.Newf(apperr.Validation, "unknown safety tier %q", safetyTier)
	}
	return c.store.AddCategory(ctx, name, parentID, safetyTier)
}

// AddWords appends words to an existing category's word list, each with its
// own match confidence ∈[0,1]. len(words) must equal len(confidences).
func (c *Classifier) AddWords(ctx context.Context, categoryID int64, words []string, confidences []float64) error {
	if len(words) != len(confidences) {
		return apperr.Newf(apperr.Validation, "words and confidences length mismatch: %d vs %d", len(words), len(confidences))
	}
	return c.store.AddWords(ctx, categoryID, words, confidences)
}

// SearchWords finds categories containing any word matching query.
func (c *Classifier) SearchWords(ctx context.Context, query string) ([]store.CategoryNode, error) {
	return c.store.SearchWords(ctx, query)
}

// rootName walks byID's parent chain from node up to its root and returns
// the root's lowercased name, used to map a matched category back to one of
// knownAxes.
func rootName(node store.CategoryNode, byID map[int64]store.CategoryNode) string {
	cur := node
	for cur.ParentID != 0 {
		parent, ok := byID[cur.ParentID]
		if !ok {
			break
		}
		cur = parent
	}
	return strings.ToLower(cur.Name)
}

// Analyze scores text against every category in the taxonomy, reporting
// every matched word with its confidence, which prompt-composition axes
// were and weren't touched, and an aggregate safety score.
func (c *Classifier) Analyze(ctx context.Context, text string) (*AnalyzeResult, error) {
	categories, err := c.store.AllCategories(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.CategoryNode, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}
	lower := strings.ToLower(text)

	result := &AnalyzeResult{Safety: Safety{Level: "safe"}}
	present := map[string]bool{}
	var score float64

	for _, cat := range categories {
		for i, w := range cat.Words {
			if w == "" {
				continue
			}
			if !strings.Contains(lower, strings.ToLower(w)) {
				continue
			}
			conf := 0.0
			if i < len(cat.Confidences) {
				conf = cat.Confidences[i]
			}
			result.Matches = append(result.Matches, Match{Category: cat, Word: w, Confidence: conf})
			present[rootName(cat, byID)] = true

			if tierRank[cat.SafetyTier] > tierRank[result.Safety.Level] {
				result.Safety.Level = cat.SafetyTier
			}
			switch cat.SafetyTier {
			case "explicit":
				score += conf * explicitWeight
			case "moderate":
				score += conf * moderateWeight
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	result.Safety.Score = score

	for axis := range present {
		result.CategoriesPresent = append(result.CategoriesPresent, axis)
	}
	for _, axis := range knownAxes {
		if !present[axis] {
			result.MissingAxes = append(result.MissingAxes, axis)
		}
	}
	return result, nil
}

// Enhance expands or cleans prompt per spec §4.3: when applySuggestions is
// set, it appends canonical filler text for every axis Analyze found
// missing; when safetyFilter is set and the prompt's safety level is
// "explicit", every matched explicit-tier word is stripped from the prompt
// before any enhancement is applied.
func (c *Classifier) Enhance(ctx context.Context, prompt string, applySuggestions, safetyFilter bool) (string, error) {
	analysis, err := c.Analyze(ctx, prompt)
	if err != nil {
		return prompt, err
	}

	out := prompt
	if safetyFilter && analysis.Safety.Level == "explicit" {
		for _, m := range analysis.Matches {
			if m.Category.SafetyTier != "explicit" {
				continue
			}
			out = stripWord(out, m.Word)
		}
		// Re-analyze the cleaned prompt so applySuggestions below reasons
		// about missing axes in the text the caller will actually send.
		analysis, err = c.Analyze(ctx, out)
		if err != nil {
			return out, err
		}
	}

	if applySuggestions && len(analysis.MissingAxes) > 0 {
		var extras []string
		for _, axis := range analysis.MissingAxes {
			if filler, ok := axisFiller[axis]; ok {
				extras = append(extras, filler)
			}
		}
		if len(extras) > 0 {
			out = strings.TrimRight(out, ", ") + ", " + strings.Join(extras, ", ")
		}
	}
	return out, nil
}

// stripWord removes every case-insensitive occurrence of word from text,
// along with one adjacent comma/space so the remaining list stays tidy.
func stripWord(text, word string) string {
	lower := strings.ToLower(text)
	target := strings.ToLower(word)
	var b strings.Builder
	for {
		idx := strings.Index(lower, target)
		if idx < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:idx])
		rest := text[idx+len(word):]
		restLower := lower[idx+len(target):]
		rest = strings.TrimPrefix(rest, ",")
		rest = strings.TrimPrefix(rest, " ")
		restLower = strings.TrimPrefix(restLower, ",")
		restLower = strings.TrimPrefix(restLower, " ")
		text, lower = rest, restLower
	}
	return strings.Trim(strings.Join(strings.Fields(b.String()), " "), " ,")
}

// Children lists the direct children of a category (0 for roots).
func (c *Classifier) Children(ctx context.Context, parentID int64) ([]store.CategoryNode, error) {
	return c.store.Children(ctx, parentID)
}
