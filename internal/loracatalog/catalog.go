// Package loracatalog maintains the gateway's view of the SD engine's LoRA
// models: categorization, trigger-word extraction, content-type scoring,
// and prompt-composition suggestions (spec §4.2).
package loracatalog

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/sdgateway"
	"github.com/sdforge/sdforge-gateway/internal/store"
)

// explicitTag and suggestiveTag mark the content-type tiers: deriveContentType
// matches them against each training tag to sum explicit/suggestive shares,
// and against the LoRA's name/path when it carries no tag frequency.
var (
	explicitTag   = regexp.MustCompile(`(?i)\b(nsfw|explicit|hentai|nude)\b`)
	suggestiveTag = regexp.MustCompile(`(?i)\b(suggestive|lingerie|swimsuit|bikini)\b`)
)

// categoryPattern matches tags belonging to a category, keyed by the
// category name. Scored by summed tag frequency, not by presence alone, so
// a single stray tag can't outweigh a training set dominated by another
// category's vocabulary.
var categoryPattern = map[string]*regexp.Regexp{
	"character": regexp.MustCompile(`(?i)\b(character|waifu|husbando|oc|original.?character)\b`),
	"anime":     regexp.MustCompile(`(?i)\b(anime|manga|cel.?shaded|2d)\b`),
	"realistic": regexp.MustCompile(`(?i)\b(realistic|photoreal\w*|photo|3d.?render)\b`),
	"style":     regexp.MustCompile(`(?i)\b(style|art.?style|aesthetic|artist)\b`),
	"concept":   regexp.MustCompile(`(?i)\b(concept|pose|background|scene|object|item|prop)\b`),
}

// categoryTieBreak is the fixed precedence spec §4.2 names for scoring ties:
// the category earliest in this list wins when normalized scores are equal.
var categoryTieBreak = []string{"character", "anime", "realistic", "style", "concept", "general"}

// Content-type thresholds: the share of a LoRA's total training-tag
// frequency that must carry an explicit/suggestive marker tag before the
// catalog buckets it out of "safe". Fixed per spec §4.2; documented here
// rather than made runtime-configurable since no caller has ever needed to
// tune them independently of the code that interprets them.
const (
	explicitShareThreshold   = 0.15
	suggestiveShareThreshold = 0.05
)

// triggerWordTopN bounds how many of a LoRA's training tags become its
// trigger_words list (spec §4.2's "top-N tags by frequency").
const triggerWordTopN = 12

// triggerStopWords are generic booru-style tags that identify almost every
// training image regardless of the LoRA's actual concept, so they never
// carry useful trigger-word signal.
var triggerStopWords = map[string]bool{
	"1girl": true, "1boy": true, "solo": true, "looking at viewer": true,
	"simple background": true, "standing": true,
}

// Catalog provides the LoRA discovery, categorization and combination-safety
// operations spec §4.2 names, backed by a store.LoRAStore.
type Catalog struct {
	gateway   *sdgateway.Client
	store     store.LoRAStore
	denyPairs map[string]bool
}

// New creates a Catalog.
func New(gateway *sdgateway.Client, s store.LoRAStore) *Catalog {
	return &Catalog{gateway: gateway, store: s}
}

// SetDenyPairs configures validate_combination rule (d): an explicit list of
// LoRA name pairs that must never be selected together (e.g. two LoRAs known
// to fight over the same latent space). Order within a pair doesn't matter.
func (c *Catalog) SetDenyPairs(pairs [][2]string) {
	c.denyPairs = make(map[string]bool, len(pairs))
	for _, p := range pairs {
		c.denyPairs[denyKey(p[0], p[1])] = true
	}
}

func (c *Catalog) isDenied(a, b string) bool {
	if len(c.denyPairs) == 0 {
		return false
	}
	return c.denyPairs[denyKey(a, b)]
}

func denyKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

// SyncFromGateway pulls the current LoRA listing from the engine and
// upserts a categorized entry for each one.
func (c *Catalog) SyncFromGateway(ctx context.Context) (int, error) {
	listings, err := c.gateway.ListLoRAs(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.Upstream, "sync lora catalog", err)
	}

	for _, l := range listings {
		entry := categorize(l)
		if err := c.store.Upsert(ctx, entry); err != nil {
			return 0, err
		}
	}
	return len(listings), nil
}

// categorize derives training_tag_frequency, trigger words, category, and
// content_type from a raw engine listing, matching spec §3/§4.2's
// ingestion pipeline. Re-running it on identical input yields an identical
// entry.
func categorize(l sdgateway.LoRAListing) store.LoRAEntry {
	entry := store.LoRAEntry{
		Name:              l.Name,
		FilePath:          l.Path,
		Alias:             l.Alias,
		RecommendedWeight: 1.0,
	}

	freq := map[string]int{}
	if raw, ok := l.Metadata["ss_tag_frequency"]; ok {
		freq = extractTagFrequency(raw)
	}
	total := 0
	for _, n := range freq {
		total += n
	}
	entry.TrainingTagFrequency = freq

	entry.TriggerWords = deriveTriggerWords(freq, triggerWordTopN)
	if len(entry.TriggerWords) == 0 {
		if entry.Alias != "" {
			entry.TriggerWords = append(entry.TriggerWords, entry.Alias)
		}
		entry.TriggerWords = append(entry.TriggerWords, entry.Name)
	}
	entry.Tags = sortedTagKeys(freq)

	fallback := strings.ToLower(l.Name + " " + l.Alias)
	entry.Category = deriveCategory(freq, total, fallback)
	entry.ContentType = deriveContentType(freq, total, fallback)
	return entry
}

// extractTagFrequency sums per-bucket tag counts from the engine's
// ss_tag_frequency training metadata, which nests as bucket -> tag -> count.
// A flat tag -> count map is accepted too, for engines/tests that don't
// bucket.
func extractTagFrequency(raw interface{}) map[string]int {
	out := map[string]int{}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return out
	}
	for k, v := range m {
		switch val := v.(type) {
		case map[string]interface{}:
			for tag, c := range val {
				if n, ok := toInt(c); ok {
					out[tag] += n
				}
			}
		default:
			if n, ok := toInt(v); ok {
				out[k] += n
			}
		}
	}
	return out
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func sortedTagKeys(freq map[string]int) []string {
	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deriveTriggerWords ranks tags by descending frequency (ties broken
// lexicographically) after dropping generic stop-list tags, and keeps the
// top N.
func deriveTriggerWords(freq map[string]int, topN int) []string {
	type tagCount struct {
		tag   string
		count int
	}
	list := make([]tagCount, 0, len(freq))
	for tag, count := range freq {
		if triggerStopWords[strings.ToLower(tag)] {
			continue
		}
		list = append(list, tagCount{tag, count})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].count != list[j].count {
			return list[i].count > list[j].count
		}
		return list[i].tag < list[j].tag
	})
	if topN > 0 && len(list) > topN {
		list = list[:topN]
	}
	out := make([]string, len(list))
	for i, tc := range list {
		out[i] = tc.tag
	}
	return out
}

// deriveCategory scores the tag-frequency dictionary against each category's
// keyword pattern, normalizes by total frequency, and picks the highest
// scorer, breaking ties by categoryTieBreak order. With no training
// metadata it falls back to matching the same patterns against the LoRA's
// name/alias, landing in the same output alphabet.
func deriveCategory(freq map[string]int, total int, fallback string) string {
	if total == 0 {
		return deriveCategoryFromText(fallback)
	}

	scores := make(map[string]float64, len(categoryPattern))
	for tag, count := range freq {
		for cat, pattern := range categoryPattern {
			if pattern.MatchString(tag) {
				scores[cat] += float64(count)
			}
		}
	}

	best := "general"
	bestScore := 0.0
	for _, cat := range categoryTieBreak {
		norm := scores[cat] / float64(total)
		if norm > bestScore {
			bestScore = norm
			best = cat
		}
	}
	return best
}

func deriveCategoryFromText(text string) string {
	for _, cat := range categoryTieBreak {
		if cat == "general" {
			continue
		}
		if pattern, ok := categoryPattern[cat]; ok && pattern.MatchString(text) {
			return cat
		}
	}
	return "general"
}

// deriveContentType buckets a LoRA by the share of its training frequency
// carried by explicit/suggestive marker tags, falling back to a name/alias
// keyword match when there's no tag frequency to weigh.
func deriveContentType(freq map[string]int, total int, fallback string) string {
	if total == 0 {
		switch {
		case explicitTag.MatchString(fallback):
			return "nsfw"
		case suggestiveTag.MatchString(fallback):
			return "suggestive"
		default:
			return "safe"
		}
	}

	var explicitShare, suggestiveShare float64
	for tag, count := range freq {
		share := float64(count) / float64(total)
		switch {
		case explicitTag.MatchString(tag):
			explicitShare += share
		case suggestiveTag.MatchString(tag):
			suggestiveShare += share
		}
	}
	switch {
	case explicitShare > explicitShareThreshold:
		return "nsfw"
	case suggestiveShare > suggestiveShareThreshold:
		return "suggestive"
	default:
		return "safe"
	}
}

// Summary reports the catalog's overall composition.
type Summary struct {
	Total         int
	ByCategory    map[string]int
	ByContentType map[string]int
}

// Summary returns counts across categories and content types.
func (c *Catalog) Summary(ctx context.Context) (*Summary, error) {
	all, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sum := &Summary{ByCategory: map[string]int{}, ByContentType: map[string]int{}}
	for _, e := range all {
		sum.Total++
		sum.ByCategory[e.Category]++
		sum.ByContentType[e.ContentType]++
	}
	return sum, nil
}

// Browse lists every entry in a category.
func (c *Catalog) Browse(ctx context.Context, category string) ([]store.LoRAEntry, error) {
	return c.store.ByCategory(ctx, category)
}

// Search free-text searches name/description/category/tags.
func (c *Catalog) Search(ctx context.Context, query string) ([]store.LoRAEntry, error) {
	return c.store.Search(ctx, query)
}

// Suggestion is one suggest_for_prompt result: a catalog entry scored
// against a prompt, with the tags that drove the score and the weight to
// apply if the caller accepts the suggestion (spec §4.2).
type Suggestion struct {
	Entry             store.LoRAEntry
	Score             float64
	Confidence        string // "high", "medium", "low"
	MatchingTags      []string
	RecommendedWeight float64
}

// wordSplit breaks a tag or prompt into lowercase word tokens; leadingDigit
// strips booru-style count prefixes ("1girl" -> "girl") so a singular tag
// still overlaps a prompt word that omits the count.
var (
	wordSplit   = regexp.MustCompile(`[^a-z0-9]+`)
	leadingDigit = regexp.MustCompile(`^[0-9]+`)
)

func tokenizeWords(s string) map[string]bool {
	out := map[string]bool{}
	for _, part := range wordSplit.Split(strings.ToLower(s), -1) {
		if part == "" {
			continue
		}
		part = leadingDigit.ReplaceAllString(part, "")
		if part == "" {
			continue
		}
		out[part] = true
	}
	return out
}

func tokensOverlap(a, b map[string]bool) bool {
	for w := range a {
		if b[w] {
			return true
		}
	}
	return false
}

func confidenceFor(score float64) string {
	switch {
	case score >= 0.5:
		return "high"
	case score >= 0.2:
		return "medium"
	default:
		return "low"
	}
}

// SuggestForPrompt scores every catalog entry against prompt using spec
// §4.2's formula: tokenize the prompt into a lowercase word set, and for
// every (tag, freq) pair in a LoRA whose tag tokens overlap the prompt,
// accumulate freq/total_freq. Entries with no training-tag frequency can't
// be scored and are skipped. Results are ordered by descending score, ties
// broken by name for determinism, and capped at limit (0 = unlimited).
func (c *Catalog) SuggestForPrompt(ctx context.Context, prompt string, limit int) ([]Suggestion, error) {
	all, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	promptTokens := tokenizeWords(prompt)

	var candidates []Suggestion
	for _, e := range all {
		total := 0
		for _, freq := range e.TrainingTagFrequency {
			total += freq
		}
		if total == 0 {
			continue
		}

		var score float64
		var matching []string
		for tag, freq := range e.TrainingTagFrequency {
			if tokensOverlap(tokenizeWords(tag), promptTokens) {
				score += float64(freq) / float64(total)
				matching = append(matching, tag)
			}
		}
		if len(matching) == 0 {
			continue
		}
		if score > 1.0 {
			score = 1.0
		}
		sort.Strings(matching)

		weight := e.RecommendedWeight
		if weight == 0 {
			weight = 1.0
		}
		candidates = append(candidates, Suggestion{
			Entry:             e,
			Score:             score,
			Confidence:        confidenceFor(score),
			MatchingTags:      matching,
			RecommendedWeight: weight,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Entry.Name < candidates[j].Entry.Name
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// Conflict is one validate_combination finding: the rule it violates, a
// human-readable explanation, and a suggested fix.
type Conflict struct {
	Rule        string
	Message     string
	Remediation string
}

// Combination-safety constants from spec §4.2's validate_combination rules.
const (
	maxStyleWeight    = 0.7
	maxCombinedWeight = 2.4
)

// ValidateCombination checks selections against spec §4.2's four conflict
// rules: (a) at most one character LoRA; (b) at most one style LoRA above
// maxStyleWeight; (c) combined weight across non-concept LoRAs within
// maxCombinedWeight; (d) the configured pairwise-deny list. It always
// returns every conflict found; err is non-nil iff conflicts is non-empty.
func (c *Catalog) ValidateCombination(ctx context.Context, selections []sdgateway.LoRASelection) ([]Conflict, error) {
	entries := make(map[string]store.LoRAEntry, len(selections))
	for _, sel := range selections {
		entry, err := c.store.Get(ctx, sel.Name)
		if err != nil {
			return nil, err
		}
		entries[sel.Name] = *entry
	}

	var conflicts []Conflict

	var characters []string
	for _, sel := range selections {
		if entries[sel.Name].Category == "character" {
			characters = append(characters, sel.Name)
		}
	}
	if len(characters) > 1 {
		conflicts = append(conflicts, Conflict{
			Rule:        "at-most-one-character",
			Message:     fmt.Sprintf("multiple character LoRAs selected: %s", strings.Join(characters, ", ")),
			Remediation: fmt.Sprintf("keep only one of %s for this prompt", strings.Join(characters, ", ")),
		})
	}

	var heavyStyles []string
	for _, sel := range selections {
		if entries[sel.Name].Category == "style" && sel.Weight > maxStyleWeight {
			heavyStyles = append(heavyStyles, sel.Name)
		}
	}
	if len(heavyStyles) > 1 {
		conflicts = append(conflicts, Conflict{
			Rule:        "at-most-one-heavy-style",
			Message:     fmt.Sprintf("multiple style LoRAs above weight %.1f: %s", maxStyleWeight, strings.Join(heavyStyles, ", ")),
			Remediation: fmt.Sprintf("reduce all but one of %s below %.1f", strings.Join(heavyStyles, ", "), maxStyleWeight),
		})
	}

	var total float64
	for _, sel := range selections {
		if entries[sel.Name].Category != "concept" {
			total += sel.Weight
		}
	}
	if total > maxCombinedWeight {
		conflicts = append(conflicts, Conflict{
			Rule:        "max-combined-weight",
			Message:     fmt.Sprintf("combined non-concept weight %.2f exceeds %.2f", total, maxCombinedWeight),
			Remediation: "reduce one or more weights, or drop a LoRA from the selection",
		})
	}

	for i := 0; i < len(selections); i++ {
		for j := i + 1; j < len(selections); j++ {
			if c.isDenied(selections[i].Name, selections[j].Name) {
				conflicts = append(conflicts, Conflict{
					Rule:        "pairwise-deny",
					Message:     fmt.Sprintf("%q and %q are configured as incompatible", selections[i].Name, selections[j].Name),
					Remediation: fmt.Sprintf("remove either %q or %q", selections[i].Name, selections[j].Name),
				})
			}
		}
	}

	if len(conflicts) == 0 {
		return nil, nil
	}
	msgs := make([]string, len(conflicts))
	for i, cf := range conflicts {
		msgs[i] = cf.Message
	}
	return conflicts, apperr.Newf(apperr.Conflict, "%s", strings.Join(msgs, "; "))
}

// Weight bounds every optimized selection is clamped to, regardless of
// style_preference factor.
const (
	minLoRAWeight = 0.1
	maxLoRAWeight = 1.5
)

// stylePreferenceFactor maps optimize_weights' style_preference to the
// multiplicative factor spec §4.2 assigns it.
var stylePreferenceFactor = map[string]float64{
	"subtle":   0.6,
	"balanced": 1.0,
	"strong":   1.3,
}

// OptimizeWeights scales every selection's weight by stylePreference's
// factor (subtle=0.6, balanced=1.0, strong=1.3; unknown/empty defaults to
// balanced) and clamps the result to [minLoRAWeight, maxLoRAWeight].
func OptimizeWeights(selections []sdgateway.LoRASelection, stylePreference string) []sdgateway.LoRASelection {
	factor, ok := stylePreferenceFactor[stylePreference]
	if !ok {
		factor = 1.0
	}

	out := make([]sdgateway.LoRASelection, len(selections))
	copy(out, selections)
	for i := range out {
		w := out[i].Weight * factor
		if w < minLoRAWeight {
			w = minLoRAWeight
		}
		if w > maxLoRAWeight {
			w = maxLoRAWeight
		}
		out[i].Weight = w
	}
	return out
}
