// Package toolsurface implements ToolSurface (spec §4.9, §6): the outward
// tool catalog consumed by the LLM host, each tool returning a structured
// result serialized as text.
//
// Grounded on the teacher pack's internal/tools/result.go (a unified
// ForLLM/ForUser/IsError result type returned by every tool) generalized
// here to a Success/Payload/Error JSON envelope matching spec §6's
// `{success: bool, error?: string, ...payload}` contract, and on
// create_image.go's tool-catalog shape (Name/Description/Parameters/Execute).
package toolsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
	"github.com/sdforge/sdforge-gateway/internal/classifier"
	"github.com/sdforge/sdforge-gateway/internal/convstore"
	"github.com/sdforge/sdforge-gateway/internal/loracatalog"
	"github.com/sdforge/sdforge-gateway/internal/queue"
	"github.com/sdforge/sdforge-gateway/internal/sdgateway"
	"github.com/sdforge/sdforge-gateway/internal/upload"
)

// Result is the structured outcome of a tool call, serialized as text for
// the LLM host per spec §6.
type Result struct {
	Success bool        `json:"success"`
	Error   string       `json:"error,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

func ok(payload interface{}) *Result    { return &Result{Success: true, Payload: payload} }
func fail(err error) *Result            { return &Result{Success: false, Error: err.Error()} }
func failMsg(msg string) *Result        { return &Result{Success: false, Error: msg} }

// Text renders the result as the JSON text tools return to the LLM host.
func (r *Result) Text() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"failed to serialize tool result"}`
	}
	return string(b)
}

// Surface wires every gateway component into the tool catalog.
type Surface struct {
	sd            *sdgateway.Client
	loras         *loracatalog.Catalog
	classifier    *classifier.Classifier
	jobs          *queue.Engine
	conversations *convstore.Store
	uploads       *upload.Router
	censorCfg     sdgateway.CensorConfig
	censorEnabled bool
	validate      *validator.Validate
}

// New creates a Surface.
func New(sd *sdgateway.Client, loras *loracatalog.Catalog, cls *classifier.Classifier, jobs *queue.Engine, conversations *convstore.Store, uploads *upload.Router, censorCfg sdgateway.CensorConfig, censorEnabled bool) *Surface {
	return &Surface{
		sd: sd, loras: loras, classifier: cls, jobs: jobs,
		conversations: conversations, uploads: uploads,
		censorCfg: censorCfg, censorEnabled: censorEnabled,
		validate: validator.New(),
	}
}

// GetSDModelsSummary lists available checkpoints.
func (s *Surface) GetSDModelsSummary(ctx context.Context) *Result {
	models, err := s.sd.ListModels(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(models)
}

// SearchSDModels filters checkpoints by a substring of title or model name.
func (s *Surface) SearchSDModels(ctx context.Context, query string, limit int) *Result {
	models, err := s.sd.ListModels(ctx)
	if err != nil {
		return fail(err)
	}
	var matched []sdgateway.SDModel
	for _, m := range models {
		if containsFold(m.Title, query) || containsFold(m.ModelName, query) {
			matched = append(matched, m)
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return ok(matched)
}

// GetSamplersList lists available samplers.
func (s *Surface) GetSamplersList(ctx context.Context) *Result {
	samplers, err := s.sd.ListSamplers(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(samplers)
}

// GetLoRASummary reports catalog composition.
func (s *Surface) GetLoRASummary(ctx context.Context) *Result {
	summary, err := s.loras.Summary(ctx)
	if err != nil {
		return fail(err)
	}
	return ok(summary)
}

// BrowseLoRAsByCategory lists LoRAs in one category.
func (s *Surface) BrowseLoRAsByCategory(ctx context.Context, category string, limit int) *Result {
	entries, err := s.loras.Browse(ctx, category)
	if err != nil {
		return fail(err)
	}
	return ok(limitEntries(entries, limit))
}

// SearchLoRAsSmart free-text searches the catalog.
func (s *Surface) SearchLoRAsSmart(ctx context.Context, query string, maxResults int) *Result {
	entries, err := s.loras.Search(ctx, query)
	if err != nil {
		return fail(err)
	}
	return ok(limitEntries(entries, maxResults))
}

// SuggestLoRAsForPrompt ranks LoRAs by relevance to prompt.
func (s *Surface) SuggestLoRAsForPrompt(ctx context.Context, prompt string, limit int) *Result {
	suggestions, err := s.loras.SuggestForPrompt(ctx, prompt, limit)
	if err != nil {
		return fail(err)
	}
	return ok(suggestions)
}

// parseSelectionToken parses a "name@weight" token (spec §6's
// validate_lora_combination and optimize_weights argument format) into a
// LoRASelection. A token with no "@weight" suffix defaults to weight 1.0.
func parseSelectionToken(token string) (sdgateway.LoRASelection, error) {
	name, weightStr, hasWeight := strings.Cut(token, "@")
	if name == "" {
		return sdgateway.LoRASelection{}, apperr.Newf(apperr.Validation, "empty lora name in selection %q", token)
	}
	weight := 1.0
	if hasWeight {
		parsed, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			return sdgateway.LoRASelection{}, apperr.Wrap(apperr.Validation, fmt.Sprintf("parse weight in selection %q", token), err)
		}
		weight = parsed
	}
	return sdgateway.LoRASelection{Name: name, Weight: weight}, nil
}

// ValidateLoRACombination checks a set of "name@weight" LoRA selections for
// conflicts (spec §4.2).
func (s *Surface) ValidateLoRACombination(ctx context.Context, selected []string) *Result {
	selections := make([]sdgateway.LoRASelection, 0, len(selected))
	for _, token := range selected {
		sel, err := parseSelectionToken(token)
		if err != nil {
			return fail(err)
		}
		selections = append(selections, sel)
	}

	conflicts, err := s.loras.ValidateCombination(ctx, selections)
	if err != nil {
		return ok(map[string]interface{}{"valid": false, "conflicts": conflicts})
	}
	return ok(map[string]interface{}{"valid": true, "conflicts": []loracatalog.Conflict{}})
}

// GenerateImageRequest is the validated parameter set for a direct
// generation call.
type GenerateImageRequest struct {
	Prompt         string  `validate:"required"`
	NegativePrompt string
	Steps          int     `validate:"omitempty,min=1,max=150"`
	Width          int     `validate:"omitempty,min=64,max=2048"`
	Height         int     `validate:"omitempty,min=64,max=2048"`
	SamplerName    string
	CFGScale       float64 `validate:"omitempty,min=1,max=30"`
	Seed           int64
	OutputPath     string
	UserID         string
}

// GenerateImage runs a synchronous txt2img call, bypassing the queue —
// intended for callers who need an immediate result rather than a tracked
// job (spec §6's `generate_image`).
func (s *Surface) GenerateImage(ctx context.Context, req GenerateImageRequest) *Result {
	if err := s.validate.Struct(req); err != nil {
		return fail(apperr.Wrap(apperr.Validation, "invalid generate_image parameters", err))
	}

	resp, err := s.sd.Txt2Img(ctx, sdgateway.Txt2ImgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		Width:          req.Width,
		Height:         req.Height,
		CFGScale:       req.CFGScale,
		SamplerName:    req.SamplerName,
		Seed:           req.Seed,
	})
	if err != nil {
		return fail(err)
	}

	if s.censorEnabled && len(resp.Images) > 0 {
		censored, err := s.sd.Censor(ctx, resp.Images[0], s.censorCfg)
		if err != nil {
			return fail(err)
		}
		if censored.AnyAboveThreshold {
			resp.Images[0] = censored.ImageBase64
		}
	}
	return ok(map[string]interface{}{"images": resp.Images, "info": resp.Info})
}

// EnqueueImageGeneration queues a generation job (spec §6's
// `enqueue_image_generation`).
func (s *Surface) EnqueueImageGeneration(ctx context.Context, contextKey string, req sdgateway.Txt2ImgRequest, priority int) *Result {
	jobID, err := s.jobs.Enqueue(ctx, contextKey, req, priority)
	if err != nil {
		return fail(err)
	}
	return ok(map[string]string{"job_id": jobID})
}

// GetGenerationProgress reports a job's current state, or overall engine
// progress when jobID is empty.
func (s *Surface) GetGenerationProgress(ctx context.Context, jobID string) *Result {
	if jobID == "" {
		progress, err := s.sd.Progress(ctx)
		if err != nil {
			return fail(err)
		}
		return ok(progress)
	}
	job, found := s.jobs.Get(jobID)
	if !found {
		return failMsg("job not found")
	}
	return ok(job)
}

// GetQueueStatus lists every job the engine currently tracks.
func (s *Surface) GetQueueStatus(ctx context.Context) *Result {
	return ok(s.jobs.List(""))
}

// CancelGenerationJob cancels a queued or running job.
func (s *Surface) CancelGenerationJob(ctx context.Context, jobID string) *Result {
	if err := s.jobs.Cancel(ctx, jobID); err != nil {
		return fail(err)
	}
	return ok(map[string]bool{"canceled": true})
}

// GetJobHistory returns terminal jobs for a context, most recent first.
func (s *Surface) GetJobHistory(ctx context.Context, contextKey string, limit int) *Result {
	history, err := s.jobs.History(ctx, contextKey, limit)
	if err != nil {
		return fail(err)
	}
	return ok(history)
}

// AnalyzePromptContent scores prompt/negativePrompt against the content
// taxonomy.
func (s *Surface) AnalyzePromptContent(ctx context.Context, prompt, negativePrompt string) *Result {
	analysis, err := s.classifier.Analyze(ctx, prompt+" "+negativePrompt)
	if err != nil {
		return fail(err)
	}
	return ok(analysis)
}

// EnhancedPromptGeneration expands prompt with matched taxonomy words and,
// if requested, suggested LoRA trigger words.
func (s *Surface) EnhancedPromptGeneration(ctx context.Context, prompt string, applySuggestions, safetyFilter bool) *Result {
	enhanced, err := s.classifier.Enhance(ctx, prompt, applySuggestions, safetyFilter)
	if err != nil {
		return fail(err)
	}
	if applySuggestions {
		suggestions, err := s.loras.SuggestForPrompt(ctx, prompt, 1)
		if err == nil && len(suggestions) > 0 {
			top := suggestions[0]
			enhanced = sdgateway.ComposePrompt(enhanced, []sdgateway.LoRASelection{{Name: top.Entry.Name, Weight: top.RecommendedWeight}})
		}
	}
	return ok(map[string]string{"enhanced_prompt": enhanced})
}

// GetContentCategories lists taxonomy categories, optionally filtered to
// those whose name or word list contains categoryType.
func (s *Surface) GetContentCategories(ctx context.Context, categoryType string) *Result {
	if categoryType == "" {
		return okCategoriesErr(s.classifier.SearchWords(ctx, ""))
	}
	cats, err := s.classifier.SearchWords(ctx, categoryType)
	if err != nil {
		return fail(err)
	}
	return ok(cats)
}

func okCategoriesErr(cats interface{}, err error) *Result {
	if err != nil {
		return fail(err)
	}
	return ok(cats)
}

// GetPersonalities lists the installed built-in personalities.
func (s *Surface) GetPersonalities() *Result {
	return ok(convstore.Personalities())
}

// Orchestrate implements the end-to-end recipe (spec §2, §4.9): content
// analysis → LoRA suggestion → weight optimization → conflict check →
// enqueue, reporting which steps completed and any downgrades applied.
// It also implements personality.ImageOrchestrator.
func (s *Surface) Orchestrate(ctx context.Context, userID, prompt string) (string, error) {
	result := s.OrchestrateImageGeneration(ctx, userID, prompt, "")
	if !result.Success {
		return "", apperr.New(apperr.Internal, result.Error)
	}
	payload, ok := result.Payload.(map[string]interface{})
	if !ok {
		return "", apperr.New(apperr.Internal, "orchestrate result missing job id")
	}
	jobID, _ := payload["job_id"].(string)
	return jobID, nil
}

// OrchestrateImageGeneration is the tool-surface entry point for the
// orchestrate recipe (spec §6's `orchestrate_image_generation`).
func (s *Surface) OrchestrateImageGeneration(ctx context.Context, contextKey, prompt, stylePreference string) *Result {
	steps := []string{}

	analysis, err := s.classifier.Analyze(ctx, prompt)
	if err != nil {
		return fail(err)
	}
	steps = append(steps, "content_analysis")

	suggestions, err := s.loras.SuggestForPrompt(ctx, prompt, 0)
	if err != nil {
		return fail(err)
	}
	steps = append(steps, "lora_suggestion")

	selections := make([]sdgateway.LoRASelection, 0, len(suggestions))
	for _, sug := range suggestions {
		selections = append(selections, sdgateway.LoRASelection{Name: sug.Entry.Name, Weight: sug.RecommendedWeight})
	}
	optimized := loracatalog.OptimizeWeights(selections, stylePreference)
	downgrades := []string{}
	for i := range optimized {
		if i < len(selections) && optimized[i].Weight != selections[i].Weight {
			downgrades = append(downgrades, optimized[i].Name)
		}
	}
	steps = append(steps, "weight_optimization")

	names := make([]string, 0, len(optimized))
	for _, sel := range optimized {
		names = append(names, sel.Name)
	}
	if _, err := s.loras.ValidateCombination(ctx, optimized); err != nil {
		return fail(err)
	}
	steps = append(steps, "conflict_check")

	composedPrompt := sdgateway.ComposePrompt(prompt, optimized)
	jobID, err := s.jobs.Enqueue(ctx, contextKey, sdgateway.Txt2ImgRequest{Prompt: composedPrompt}, 0)
	if err != nil {
		return fail(err)
	}
	steps = append(steps, "enqueue")

	return ok(map[string]interface{}{
		"job_id":          jobID,
		"steps_completed": steps,
		"downgrades":      downgrades,
		"safety_level":    analysis.Safety.Level,
		"selected_loras":  names,
	})
}

// UploadTest exercises the configured upload sinks with a tiny probe image,
// surfaced as spec §6's `upload test` tool group.
func (s *Surface) UploadTest(ctx context.Context, userID string) *Result {
	probe := []byte{0x89, 'P', 'N', 'G'}
	result, err := s.uploads.Deliver(ctx, userID, probe, upload.Meta{Title: "upload-test"})
	if err != nil {
		return fail(err)
	}
	return ok(result)
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func limitEntries[T any](entries []T, limit int) []T {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[:limit]
}
