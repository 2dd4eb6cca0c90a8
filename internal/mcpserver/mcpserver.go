// Package mcpserver exposes ToolSurface's tool catalog to an LLM host over
// the Model Context Protocol.
//
// The teacher pack only ever consumes MCP as a client (internal/mcp's
// Manager connects outbound to third-party servers and registers their
// tools locally). This package inverts that shape: it is itself an MCP
// server, built on the same github.com/mark3labs/mcp-go module the teacher
// already depends on for its client, using the module's server package
// instead of its client package.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sdforge/sdforge-gateway/internal/sdgateway"
	"github.com/sdforge/sdforge-gateway/internal/toolsurface"
)

// Server wraps an mcp-go MCPServer pre-loaded with the gateway's tool
// catalog.
type Server struct {
	mcp     *server.MCPServer
	surface *toolsurface.Surface
}

// New builds a Server with every spec §6 tool registered.
func New(surface *toolsurface.Surface, version string) *Server {
	s := &Server{
		mcp:     server.NewMCPServer("sdforge-gateway", version, server.WithToolCapabilities(true)),
		surface: surface,
	}
	s.registerTools()
	return s
}

// ServeStdio runs the server over stdio, for LLM hosts that spawn it as a
// subprocess.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// StreamableHTTPHandler returns an http.Handler serving the MCP server over
// streamable HTTP, for LLM hosts that connect over the network instead.
func (s *Server) StreamableHTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp)
}

func textResult(r *toolsurface.Result) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(r.Text()), nil
}

func stringArg(req mcp.CallToolRequest, name, def string) string {
	if v, ok := req.Params.Arguments[name].(string); ok {
		return v
	}
	return def
}

func intArg(req mcp.CallToolRequest, name string, def int) int {
	switch v := req.Params.Arguments[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func float64Arg(req mcp.CallToolRequest, name string, def float64) float64 {
	if v, ok := req.Params.Arguments[name].(float64); ok {
		return v
	}
	return def
}

func stringSliceArg(req mcp.CallToolRequest, name string) []string {
	raw, ok := req.Params.Arguments[name].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool("get_sd_models_summary", mcp.WithDescription("List checkpoints loaded by the SD engine.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetSDModelsSummary(ctx))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("search_sd_models",
			mcp.WithDescription("Search loaded checkpoints by title or model name."),
			mcp.WithString("query", mcp.Required()),
			mcp.WithNumber("limit"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.SearchSDModels(ctx, stringArg(req, "query", ""), intArg(req, "limit", 0)))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("get_samplers_list", mcp.WithDescription("List available samplers.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetSamplersList(ctx))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("get_lora_summary", mcp.WithDescription("Summarize LoRA catalog composition.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetLoRASummary(ctx))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("browse_loras_by_category",
			mcp.WithDescription("List LoRAs in a category."),
			mcp.WithString("category", mcp.Required()),
			mcp.WithNumber("limit"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.BrowseLoRAsByCategory(ctx, stringArg(req, "category", ""), intArg(req, "limit", 0)))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("search_loras_smart",
			mcp.WithDescription("Free-text search the LoRA catalog."),
			mcp.WithString("query", mcp.Required()),
			mcp.WithNumber("max_results"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.SearchLoRAsSmart(ctx, stringArg(req, "query", ""), intArg(req, "max_results", 0)))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("suggest_loras_for_prompt",
			mcp.WithDescription("Suggest LoRAs relevant to a prompt."),
			mcp.WithString("prompt", mcp.Required()),
			mcp.WithNumber("limit"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.SuggestLoRAsForPrompt(ctx, stringArg(req, "prompt", ""), intArg(req, "limit", 0)))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("validate_lora_combination",
			mcp.WithDescription("Check a set of LoRA names for conflicts."),
			mcp.WithArray("selected", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.ValidateLoRACombination(ctx, stringSliceArg(req, "selected")))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("generate_image",
			mcp.WithDescription("Run a direct, synchronous txt2img generation."),
			mcp.WithString("prompt", mcp.Required()),
			mcp.WithString("negative_prompt"),
			mcp.WithNumber("steps"),
			mcp.WithNumber("width"),
			mcp.WithNumber("height"),
			mcp.WithString("sampler_name"),
			mcp.WithNumber("cfg_scale"),
			mcp.WithNumber("seed"),
			mcp.WithString("user_id"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GenerateImage(ctx, toolsurface.GenerateImageRequest{
				Prompt:         stringArg(req, "prompt", ""),
				NegativePrompt: stringArg(req, "negative_prompt", ""),
				Steps:          intArg(req, "steps", 0),
				Width:          intArg(req, "width", 0),
				Height:         intArg(req, "height", 0),
				SamplerName:    stringArg(req, "sampler_name", ""),
				CFGScale:       float64Arg(req, "cfg_scale", 0),
				Seed:           int64(intArg(req, "seed", 0)),
				UserID:         stringArg(req, "user_id", ""),
			}))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("enqueue_image_generation",
			mcp.WithDescription("Queue a generation job."),
			mcp.WithString("context_key", mcp.Required()),
			mcp.WithString("prompt", mcp.Required()),
			mcp.WithNumber("priority"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.EnqueueImageGeneration(ctx, stringArg(req, "context_key", ""), sdgateway.Txt2ImgRequest{
				Prompt: stringArg(req, "prompt", ""),
			}, intArg(req, "priority", 0)))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("get_generation_progress",
			mcp.WithDescription("Get a job's progress, or overall engine progress if job_id is omitted."),
			mcp.WithString("job_id"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetGenerationProgress(ctx, stringArg(req, "job_id", "")))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("get_queue_status", mcp.WithDescription("List every tracked job.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetQueueStatus(ctx))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("cancel_generation_job",
			mcp.WithDescription("Cancel a queued or running job."),
			mcp.WithString("job_id", mcp.Required()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.CancelGenerationJob(ctx, stringArg(req, "job_id", "")))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("get_job_history",
			mcp.WithDescription("List terminal jobs for a context, most recent first."),
			mcp.WithString("context_key", mcp.Required()),
			mcp.WithNumber("limit"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetJobHistory(ctx, stringArg(req, "context_key", ""), intArg(req, "limit", 50)))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("orchestrate_image_generation",
			mcp.WithDescription("Run the end-to-end recipe: analyze, suggest LoRAs, optimize weights, validate, enqueue."),
			mcp.WithString("prompt", mcp.Required()),
			mcp.WithString("style_preference"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			contextKey := stringArg(req, "context_key", "default")
			return textResult(s.surface.OrchestrateImageGeneration(ctx, contextKey, stringArg(req, "prompt", ""), stringArg(req, "style_preference", "")))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("analyze_prompt_content",
			mcp.WithDescription("Score a prompt against the content taxonomy."),
			mcp.WithString("prompt", mcp.Required()),
			mcp.WithString("negative_prompt"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.AnalyzePromptContent(ctx, stringArg(req, "prompt", ""), stringArg(req, "negative_prompt", "")))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("enhanced_prompt_generation",
			mcp.WithDescription("Expand a prompt with matched taxonomy words and LoRA suggestions."),
			mcp.WithString("prompt", mcp.Required()),
			mcp.WithBoolean("apply_suggestions"),
			mcp.WithBoolean("safety_filter"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			applySuggestions, _ := req.Params.Arguments["apply_suggestions"].(bool)
			safetyFilter, _ := req.Params.Arguments["safety_filter"].(bool)
			return textResult(s.surface.EnhancedPromptGeneration(ctx, stringArg(req, "prompt", ""), applySuggestions, safetyFilter))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("get_content_categories",
			mcp.WithDescription("List content-taxonomy categories."),
			mcp.WithString("category_type"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetContentCategories(ctx, stringArg(req, "category_type", "")))
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("get_personalities", mcp.WithDescription("List installed personalities.")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.GetPersonalities())
		},
	)

	s.mcp.AddTool(
		mcp.NewTool("upload_test",
			mcp.WithDescription("Probe the configured upload sinks."),
			mcp.WithString("user_id"),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return textResult(s.surface.UploadTest(ctx, stringArg(req, "user_id", "")))
		},
	)
}
