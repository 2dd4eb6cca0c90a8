// Package config loads the gateway's JSON5 configuration file and overlays
// environment variables, matching the teacher's convention: secrets
// (API keys, DSNs, bot tokens) live only in the environment and are never
// round-tripped into the on-disk JSON.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, matching the
// teacher's tolerant-config-parsing convention for admin ID lists that
// operators sometimes paste as numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the sdforge gateway.
type Config struct {
	SD        SDConfig        `json:"sd"`
	Providers ProvidersConfig `json:"providers"`
	LLMRouter LLMRouterConfig `json:"llm_router"`
	Hosting   HostingConfig   `json:"hosting"`
	Gateway   GatewayConfig   `json:"gateway"`
	Discord   DiscordConfig   `json:"discord"`
	Database  DatabaseConfig  `json:"database"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	AutoClean AutoCleanConfig `json:"auto_clean"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Censor    CensorConfig    `json:"censor"`

	mu sync.RWMutex
}

// SDConfig configures the Stable Diffusion engine gateway (spec §6).
type SDConfig struct {
	BaseURL       string `json:"base_url"`
	BasicAuthUser string `json:"-"` // env only: SDFORGE_SD_AUTH_USER
	BasicAuthPass string `json:"-"` // env only: SDFORGE_SD_AUTH_PASS
	OutputPath    string `json:"output_path"`
	ListTimeoutMs int    `json:"list_timeout_ms,omitempty"` // short timeout for listings (default 10000)
	GenTimeoutMs  int    `json:"gen_timeout_ms,omitempty"`  // long timeout for txt2img (default 300000)
}

// ProviderConfig holds the connection details for one LLM provider.
type ProviderConfig struct {
	APIKey            string `json:"-"` // env only
	APIBase           string `json:"api_base,omitempty"`
	DefaultModel      string `json:"default_model,omitempty"`
	TimeoutMs         int    `json:"timeout_ms,omitempty"`
	RequestsPerSecond int    `json:"requests_per_second,omitempty"` // outbound throttle; 0 disables
}

// ProvidersConfig maps provider name to its config.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
	Ollama    ProviderConfig `json:"ollama"`
}

// LLMRouterConfig selects which provider backs each channel (spec §4.6).
type LLMRouterConfig struct {
	ChatProvider       string `json:"chat_provider"`        // user-configurable default
	ImageAssistProvider string `json:"image_assist_provider"` // fixed to local provider per spec
}

// HostingConfig configures the external image-hosting sink and local fallback (spec §4.7, §6).
type HostingConfig struct {
	BaseURL        string `json:"base_url"`
	UserAPIKey     string `json:"-"` // env only: per-deployment guest/shared key, per-user keys live in the store
	GuestAPIKey    string `json:"-"` // env only
	TimeoutMs      int    `json:"timeout_ms,omitempty"`
	MaxFileSizeMB  int    `json:"max_file_size_mb,omitempty"`
	LocalFallback  bool   `json:"local_fallback"`
	FileServerHost string `json:"file_server_host"`
	FileServerPort int    `json:"file_server_port"`
	FileServerBase string `json:"file_server_base_url"` // public base URL for local sink links
	CloudBucket    CloudBucketConfig `json:"cloud_bucket,omitempty"`
}

// CloudBucketConfig is an operator-optional extension sink ahead of the
// local file sink (see SPEC_FULL.md DOMAIN STACK).
type CloudBucketConfig struct {
	Enabled    bool   `json:"enabled"`
	BucketName string `json:"bucket_name,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
}

// GatewayConfig controls the MCP/tool-surface HTTP listener.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DiscordConfig configures the Discord front end.
type DiscordConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"-"` // env only
	AdminIDs  FlexibleStringSlice `json:"admin_ids,omitempty"`
}

// DatabaseConfig selects the relational backend (spec §3, §6).
type DatabaseConfig struct {
	Driver      string `json:"driver"`       // "sqlite" (default) or "postgres"
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"` // env only: SDFORGE_POSTGRES_DSN
}

// RateLimitConfig sets default per-action limits (spec §6).
type RateLimitConfig struct {
	ChatPerMinute     int `json:"chat_per_minute"`
	GeneratePerMinute int `json:"generate_per_minute"`
}

// AutoCleanConfig configures ConversationStore's cleanup policy (spec §4.5).
type AutoCleanConfig struct {
	Enabled    bool   `json:"enabled"`
	Method     string `json:"method"` // "days", "launches", or "cron"
	Days       int    `json:"days,omitempty"`
	Launches   int    `json:"launches,omitempty"`
	RetainDays int    `json:"retain_days"`
	Schedule   string `json:"schedule,omitempty"` // cron expression, used when method is "cron"
}

// TelemetryConfig configures OTLP trace export, grounded on the teacher's
// TelemetryConfig (kept from goclaw's go.mod dependency, now actually wired).
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// CensorConfig is the default NudeNet threshold/filter configuration passed
// to SDGateway.Censor (spec §6). Per-class thresholds in [0,1]; 1.0 means
// "never censor" that class (spec §9 open question, codified here).
type CensorConfig struct {
	Enabled    bool               `json:"enabled"`
	Thresholds map[string]float64 `json:"thresholds"`
	NMSThreshold   float64 `json:"nms_threshold,omitempty"`
	FilterType     string  `json:"filter_type,omitempty"`     // "Variable blur" | "Pixelation" | "Solid fill"
	BlurRadius     int     `json:"blur_radius,omitempty"`
	PixelationFactor int   `json:"pixelation_factor,omitempty"`
	FillColor      string  `json:"fill_color,omitempty"`
	MaskShape      string  `json:"mask_shape,omitempty"` // "Ellipse" | "Rectangle"
	MaskBlendRadius int    `json:"mask_blend_radius,omitempty"`
	RectangleRounding int  `json:"rectangle_rounding,omitempty"`
	ExpansionFactor float64 `json:"expansion_factor,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex —
// used by the hot-reload watcher (see watcher.go).
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SD = src.SD
	c.Providers = src.Providers
	c.LLMRouter = src.LLMRouter
	c.Hosting = src.Hosting
	c.Gateway = src.Gateway
	c.Discord = src.Discord
	c.Database = src.Database
	c.RateLimit = src.RateLimit
	c.AutoClean = src.AutoClean
	c.Telemetry = src.Telemetry
	c.Censor = src.Censor
}

// Snapshot returns a shallow copy safe for concurrent readers.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
