package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config populated with the gateway's built-in defaults,
// used when no config file is present and as the base that Load() overlays
// onto before applying environment variables.
func Default() *Config {
	return &Config{
		SD: SDConfig{
			BaseURL:       "http://127.0.0.1:7860",
			OutputPath:    "./output",
			ListTimeoutMs: 10_000,
			GenTimeoutMs:  300_000,
		},
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{DefaultModel: "claude-sonnet-4-5", TimeoutMs: 60_000},
			OpenAI:    ProviderConfig{DefaultModel: "gpt-4o", TimeoutMs: 60_000},
			Ollama:    ProviderConfig{APIBase: "http://127.0.0.1:11434", DefaultModel: "llava", TimeoutMs: 60_000},
		},
		LLMRouter: LLMRouterConfig{
			ChatProvider:        "anthropic",
			ImageAssistProvider: "ollama",
		},
		Hosting: HostingConfig{
			TimeoutMs:      30_000,
			MaxFileSizeMB:  25,
			LocalFallback:  true,
			FileServerHost: "0.0.0.0",
			FileServerPort: 8787,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "./sdforge.db",
		},
		RateLimit: RateLimitConfig{
			ChatPerMinute:     20,
			GeneratePerMinute: 6,
		},
		AutoClean: AutoCleanConfig{
			Enabled:    true,
			Method:     "days",
			Days:       30,
			RetainDays: 30,
		},
		Censor: CensorConfig{
			Enabled: false,
			Thresholds: map[string]float64{
				"FEMALE_BREAST_EXPOSED": 0.5,
				"FEMALE_GENITALIA_EXPOSED": 0.5,
				"MALE_GENITALIA_EXPOSED": 0.5,
				"BUTTOCKS_EXPOSED": 0.5,
				"ANUS_EXPOSED": 0.5,
				"FACE_FEMALE": 1.0,
				"FACE_MALE": 1.0,
			},
			NMSThreshold:     0.5,
			FilterType:       "Variable blur",
			BlurRadius:       25,
			PixelationFactor: 5,
			FillColor:        "#000000",
			MaskShape:        "Ellipse",
			MaskBlendRadius:  10,
			ExpansionFactor:  1.0,
		},
	}
}

// Load reads a JSON5 config file from path, overlays it onto Default(),
// then overlays environment variables on top (see applyEnvOverrides). A
// missing path is not an error: Load falls back to defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			if err := json5.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers environment variables on top of the parsed file,
// matching the teacher's rule that credentials never live in the JSON5 file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SDFORGE_SD_BASE_URL"); v != "" {
		cfg.SD.BaseURL = v
	}
	cfg.SD.BasicAuthUser = os.Getenv("SDFORGE_SD_AUTH_USER")
	cfg.SD.BasicAuthPass = os.Getenv("SDFORGE_SD_AUTH_PASS")

	cfg.Providers.Anthropic.APIKey = firstNonEmpty(os.Getenv("SDFORGE_ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"))
	cfg.Providers.OpenAI.APIKey = firstNonEmpty(os.Getenv("SDFORGE_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY"))
	cfg.Providers.Ollama.APIKey = os.Getenv("SDFORGE_OLLAMA_API_KEY")

	if v := os.Getenv("SDFORGE_CHAT_PROVIDER"); v != "" {
		cfg.LLMRouter.ChatProvider = v
	}

	cfg.Hosting.UserAPIKey = os.Getenv("SDFORGE_HOSTING_USER_API_KEY")
	cfg.Hosting.GuestAPIKey = os.Getenv("SDFORGE_HOSTING_GUEST_API_KEY")

	cfg.Discord.Token = os.Getenv("SDFORGE_DISCORD_TOKEN")
	if v := os.Getenv("SDFORGE_DISCORD_ENABLED"); v != "" {
		cfg.Discord.Enabled = parseBool(v, cfg.Discord.Enabled)
	}
	if v := os.Getenv("SDFORGE_DISCORD_ADMIN_IDS"); v != "" {
		cfg.Discord.AdminIDs = splitAndTrim(v)
	}

	if v := os.Getenv("SDFORGE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	cfg.Database.PostgresDSN = os.Getenv("SDFORGE_POSTGRES_DSN")

	if v := os.Getenv("SDFORGE_TELEMETRY_ENDPOINT"); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
