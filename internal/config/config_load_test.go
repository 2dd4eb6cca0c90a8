package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SD.BaseURL != "http://127.0.0.1:7860" {
		t.Fatalf("got base URL %q, want default", cfg.SD.BaseURL)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("got driver %q, want sqlite default", cfg.Database.Driver)
	}
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	if err := os.WriteFile(path, []byte(`{"sd": {"base_url": "http://custom:1234"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SD.BaseURL != "http://custom:1234" {
		t.Fatalf("got base URL %q, want http://custom:1234", cfg.SD.BaseURL)
	}
	// Unset fields should keep their defaults.
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("got driver %q, want sqlite default preserved", cfg.Database.Driver)
	}
}

func TestApplyEnvOverrides_PrefersSDForgeSpecificKeyOverGeneric(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "generic-key")
	t.Setenv("SDFORGE_ANTHROPIC_API_KEY", "specific-key")

	cfg := Default()
	applyEnvOverrides(cfg)
	if cfg.Providers.Anthropic.APIKey != "specific-key" {
		t.Fatalf("got %q, want specific-key to take priority", cfg.Providers.Anthropic.APIKey)
	}
}

func TestApplyEnvOverrides_FallsBackToGenericKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "generic-key")
	t.Setenv("SDFORGE_ANTHROPIC_API_KEY", "")

	cfg := Default()
	applyEnvOverrides(cfg)
	if cfg.Providers.Anthropic.APIKey != "generic-key" {
		t.Fatalf("got %q, want generic-key fallback", cfg.Providers.Anthropic.APIKey)
	}
}

func TestParseBool_InvalidValueFallsBack(t *testing.T) {
	if got := parseBool("not-a-bool", true); !got {
		t.Fatalf("expected fallback true for an unparseable value")
	}
	if got := parseBool("false", true); got {
		t.Fatalf("expected parsed false to override the fallback")
	}
}

func TestSplitAndTrim_DropsEmptyEntries(t *testing.T) {
	got := splitAndTrim(" admin1 , , admin2,admin3 ")
	want := []string{"admin1", "admin2", "admin3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFirstNonEmpty_ReturnsFirstSetValue(t *testing.T) {
	if got := firstNonEmpty("", "", "third"); got != "third" {
		t.Fatalf("got %q, want third", got)
	}
	if got := firstNonEmpty("", "", ""); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
