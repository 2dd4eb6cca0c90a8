package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/sdforge/sdforge-gateway/internal/config"
	"github.com/sdforge/sdforge-gateway/internal/sdgateway"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("sdforge-gateway doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Stable Diffusion engine:")
	checkSDEngine(cfg.SD)

	fmt.Println()
	fmt.Println("  Database:")
	checkDatabase(cfg.Database)

	fmt.Println()
	fmt.Println("  LLM providers:")
	checkProvider("Anthropic", cfg.Providers.Anthropic.APIKey)
	checkProvider("OpenAI", cfg.Providers.OpenAI.APIKey)
	checkProvider("Ollama", cfg.Providers.Ollama.APIBase)

	fmt.Println()
	fmt.Println("  Discord:")
	checkChannel("Discord", cfg.Discord.Enabled, cfg.Discord.Token != "")

	fmt.Println()
	fmt.Println("  Upload sinks:")
	checkUploadSinks(cfg.Hosting)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSDEngine(cfg config.SDConfig) {
	if cfg.BaseURL == "" {
		fmt.Printf("    %-12s (not configured)\n", "Base URL:")
		return
	}
	fmt.Printf("    %-12s %s\n", "Base URL:", cfg.BaseURL)
	client := sdgateway.New(cfg.BaseURL, 5*time.Second, 5*time.Second, sdgateway.WithBasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Printf("    %-12s UNREACHABLE (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s reachable, %d model(s)\n", "Status:", len(models))
}

func checkDatabase(cfg config.DatabaseConfig) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	fmt.Printf("    %-12s %s\n", "Driver:", driver)

	switch driver {
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "./sdforge.db"
		}
		fmt.Printf("    %-12s %s\n", "Path:", path)
	case "postgres":
		if cfg.PostgresDSN == "" {
			fmt.Printf("    %-12s NOT CONFIGURED (SDFORGE_POSTGRES_DSN)\n", "Status:")
			return
		}
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
			return
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
			return
		}
		fmt.Printf("    %-12s reachable\n", "Status:")
	}
}

func checkProvider(name, secretLike string) {
	if secretLike != "" {
		fmt.Printf("    %-12s %s\n", name+":", maskSecret(secretLike))
	} else {
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func maskSecret(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing token)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func checkUploadSinks(cfg config.HostingConfig) {
	fmt.Printf("    %-16s %v\n", "External host:", cfg.BaseURL != "" && cfg.GuestAPIKey != "")
	fmt.Printf("    %-16s %v\n", "Cloud bucket:", cfg.CloudBucket.Enabled)
	fmt.Printf("    %-16s %v\n", "Local fallback:", cfg.LocalFallback)
}
