package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"

	"github.com/sdforge/sdforge-gateway/internal/classifier"
	"github.com/sdforge/sdforge-gateway/internal/config"
	"github.com/sdforge/sdforge-gateway/internal/convstore"
	"github.com/sdforge/sdforge-gateway/internal/discord"
	"github.com/sdforge/sdforge-gateway/internal/llmrouter"
	"github.com/sdforge/sdforge-gateway/internal/loracatalog"
	"github.com/sdforge/sdforge-gateway/internal/mcpserver"
	"github.com/sdforge/sdforge-gateway/internal/personality"
	"github.com/sdforge/sdforge-gateway/internal/queue"
	"github.com/sdforge/sdforge-gateway/internal/sdgateway"
	"github.com/sdforge/sdforge-gateway/internal/store"
	"github.com/sdforge/sdforge-gateway/internal/store/sqlstore"
	"github.com/sdforge/sdforge-gateway/internal/telemetry"
	"github.com/sdforge/sdforge-gateway/internal/toolsurface"
	"github.com/sdforge/sdforge-gateway/internal/upload"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (MCP server + Discord front end)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeE()
		},
	}
}

func runServe() {
	if err := runServeE(); err != nil {
		slog.Error("serve failed", "error", err)
		os.Exit(1)
	}
}

func runServeE() error {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	watcher, err := config.WatchFile(resolveConfigPath(), cfg)
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	snap := cfg.Snapshot()

	tel, err := telemetry.Init(snap.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	}()

	stores, err := sqlstore.OpenStores(store.StoreConfig{
		Driver:      snap.Database.Driver,
		SQLitePath:  snap.Database.SQLitePath,
		PostgresDSN: snap.Database.PostgresDSN,
	})
	if err != nil {
		return fmt.Errorf("open stores: %w", err)
	}

	sd := sdgateway.New(
		snap.SD.BaseURL,
		durationOrDefault(snap.SD.ListTimeoutMs, 10*time.Second),
		durationOrDefault(snap.SD.GenTimeoutMs, 5*time.Minute),
		sdgateway.WithBasicAuth(snap.SD.BasicAuthUser, snap.SD.BasicAuthPass),
	)

	loras := loracatalog.New(sd, stores.LoRA)
	if n, err := loras.SyncFromGateway(context.Background()); err != nil {
		logger.Warn("initial LoRA sync failed", "error", err)
	} else {
		logger.Info("synced LoRA catalog", "count", n)
	}

	cls := classifier.New(stores.Classifier)

	uploadRouter, err := buildUploadRouter(snap.Hosting, stores.Hosting)
	if err != nil {
		return fmt.Errorf("build upload router: %w", err)
	}

	var jobs *queue.Engine
	postprocess := func(ctx context.Context, job *queue.Job, resp *sdgateway.Txt2ImgResponse) ([]string, error) {
		paths := make([]string, 0, len(resp.Images))
		for _, encoded := range resp.Images {
			raw, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("decode generated image: %w", err)
			}
			result, err := uploadRouter.Deliver(ctx, ownerFromContextKey(job.ContextKey), raw, upload.Meta{Title: "sdforge generation"})
			if err != nil {
				return nil, err
			}
			paths = append(paths, result.URL)
		}
		tel.JobsCompleted.WithLabelValues("done").Inc()
		return paths, nil
	}
	jobs = queue.New(sd, stores.Queue, postprocess, logger)
	jobsCtx, jobsCancel := context.WithCancel(context.Background())
	defer jobsCancel()
	go jobs.Run(jobsCtx)

	llm := llmrouter.NewRegistry(snap.LLMRouter.ChatProvider, snap.LLMRouter.ImageAssistProvider)
	installProviders(llm, snap, logger)

	conv := convstore.New(stores.Conversations, convstore.AutoCleanPolicy{
		Method:     snap.AutoClean.Method,
		Threshold:  autoCleanThreshold(snap.AutoClean),
		RetainDays: snap.AutoClean.RetainDays,
		Schedule:   snap.AutoClean.Schedule,
	})
	if snap.AutoClean.Enabled {
		if snap.AutoClean.Method == "cron" {
			go conv.RunCronCleanup(jobsCtx, snap.AutoClean.RetainDays, logger)
		} else if err := conv.RunStartupCleanup(context.Background(), snap.AutoClean.RetainDays); err != nil {
			logger.Warn("startup conversation cleanup failed", "error", err)
		}
	}

	surface := toolsurface.New(sd, loras, cls, jobs, conv, uploadRouter, toCensorConfig(snap.Censor), snap.Censor.Enabled)
	core := personality.New(conv, llm, surface, 20)

	mcpSrv := mcpserver.New(surface, Version)

	var httpServer *http.Server
	if snap.Gateway.Port != 0 {
		addr := fmt.Sprintf("%s:%d", snap.Gateway.Host, snap.Gateway.Port)
		mux := http.NewServeMux()
		mux.Handle("/mcp", mcpSrv.StreamableHTTPHandler())
		mux.Handle("/metrics", tel.MetricsHandler())
		httpServer = &http.Server{Addr: addr, Handler: mux}
		go func() {
			logger.Info("mcp gateway listening", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
			}
		}()
	}

	var bot *discord.Bot
	if snap.Discord.Enabled {
		bot, err = discord.New(snap.Discord, snap.RateLimit, core, surface, conv, logger)
		if err != nil {
			return fmt.Errorf("build discord bot: %w", err)
		}
		if err := bot.Start(); err != nil {
			return fmt.Errorf("start discord bot: %w", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	if bot != nil {
		_ = bot.Stop()
	}
	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}
	jobsCancel()
	return nil
}

func toCensorConfig(cfg config.CensorConfig) sdgateway.CensorConfig {
	return sdgateway.CensorConfig{
		Thresholds:        cfg.Thresholds,
		NMSThreshold:      cfg.NMSThreshold,
		FilterType:        cfg.FilterType,
		BlurRadius:        cfg.BlurRadius,
		PixelationFactor:  cfg.PixelationFactor,
		FillColor:         cfg.FillColor,
		MaskShape:         cfg.MaskShape,
		MaskBlendRadius:   cfg.MaskBlendRadius,
		RectangleRounding: cfg.RectangleRounding,
		ExpansionFactor:   cfg.ExpansionFactor,
	}
}

func durationOrDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func autoCleanThreshold(cfg config.AutoCleanConfig) int {
	if cfg.Method == "launches" {
		return cfg.Launches
	}
	return cfg.Days
}

// ownerFromContextKey recovers the triggering user ID for a DM context key
// (the only shape that encodes one); channel/thread-derived jobs fall back
// to the guest/cloud sinks since there is no single owning user.
func ownerFromContextKey(contextKey string) string {
	const prefix = "dm:"
	if len(contextKey) > len(prefix) && contextKey[:len(prefix)] == prefix {
		return contextKey[len(prefix):]
	}
	return ""
}

func installProviders(llm *llmrouter.Registry, cfg config.Config, logger *slog.Logger) {
	providers := []struct {
		name string
		p    config.ProviderConfig
	}{
		{"anthropic", cfg.Providers.Anthropic},
		{"openai", cfg.Providers.OpenAI},
		{"ollama", cfg.Providers.Ollama},
	}
	for _, entry := range providers {
		if entry.p.APIKey == "" && entry.name != "ollama" {
			continue
		}
		if err := llm.Install(entry.name, entry.p.APIKey, entry.p.APIBase, entry.p.DefaultModel, entry.p.RequestsPerSecond); err != nil {
			logger.Warn("install LLM provider failed", "provider", entry.name, "error", err)
		}
	}
}

func buildUploadRouter(cfg config.HostingConfig, hostingStore store.HostingStore) (*upload.Router, error) {
	var guestSink upload.Sink
	if cfg.BaseURL != "" && cfg.GuestAPIKey != "" {
		guestSink = upload.NewExternalHostSink("guest", cfg.BaseURL, cfg.GuestAPIKey, "", durationOrDefault(cfg.TimeoutMs, 30*time.Second))
	}

	var cloudSink upload.Sink
	if cfg.CloudBucket.Enabled {
		client, err := storage.NewClient(context.Background())
		if err != nil {
			return nil, fmt.Errorf("create cloud storage client: %w", err)
		}
		cloudSink = upload.NewCloudBucketSink(client, cfg.CloudBucket.BucketName, cfg.FileServerBase)
	}

	var localSink upload.Sink
	if cfg.LocalFallback {
		localSink = upload.NewLocalFileSink(cfg.FileServerHost, cfg.FileServerBase)
	}

	return upload.New(hostingStore, nil, guestSink, cloudSink, localSink), nil
}
