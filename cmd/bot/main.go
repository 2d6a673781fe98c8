// Package main contains the entrypoint for the nightguide Telegram bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/nightguide/internal/bot"
	"github.com/edgard/nightguide/internal/bot/handlers"
	"github.com/edgard/nightguide/internal/bot/tasks"
	"github.com/edgard/nightguide/internal/config"
	"github.com/edgard/nightguide/internal/database"
	"github.com/edgard/nightguide/internal/dataset"
	"github.com/edgard/nightguide/internal/gemini"
	"github.com/edgard/nightguide/internal/httpserver"
	"github.com/edgard/nightguide/internal/ingest"
	"github.com/edgard/nightguide/internal/logger"
	"github.com/edgard/nightguide/internal/metrics"
	"github.com/edgard/nightguide/internal/objectstore"
	"github.com/edgard/nightguide/internal/persona"
	"github.com/edgard/nightguide/internal/session"
	"github.com/edgard/nightguide/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run wires every component, blocks until shutdown and returns the exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path, log)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db, log)
	store := database.NewStore(db, log)

	p, err := persona.Load(cfg.Persona.Path)
	if err != nil {
		log.Error("Failed to load persona", "path", cfg.Persona.Path, "error", err)
		return 1
	}

	digest, err := datasetDigest(cfg.Dataset, log)
	if err != nil {
		log.Error("Failed to load dataset", "path", cfg.Dataset.Path, "error", err)
		return 1
	}

	gem, err := gemini.New(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	manager, err := session.NewManager(log, store, gem, p, session.Options{
		DatasetDigest:      digest,
		MaxHistory:         cfg.Database.MaxHistoryMessages,
		HistoryTokenBudget: cfg.Gemini.HistoryTokenBudget,
		Provider:           cfg.Ingestion.Provider,
	})
	if err != nil {
		log.Error("Failed to create session manager", "error", err)
		return 1
	}

	gate, artifacts, err := newIngestion(ctx, cfg, gem, log)
	if err != nil {
		log.Error("Failed to configure ingestion", "error", err)
		return 1
	}

	var ing session.Ingester
	if gate != nil {
		ing = gate
	}
	log.Info("Ingesting reference documents", "count", len(artifacts), "provider", cfg.Ingestion.Provider)
	if err := manager.Initialize(ctx, ing, artifacts); err != nil {
		log.Error("Failed to ingest reference documents", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{
		Logger:  log,
		Config:  cfg,
		Store:   store,
		Session: manager,
	}
	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}
	if ing != nil {
		tDeps.Session = manager
	}

	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log,
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewRelayHandler(hDeps)),
	)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps), nil)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var srv bot.HTTPServer
	if cfg.HTTP.Enabled {
		srv = httpserver.New(cfg.HTTP.Addr, manager, store, metrics.NewRegistry(), log)
	}

	log.Info("Starting bot")
	runErr := bot.NewBot(log, tg, sched, srv).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully")
	time.Sleep(time.Second)
	return 0
}

func datasetDigest(cfg config.DatasetConfig, log *slog.Logger) (string, error) {
	if cfg.Path == "" {
		return "", nil
	}
	ds, err := dataset.Load(cfg.Path)
	if err != nil {
		return "", err
	}
	log.Info("Loaded venue dataset", "path", ds.Path, "cities", ds.Cities())
	return ds.Digest(cfg.MaxRowsPerSheet), nil
}

// newIngestion builds the gate for the configured provider. It returns a nil
// gate when ingestion is disabled.
func newIngestion(ctx context.Context, cfg *config.Config, gem *gemini.Client, log *slog.Logger) (*ingest.Gate, []ingest.Artifact, error) {
	ic := cfg.Ingestion
	if !ic.Enabled || len(ic.Artifacts) == 0 {
		return nil, nil, nil
	}

	var remote ingest.RemoteService
	switch ic.Provider {
	case "gemini":
		remote = gem.Files()
	case "s3":
		s3Store, err := objectstore.NewFromConfig(ctx, cfg.S3, log)
		if err != nil {
			return nil, nil, err
		}
		remote = s3Store
	default:
		return nil, nil, fmt.Errorf("unknown ingestion provider %q", ic.Provider)
	}

	opts := ingest.Options{
		PollInterval:    ic.PollInterval,
		Backoff:         ingest.BackoffKind(ic.Backoff),
		MaxPollInterval: ic.MaxPollInterval,
		Jitter:          ic.Jitter,
		MaxWait:         ic.MaxWait,
	}
	if ic.NoTimeout {
		opts.MaxWait = ingest.NoTimeout
	}

	gate, err := ingest.NewGate(remote, log, opts)
	if err != nil {
		return nil, nil, err
	}

	artifacts := make([]ingest.Artifact, 0, len(ic.Artifacts))
	for _, a := range ic.Artifacts {
		artifacts = append(artifacts, ingest.Artifact{
			Path:     a.Path,
			Kind:     a.Kind,
			Label:    a.Label,
			Optional: a.Optional,
		})
	}
	return gate, artifacts, nil
}
