// Package bot wires the long-running components together and manages their
// lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Poller receives Telegram updates until ctx is done. *tgbot.Bot satisfies it.
type Poller interface {
	Start(ctx context.Context)
}

// HTTPServer serves the operational endpoints until ctx is done.
type HTTPServer interface {
	Run(ctx context.Context) error
}

// Bot owns the Telegram poller, the scheduler and the optional HTTP server.
type Bot struct {
	logger    *slog.Logger
	poller    Poller
	scheduler *Scheduler
	http      HTTPServer
}

// NewBot creates the orchestrator. scheduler and httpServer may be nil.
func NewBot(logger *slog.Logger, poller Poller, scheduler *Scheduler, httpServer HTTPServer) *Bot {
	return &Bot{
		logger:    logger.With("component", "bot_orchestrator"),
		poller:    poller,
		scheduler: scheduler,
		http:      httpServer,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram listener")
		b.poller.Start(gCtx)
		b.logger.Info("Telegram listener stopped")

		if gCtx.Err() == nil {
			return errors.New("telegram listener stopped unexpectedly")
		}
		return nil
	})

	if b.scheduler != nil {
		g.Go(func() error {
			if err := b.scheduler.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			<-gCtx.Done()
			b.logger.Info("Shutdown signal received, stopping scheduler")
			if err := b.scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	if b.http != nil {
		g.Go(func() error {
			if err := b.http.Run(gCtx); err != nil {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully")
	return nil
}
