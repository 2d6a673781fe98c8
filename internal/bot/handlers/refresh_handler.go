package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const refreshTimeout = 15 * time.Minute

// NewRefreshHandler returns a handler for the admin /refresh command, which
// re-ingests the reference documents immediately.
func NewRefreshHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		refreshHandler{deps}.handle(ctx, b, update)
	}
}

type refreshHandler struct {
	deps HandlerDeps
}

func (h refreshHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "refresh")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Refresh handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Admin requested artifact refresh", "chat_id", chatID, "user_id", update.Message.From.ID)

	send(ctx, s, log, chatID, h.deps.Config.Messages.RefreshProgressMsg)

	timeoutCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if err := h.deps.Session.Refresh(timeoutCtx); err != nil {
		log.ErrorContext(ctx, "Artifact refresh failed", "error", err, "chat_id", chatID)
		send(ctx, s, log, chatID, h.deps.Config.Messages.RefreshErrorMsg)
		return
	}
	send(ctx, s, log, chatID, h.deps.Config.Messages.RefreshDoneMsg)
}
