package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const resetTimeout = 30 * time.Second

// NewResetHandler returns a handler for the /reset command. It clears the
// history of the chat it is sent in.
func NewResetHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		resetHandler{deps}.handle(ctx, b, update)
	}
}

type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "reset")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Reset handler called with nil Message or From", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Chat history reset requested", "chat_id", chatID, "user_id", update.Message.From.ID)

	timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	deleted, err := h.deps.Session.Reset(timeoutCtx, chatID)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		log.WarnContext(ctx, "Reset timed out or was cancelled", "chat_id", chatID)
		send(ctx, s, log, chatID, h.deps.Config.Messages.ResetTimeoutMsg)
	case err != nil:
		log.ErrorContext(ctx, "Failed to reset chat history", "error", err, "chat_id", chatID)
		send(ctx, s, log, chatID, h.deps.Config.Messages.ResetErrorMsg)
	default:
		log.InfoContext(ctx, "Chat history cleared", "chat_id", chatID, "messages_deleted", deleted)
		send(ctx, s, log, chatID, h.deps.Config.Messages.ResetConfirmMsg)
	}
}
