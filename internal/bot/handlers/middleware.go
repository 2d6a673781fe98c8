// Package handlers contains the Telegram command and message handlers,
// their registration table and middleware.
package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly rejects updates whose sender is not the configured admin.
func AdminOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if allowAdmin(ctx, b, deps, update) {
				next(ctx, b, update)
			}
		}
	}
}

func allowAdmin(ctx context.Context, s Sender, deps HandlerDeps, update *models.Update) bool {
	if update.Message == nil || update.Message.From == nil {
		return false
	}

	userID := update.Message.From.ID
	if deps.Config.IsAdmin(userID) {
		return true
	}

	chatID := update.Message.Chat.ID
	log := deps.Logger.With("middleware", "AdminOnly")
	log.WarnContext(ctx, "Unauthorized access attempt", "user_id", userID, "chat_id", chatID)
	send(ctx, s, log, chatID, deps.Config.Messages.ErrorUnauthorizedMsg)
	return false
}
