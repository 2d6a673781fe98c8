package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/nightguide/internal/config"
	"github.com/edgard/nightguide/internal/database"
)

// Conversation is the session surface the handlers drive.
type Conversation interface {
	Ready() bool
	Reply(ctx context.Context, chatID, userID int64, text string) (string, error)
	Reset(ctx context.Context, chatID int64) (int64, error)
	Refresh(ctx context.Context) error
}

// Sender is the part of the Telegram client the handlers use. *bot.Bot
// satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger  *slog.Logger
	Config  *config.Config
	Store   database.Store
	Session Conversation
}

func (d HandlerDeps) botUsername() string {
	if d.Config.Telegram.BotInfo == nil {
		return ""
	}
	return d.Config.Telegram.BotInfo.Username
}

func send(ctx context.Context, s Sender, log *slog.Logger, chatID int64, text string) {
	if _, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}
