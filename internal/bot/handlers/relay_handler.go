package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/nightguide/internal/sanitize"
	"github.com/edgard/nightguide/internal/session"
)

const (
	defaultReplyTimeout = 2 * time.Minute
	sendMessageTimeout  = 10 * time.Second
)

var plainText = sanitize.NewTelegramPolicy()

// NewRelayHandler returns the default handler: every plain text message is
// answered by the model.
func NewRelayHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		relayHandler{deps}.handle(ctx, b, update)
	}
}

type relayHandler struct {
	deps HandlerDeps
}

func (h relayHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "relay")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.DebugContext(ctx, "Ignoring update without message or sender", "update_id", update.ID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" || strings.HasPrefix(text, "/") {
		log.DebugContext(ctx, "Ignoring empty message or unknown command", "chat_id", msg.Chat.ID)
		return
	}
	if msg.From.IsBot {
		return
	}

	chatID := msg.Chat.ID
	if !h.deps.Session.Ready() {
		log.InfoContext(ctx, "Session warming up, deferring message", "chat_id", chatID)
		h.reply(ctx, s, chatID, msg.ID, h.deps.Config.Messages.WarmingUpMsg)
		return
	}

	if _, err := s.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		log.DebugContext(ctx, "Failed to send typing action", "error", err, "chat_id", chatID)
	}

	timeout := h.deps.Config.Gemini.RequestTimeout
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	aiCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := h.deps.Session.Reply(aiCtx, chatID, msg.From.ID, text)
	switch {
	case errors.Is(err, session.ErrNotReady):
		reply = h.deps.Config.Messages.WarmingUpMsg
	case errors.Is(err, session.ErrEmptyReply):
		log.WarnContext(ctx, "Empty reply from model", "chat_id", chatID)
		reply = h.deps.Config.Messages.EmptyReplyFallbackMsg
	case err != nil:
		log.ErrorContext(ctx, "Reply generation failed", "error", err, "chat_id", chatID)
		reply = h.deps.Config.Messages.ErrorGeneralMsg
	default:
		if text := plainText.Text(reply); text != "" {
			reply = text
		}
	}

	h.reply(ctx, s, chatID, msg.ID, reply)
}

// reply sends text in Telegram-sized chunks, the first one quoting the
// user's message.
func (h relayHandler) reply(ctx context.Context, s Sender, chatID int64, replyTo int, text string) {
	log := h.deps.Logger.With("handler", "relay")

	for i, chunk := range SplitMessage(text, MaxMessageLength) {
		if ctx.Err() != nil {
			log.WarnContext(ctx, "Context cancelled before sending reply", "error", ctx.Err(), "chat_id", chatID)
			return
		}

		params := &bot.SendMessageParams{ChatID: chatID, Text: chunk}
		if i == 0 && replyTo > 0 {
			params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo}
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
		sent, err := s.SendMessage(sendCtx, params)
		cancel()
		if err != nil {
			log.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID, "chunk", i)
			return
		}
		log.DebugContext(ctx, "Sent reply", "chat_id", chatID, "message_id", sent.ID, "chunk", i)
	}
}
