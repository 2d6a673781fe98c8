package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/nightguide/internal/database"
)

// NewArtifactsHandler returns a handler for the admin /artifacts command,
// which lists the stored ingestion records.
func NewArtifactsHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		artifactsHandler{deps}.handle(ctx, b, update)
	}
}

type artifactsHandler struct {
	deps HandlerDeps
}

func (h artifactsHandler) handle(ctx context.Context, s Sender, update *models.Update) {
	log := h.deps.Logger.With("handler", "artifacts")

	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	artifacts, err := h.deps.Store.ListArtifacts(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list artifacts", "error", err, "chat_id", chatID)
		send(ctx, s, log, chatID, h.deps.Config.Messages.ErrorGeneralMsg)
		return
	}
	if len(artifacts) == 0 {
		send(ctx, s, log, chatID, h.deps.Config.Messages.NoArtifactsMsg)
		return
	}

	for _, chunk := range SplitMessage(formatArtifacts(h.deps.Config.Messages.ArtifactsHeader, artifacts), MaxMessageLength) {
		send(ctx, s, log, chatID, chunk)
	}
}

func formatArtifacts(header string, artifacts []database.Artifact) string {
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteString("\n")
	for i, a := range artifacts {
		fmt.Fprintf(&sb, "\n%d. %s [%s] %s", i+1, a.Label, a.Status, a.RemoteID)
		if a.Kind != "" {
			fmt.Fprintf(&sb, " (%s)", a.Kind)
		}
		if a.Optional {
			sb.WriteString(" optional")
		}
		if a.Provider != "" {
			fmt.Fprintf(&sb, "\n   via %s, updated %s", a.Provider, a.UpdatedAt.UTC().Format(time.RFC3339))
		}
	}
	return sb.String()
}
