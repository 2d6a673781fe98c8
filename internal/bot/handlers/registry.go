package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler is a handler plus how it is matched and wrapped.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands returns the command handlers keyed by command. Plain
// messages go to NewRelayHandler, installed as the default handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	command := func(pattern string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) RegisteredHandler {
		return RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     pattern,
			Handler:     h,
			Middleware:  mw,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
		}
	}

	handlers["/start"] = command("start", NewStartHandler(deps))
	handlers["/help"] = command("help", NewHelpHandler(deps))
	handlers["/reset"] = command("reset", NewResetHandler(deps))

	admin := AdminOnly(deps)
	handlers["/artifacts"] = command("artifacts", NewArtifactsHandler(deps), admin)
	handlers["/refresh"] = command("refresh", NewRefreshHandler(deps), admin)

	return handlers
}
