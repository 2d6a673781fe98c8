package session

import (
	"unicode/utf8"

	"github.com/edgard/nightguide/internal/database"
)

// turnOverhead approximates the per-turn framing the model adds around text.
const turnOverhead = 15

// EstimateTokens is a rough, model-agnostic token count for text.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text)/3 + 5
}

// fitHistory keeps the most recent messages whose estimated size fits in
// budget minus reserved. A non-positive budget disables trimming. The result
// stays in chronological order.
func fitHistory(history []database.Message, budget, reserved int) []database.Message {
	if budget <= 0 || len(history) == 0 {
		return history
	}
	available := budget - reserved
	if available <= 0 {
		return nil
	}

	used := 0
	first := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content) + turnOverhead
		if used+cost > available {
			break
		}
		used += cost
		first = i
	}
	return history[first:]
}

// completeExchanges keeps only user messages directly answered by a model
// message, so the history starts on a user turn and roles alternate. Orphans
// appear when trimming or cleanup cuts an exchange in half, or when saving a
// reply failed.
func completeExchanges(history []database.Message) []database.Message {
	out := make([]database.Message, 0, len(history))
	for i := 0; i+1 < len(history); i++ {
		if history[i].Role == database.RoleUser && history[i+1].Role == database.RoleModel {
			out = append(out, history[i], history[i+1])
			i++
		}
	}
	return out
}
