package session

import (
	"context"

	"github.com/edgard/nightguide/internal/ingest"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one message in a prompt. Artifacts are sent ahead of Text.
type Turn struct {
	Role      Role
	Text      string
	Artifacts []ingest.ReadyArtifact
}

// Prompt is everything the model sees for one reply.
type Prompt struct {
	System string
	Turns  []Turn
}

// Generator produces the model's answer to a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}
