// Package persona loads the system instruction and seed conversation that
// shape every reply.
package persona

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

//go:embed default.yaml
var defaultPersona []byte

// Turn is one message of the seed conversation.
type Turn struct {
	Role string `yaml:"role" validate:"required,oneof=user model"`
	Text string `yaml:"text" validate:"required"`

	// AttachArtifacts places the ingested documents on this turn.
	AttachArtifacts bool `yaml:"attach_artifacts"`
}

// Persona is a system instruction plus a few-shot history.
type Persona struct {
	SystemInstruction string `yaml:"system_instruction" validate:"required"`
	History           []Turn `yaml:"history"            validate:"dive"`
}

// Load reads a persona from path, or returns the built-in persona when path
// is empty.
func Load(path string) (*Persona, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("persona file %s: %w", path, err)
	}
	return p, nil
}

// Default returns the built-in tour guide persona.
func Default() (*Persona, error) {
	return Parse(defaultPersona)
}

// Parse decodes and validates a persona document.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode persona: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks required fields and that the history starts with the user
// and alternates between user and model.
func (p *Persona) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return fmt.Errorf("invalid persona: %w", err)
	}
	for i, turn := range p.History {
		want := RoleUser
		if i%2 == 1 {
			want = RoleModel
		}
		if turn.Role != want {
			return fmt.Errorf("invalid persona: history turn %d has role %q, expected %q", i, turn.Role, want)
		}
	}
	if n := len(p.History); n > 0 && p.History[n-1].Role != RoleModel {
		return errors.New("invalid persona: history must end with a model turn")
	}
	return nil
}

// AttachesArtifacts reports whether any turn carries the ingested documents.
func (p *Persona) AttachesArtifacts() bool {
	for _, turn := range p.History {
		if turn.AttachArtifacts {
			return true
		}
	}
	return false
}
