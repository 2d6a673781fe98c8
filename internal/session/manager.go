// Package session composes prompts from the persona, the ingested artifacts
// and each chat's history, and relays them to the model.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/nightguide/internal/database"
	"github.com/edgard/nightguide/internal/ingest"
	"github.com/edgard/nightguide/internal/metrics"
	"github.com/edgard/nightguide/internal/persona"
)

var (
	// ErrNotReady is returned by Reply before Initialize has succeeded.
	ErrNotReady = errors.New("session is not ready")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("empty message")
	// ErrEmptyReply is returned when the model answers with blank text.
	ErrEmptyReply = errors.New("model returned an empty reply")
)

// Ingester turns local artifacts into ready remote references.
type Ingester interface {
	Ingest(ctx context.Context, artifacts []ingest.Artifact) ([]ingest.ReadyArtifact, error)
}

// Options tune prompt composition.
type Options struct {
	// DatasetDigest is appended to the system instruction when set.
	DatasetDigest string
	// MaxHistory is how many stored turns of a chat go into each prompt.
	MaxHistory int
	// HistoryTokenBudget bounds the estimated size of the instructions plus
	// history plus new message. Zero disables the bound.
	HistoryTokenBudget int
	// Provider names the remote store in persisted artifact records.
	Provider string
	Clock    clockwork.Clock
}

// Manager owns the ready artifact set and answers chat messages.
type Manager struct {
	log     *slog.Logger
	store   database.Store
	gen     Generator
	persona *persona.Persona
	opts    Options

	mu        sync.RWMutex
	ready     bool
	readySet  []ingest.ReadyArtifact
	ingester  Ingester
	artifacts []ingest.Artifact

	chatMu    sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

// NewManager creates a Manager. It is not ready until Initialize succeeds.
func NewManager(log *slog.Logger, store database.Store, gen Generator, p *persona.Persona, opts Options) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if gen == nil {
		return nil, errors.New("session: generator is required")
	}
	if p == nil {
		return nil, errors.New("session: persona is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxHistory < 0 {
		opts.MaxHistory = 0
	}

	return &Manager{
		log:       log.With("component", "session"),
		store:     store,
		gen:       gen,
		persona:   p,
		opts:      opts,
		chatLocks: make(map[int64]*sync.Mutex),
	}, nil
}

// Initialize ingests artifacts through ing and blocks until they are ready.
// With no artifacts the session is ready immediately. The ingester and
// artifacts are kept for Refresh.
func (m *Manager) Initialize(ctx context.Context, ing Ingester, artifacts []ingest.Artifact) error {
	m.mu.Lock()
	m.ingester = ing
	m.artifacts = slices.Clone(artifacts)
	m.mu.Unlock()

	if len(artifacts) == 0 {
		m.log.InfoContext(ctx, "No artifacts configured, session ready")
		m.swap(nil)
		return nil
	}
	if ing == nil {
		return errors.New("session: artifacts configured without an ingester")
	}

	ready, err := m.ingest(ctx, ing, artifacts)
	if err != nil {
		return err
	}
	m.swap(ready)
	m.log.InfoContext(ctx, "Session ready", "artifacts", len(ready))
	return nil
}

// Refresh re-ingests the configured artifacts and swaps in the new set. The
// previous set stays in use when ingestion fails.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.RLock()
	ing, artifacts, ready := m.ingester, m.artifacts, m.ready
	m.mu.RUnlock()

	if !ready {
		return ErrNotReady
	}
	if ing == nil || len(artifacts) == 0 {
		m.log.DebugContext(ctx, "No artifacts to refresh")
		return nil
	}

	fresh, err := m.ingest(ctx, ing, artifacts)
	if err != nil {
		m.log.WarnContext(ctx, "Artifact refresh failed, keeping previous set", "error", err)
		return err
	}
	m.swap(fresh)
	m.log.InfoContext(ctx, "Artifacts refreshed", "artifacts", len(fresh))
	return nil
}

// Ready reports whether the session can answer messages.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Reply answers text from userID in chatID and records both turns.
func (m *Manager) Reply(ctx context.Context, chatID, userID int64, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	m.mu.RLock()
	ready, artifacts := m.ready, m.readySet
	m.mu.RUnlock()
	if !ready {
		metrics.RelayedMessages.WithLabelValues("not_ready").Inc()
		return "", ErrNotReady
	}

	lock := m.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	log := m.log.With("chat_id", chatID, "user_id", userID)
	received := m.opts.Clock.Now()

	history, err := m.store.GetRecentMessages(ctx, chatID, m.opts.MaxHistory)
	if err != nil {
		log.WarnContext(ctx, "Failed to load chat history, replying without it", "error", err)
		history = nil
	}
	if m.opts.HistoryTokenBudget > 0 {
		kept := fitHistory(history, m.opts.HistoryTokenBudget, m.reservedTokens(text))
		if dropped := len(history) - len(kept); dropped > 0 {
			log.DebugContext(ctx, "Trimmed chat history to token budget", "dropped", dropped, "kept", len(kept))
		}
		history = kept
	}
	if paired := completeExchanges(history); len(paired) != len(history) {
		log.DebugContext(ctx, "Dropped unpaired history messages", "dropped", len(history)-len(paired))
		history = paired
	}

	prompt := m.buildPrompt(artifacts, history, text)

	start := m.opts.Clock.Now()
	reply, err := m.gen.Generate(ctx, prompt)
	metrics.RelayDuration.Observe(m.opts.Clock.Since(start).Seconds())
	if err != nil {
		metrics.RelayedMessages.WithLabelValues("error").Inc()
		return "", fmt.Errorf("generate reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		metrics.RelayedMessages.WithLabelValues("empty").Inc()
		return "", ErrEmptyReply
	}
	metrics.RelayedMessages.WithLabelValues("ok").Inc()

	m.record(ctx, log, &database.Message{
		ChatID: chatID, UserID: userID, Role: database.RoleUser, Content: text, Timestamp: received,
	})
	m.record(ctx, log, &database.Message{
		ChatID: chatID, UserID: userID, Role: database.RoleModel, Content: reply, Timestamp: m.opts.Clock.Now(),
	})

	return reply, nil
}

// Reset forgets a chat's history.
func (m *Manager) Reset(ctx context.Context, chatID int64) (int64, error) {
	lock := m.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	deleted, err := m.store.DeleteChatMessages(ctx, chatID)
	if err != nil {
		return 0, fmt.Errorf("reset chat %d: %w", chatID, err)
	}
	return deleted, nil
}

func (m *Manager) ingest(ctx context.Context, ing Ingester, artifacts []ingest.Artifact) ([]ingest.ReadyArtifact, error) {
	start := m.opts.Clock.Now()
	ready, err := ing.Ingest(ctx, artifacts)
	metrics.IngestionDuration.WithLabelValues(outcome(err)).Observe(m.opts.Clock.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("ingest artifacts: %w", err)
	}

	if err := m.store.SaveArtifacts(ctx, m.records(artifacts, ready)); err != nil {
		m.log.WarnContext(ctx, "Failed to persist artifact records", "error", err)
	}
	return ready, nil
}

func (m *Manager) records(artifacts []ingest.Artifact, ready []ingest.ReadyArtifact) []database.Artifact {
	optional := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		label := a.Label
		if label == "" {
			label = filepath.Base(a.Path)
		}
		optional[label] = a.Optional
	}

	out := make([]database.Artifact, 0, len(ready))
	for _, r := range ready {
		out = append(out, database.Artifact{
			RemoteID: r.ID,
			Label:    r.Label,
			Kind:     r.Kind,
			Status:   string(ingest.StatusReady),
			Location: r.Location,
			Optional: optional[r.Label],
			Provider: m.opts.Provider,
		})
	}
	return out
}

func (m *Manager) swap(ready []ingest.ReadyArtifact) {
	m.mu.Lock()
	m.readySet = ready
	m.ready = true
	m.mu.Unlock()
	metrics.ArtifactsReady.Set(float64(len(ready)))
}

func (m *Manager) chatLock(chatID int64) *sync.Mutex {
	m.chatMu.Lock()
	defer m.chatMu.Unlock()
	lock, ok := m.chatLocks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		m.chatLocks[chatID] = lock
	}
	return lock
}

func (m *Manager) record(ctx context.Context, log *slog.Logger, msg *database.Message) {
	if err := m.store.SaveMessage(ctx, msg); err != nil {
		log.ErrorContext(ctx, "Failed to save message", "role", msg.Role, "error", err)
	}
}

// buildPrompt lays out the system instruction, the seed transcript, the
// chat's history and the new message. Artifacts go on the flagged seed
// turns, or on the first user turn when none is flagged.
func (m *Manager) buildPrompt(artifacts []ingest.ReadyArtifact, history []database.Message, text string) Prompt {
	system := m.persona.SystemInstruction
	if m.opts.DatasetDigest != "" {
		system = strings.TrimSpace(system) + "\n\n" + m.opts.DatasetDigest
	}

	turns := make([]Turn, 0, len(m.persona.History)+len(history)+1)
	for _, seed := range m.persona.History {
		turn := Turn{Role: Role(seed.Role), Text: seed.Text}
		if seed.AttachArtifacts {
			turn.Artifacts = artifacts
		}
		turns = append(turns, turn)
	}
	for _, msg := range history {
		turns = append(turns, Turn{Role: Role(msg.Role), Text: msg.Content})
	}
	turns = append(turns, Turn{Role: RoleUser, Text: text})

	if len(artifacts) > 0 && !m.persona.AttachesArtifacts() {
		for i := range turns {
			if turns[i].Role == RoleUser {
				turns[i].Artifacts = artifacts
				break
			}
		}
	}

	return Prompt{System: system, Turns: turns}
}

// reservedTokens estimates the prompt parts that are always sent.
func (m *Manager) reservedTokens(text string) int {
	n := EstimateTokens(m.persona.SystemInstruction) + EstimateTokens(m.opts.DatasetDigest) + EstimateTokens(text)
	for _, seed := range m.persona.History {
		n += EstimateTokens(seed.Text) + turnOverhead
	}
	return n
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ready"
	case errors.Is(err, ingest.ErrTimeout):
		return "timeout"
	case errors.Is(err, ingest.ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
