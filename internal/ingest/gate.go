package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"

	"github.com/edgard/nightguide/internal/metrics"
)

// BackoffKind selects how the wait between status checks evolves.
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffExponential BackoffKind = "exponential"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultMaxWait      = 10 * time.Minute

	// NoTimeout disables the maximum wait when used as Options.MaxWait.
	NoTimeout time.Duration = -1
)

// Options controls polling behaviour. Zero values select the defaults.
type Options struct {
	PollInterval    time.Duration
	Backoff         BackoffKind
	MaxPollInterval time.Duration // cap for exponential backoff
	Jitter          time.Duration
	MaxWait         time.Duration // bound on a whole AwaitReady call
}

// Option customizes a Gate.
type Option func(*Gate)

// WithClock replaces the clock used for waiting and deadlines.
func WithClock(clock clockwork.Clock) Option {
	return func(g *Gate) { g.clock = clock }
}

// Gate submits artifacts to a RemoteService and waits for all of them to
// become ready. It keeps no state between calls.
type Gate struct {
	remote RemoteService
	log    *slog.Logger
	clock  clockwork.Clock
	opts   Options
}

// NewGate creates a Gate for the given remote service.
func NewGate(remote RemoteService, logger *slog.Logger, opts Options, extra ...Option) (*Gate, error) {
	if remote == nil {
		return nil, errors.New("remote service is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxWait == 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Jitter < 0 {
		return nil, fmt.Errorf("jitter must not be negative, got %s", opts.Jitter)
	}
	if opts.Jitter >= opts.PollInterval {
		return nil, fmt.Errorf("jitter %s must be shorter than poll interval %s", opts.Jitter, opts.PollInterval)
	}
	switch opts.Backoff {
	case "":
		opts.Backoff = BackoffConstant
	case BackoffConstant:
	case BackoffExponential:
		if opts.MaxPollInterval <= 0 {
			opts.MaxPollInterval = 8 * opts.PollInterval
		}
		if opts.MaxPollInterval < opts.PollInterval {
			return nil, fmt.Errorf("max poll interval %s is shorter than poll interval %s", opts.MaxPollInterval, opts.PollInterval)
		}
	default:
		return nil, fmt.Errorf("unknown backoff kind %q", opts.Backoff)
	}

	g := &Gate{
		remote: remote,
		log:    logger.With("component", "ingest_gate"),
		clock:  clockwork.NewRealClock(),
		opts:   opts,
	}
	for _, o := range extra {
		o(g)
	}
	return g, nil
}

// Ingest submits the artifacts and waits until all of them are ready.
func (g *Gate) Ingest(ctx context.Context, artifacts []Artifact) ([]ReadyArtifact, error) {
	records, err := g.SubmitBatch(ctx, artifacts)
	if err != nil {
		return nil, err
	}
	return g.AwaitReady(ctx, records)
}

// SubmitBatch hands every artifact to the remote service in order. The first
// rejected non-optional artifact fails the batch; artifacts submitted before
// it are left to the remote service.
func (g *Gate) SubmitBatch(ctx context.Context, artifacts []Artifact) ([]Record, error) {
	if len(artifacts) == 0 {
		return nil, ErrEmptyBatch
	}

	records := make([]Record, 0, len(artifacts))
	for i, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return nil, cancelled(err)
		}
		if a.Label == "" {
			a.Label = filepath.Base(a.Path)
		}

		rec, err := g.remote.Submit(ctx, a)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, cancelled(ctxErr)
			}
			subErr := &SubmissionError{Index: i, Label: a.Label, Err: err}
			if a.Optional {
				g.log.WarnContext(ctx, "Dropping optional artifact after rejected submission", "label", a.Label, "error", err)
				metrics.ArtifactsDropped.Inc()
				continue
			}
			g.log.ErrorContext(ctx, "Artifact submission rejected", "label", a.Label, "kind", a.Kind, "error", err)
			return nil, subErr
		}

		if rec.Label == "" {
			rec.Label = a.Label
		}
		if rec.Kind == "" {
			rec.Kind = a.Kind
		}
		rec.Optional = a.Optional
		g.log.InfoContext(ctx, "Artifact submitted", "id", rec.ID, "label", rec.Label, "status", rec.Status)
		records = append(records, rec)
	}
	return records, nil
}

// AwaitReady polls every non-terminal record, in submission order, until it
// is ready. The first failed, lost or timed out non-optional record aborts
// the call; records after it are never queried.
func (g *Gate) AwaitReady(ctx context.Context, records []Record) ([]ReadyArtifact, error) {
	start := g.clock.Now()
	var deadline time.Time
	if g.opts.MaxWait > 0 {
		deadline = start.Add(g.opts.MaxWait)
	}

	g.log.InfoContext(ctx, "Waiting for artifact processing", "count", len(records), "max_wait", g.opts.MaxWait)

	ready := make([]ReadyArtifact, 0, len(records))
	for _, rec := range records {
		final, err := g.await(ctx, rec, start, deadline)
		if err != nil {
			if rec.Optional && !errors.Is(err, ErrCancelled) {
				g.log.WarnContext(ctx, "Dropping optional artifact", "id", rec.ID, "label", rec.Label, "error", err)
				metrics.ArtifactsDropped.Inc()
				continue
			}
			return nil, err
		}
		ready = append(ready, ReadyArtifact{
			ID:       final.ID,
			Label:    final.Label,
			Kind:     final.Kind,
			Location: final.Location,
		})
	}

	g.log.InfoContext(ctx, "All artifacts ready", "count", len(ready), "duration", g.clock.Since(start))
	return ready, nil
}

func (g *Gate) await(ctx context.Context, rec Record, start, deadline time.Time) (Record, error) {
	current := rec
	backoff := g.newBackoff()

	for polls := 0; ; polls++ {
		switch current.Status {
		case StatusReady:
			g.log.DebugContext(ctx, "Artifact ready", "id", current.ID, "label", current.Label, "polls", polls)
			return current, nil
		case StatusFailed:
			g.log.ErrorContext(ctx, "Artifact failed to process", "id", current.ID, "label", current.Label, "polls", polls)
			return current, &IngestionFailedError{ID: current.ID, Label: current.Label}
		}

		if polls > 0 {
			if err := g.wait(ctx, backoff, current, start, deadline); err != nil {
				return current, err
			}
		}
		if err := ctx.Err(); err != nil {
			return current, cancelled(err)
		}

		next, err := g.remote.Status(ctx, rec.ID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return current, &NotFoundError{ID: rec.ID, Label: rec.Label, Err: err}
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return current, cancelled(ctxErr)
			}
			return current, fmt.Errorf("query status of artifact %s (%s): %w", rec.ID, rec.Label, err)
		}
		metrics.IngestionPolls.WithLabelValues(string(next.Status)).Inc()

		current.Status = next.Status
		current.Location = next.Location
	}
}

// wait sleeps for the next backoff delay, clipped to the deadline so that a
// last status check happens right at it.
func (g *Gate) wait(ctx context.Context, backoff retry.Backoff, rec Record, start, deadline time.Time) error {
	delay, stop := backoff.Next()
	if stop {
		delay = g.opts.PollInterval
	}

	if !deadline.IsZero() {
		remaining := deadline.Sub(g.clock.Now())
		if remaining <= 0 {
			waited := g.clock.Since(start)
			g.log.ErrorContext(ctx, "Timed out waiting for artifact", "id", rec.ID, "label", rec.Label, "status", rec.Status, "waited", waited)
			return &TimeoutError{ID: rec.ID, Label: rec.Label, Status: rec.Status, Waited: waited}
		}
		if delay > remaining {
			delay = remaining
		}
	}

	g.log.DebugContext(ctx, "Artifact not ready yet", "id", rec.ID, "label", rec.Label, "status", rec.Status, "next_check_in", delay)

	select {
	case <-ctx.Done():
		return cancelled(ctx.Err())
	case <-g.clock.After(delay):
		return nil
	}
}

func (g *Gate) newBackoff() retry.Backoff {
	var b retry.Backoff
	if g.opts.Backoff == BackoffExponential {
		b = retry.WithCappedDuration(g.opts.MaxPollInterval, retry.NewExponential(g.opts.PollInterval))
	} else {
		b = retry.NewConstant(g.opts.PollInterval)
	}
	if g.opts.Jitter > 0 {
		b = retry.WithJitter(g.opts.Jitter, b)
	}
	return b
}
