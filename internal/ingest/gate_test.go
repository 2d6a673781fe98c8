package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/edgard/nightguide/internal/ingest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type step struct {
	status ingest.Status
	err    error
}

// fakeRemote plays back a scripted sequence of statuses per artifact label.
// Once a script is exhausted its last step repeats.
type fakeRemote struct {
	mu        sync.Mutex
	initial   map[string]ingest.Status
	rejects   map[string]error
	scripts   map[string][]step
	calls     map[string]int
	submitted []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		initial: make(map[string]ingest.Status),
		rejects: make(map[string]error),
		scripts: make(map[string][]step),
		calls:   make(map[string]int),
	}
}

func (f *fakeRemote) script(label string, statuses ...ingest.Status) *fakeRemote {
	for _, s := range statuses {
		f.scripts[label] = append(f.scripts[label], step{status: s})
	}
	return f
}

func (f *fakeRemote) Submit(_ context.Context, a ingest.Artifact) (ingest.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.rejects[a.Label]; ok {
		return ingest.Record{}, fmt.Errorf("%w: %w", ingest.ErrSubmissionRejected, err)
	}
	f.submitted = append(f.submitted, a.Label)

	status, ok := f.initial[a.Label]
	if !ok {
		status = ingest.StatusSubmitted
	}
	rec := ingest.Record{ID: "files/" + a.Label, Label: a.Label, Kind: a.Kind, Status: status}
	if status == ingest.StatusReady {
		rec.Location = "https://files.test/" + a.Label
	}
	return rec, nil
}

func (f *fakeRemote) Status(_ context.Context, id string) (ingest.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	label := id[len("files/"):]
	n := f.calls[label]
	f.calls[label] = n + 1

	script := f.scripts[label]
	if len(script) == 0 {
		return ingest.Record{}, fmt.Errorf("unexpected status query for %s", id)
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	st := script[n]
	if st.err != nil {
		return ingest.Record{}, st.err
	}

	rec := ingest.Record{ID: id, Status: st.status}
	if st.status == ingest.StatusReady {
		rec.Location = "https://files.test/" + label
	}
	return rec, nil
}

func (f *fakeRemote) callsFor(label string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[label]
}

func artifacts(labels ...string) []ingest.Artifact {
	out := make([]ingest.Artifact, 0, len(labels))
	for _, l := range labels {
		out = append(out, ingest.Artifact{Path: "/data/" + l, Kind: "text/plain", Label: l})
	}
	return out
}

func fastGate(t *testing.T, remote ingest.RemoteService) *ingest.Gate {
	t.Helper()
	g, err := ingest.NewGate(remote, nil, ingest.Options{PollInterval: time.Millisecond})
	require.NoError(t, err)
	return g
}

func TestIngestReturnsReadyArtifactsInOrder(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote().
		script("one", ingest.StatusProcessing, ingest.StatusReady).
		script("two", ingest.StatusReady).
		script("three", ingest.StatusSubmitted, ingest.StatusProcessing, ingest.StatusReady)

	ready, err := fastGate(t, remote).Ingest(context.Background(), artifacts("one", "two", "three"))
	require.NoError(t, err)
	require.Len(t, ready, 3)

	for i, label := range []string{"one", "two", "three"} {
		assert.Equal(t, "files/"+label, ready[i].ID)
		assert.Equal(t, label, ready[i].Label)
		assert.Equal(t, "text/plain", ready[i].Kind)
		assert.Equal(t, "https://files.test/"+label, ready[i].Location)
	}
}

func TestAwaitReadyQueriesUntilTerminal(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote().script("doc", ingest.StatusProcessing, ingest.StatusProcessing, ingest.StatusReady)
	g := fastGate(t, remote)

	records, err := g.SubmitBatch(context.Background(), artifacts("doc"))
	require.NoError(t, err)

	ready, err := g.AwaitReady(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, 3, remote.callsFor("doc"))
}

func TestAwaitReadyAcceptsAlreadyReadyRecords(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.initial["doc"] = ingest.StatusReady

	ready, err := fastGate(t, remote).Ingest(context.Background(), artifacts("doc"))
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "https://files.test/doc", ready[0].Location)
	assert.Zero(t, remote.callsFor("doc"))
}

func TestAwaitReadyStopsAtFirstFailure(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote().
		script("first", ingest.StatusProcessing, ingest.StatusReady).
		script("second", ingest.StatusFailed).
		script("third", ingest.StatusReady)

	ready, err := fastGate(t, remote).Ingest(context.Background(), artifacts("first", "second", "third"))
	require.Error(t, err)
	assert.Nil(t, ready)
	assert.ErrorIs(t, err, ingest.ErrIngestionFailed)

	var failed *ingest.IngestionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "files/second", failed.ID)
	assert.Equal(t, "second", failed.Label)

	assert.Equal(t, 2, remote.callsFor("first"))
	assert.Equal(t, 1, remote.callsFor("second"))
	assert.Zero(t, remote.callsFor("third"))
}

func TestIngestTwoArtifactScenarios(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		a        []ingest.Status
		b        []ingest.Status
		wantErr  error
		failedID string
	}{
		{
			name: "both ready",
			a:    []ingest.Status{ingest.StatusProcessing, ingest.StatusReady},
			b:    []ingest.Status{ingest.StatusProcessing, ingest.StatusProcessing, ingest.StatusReady},
		},
		{
			name:     "b fails after a is ready",
			a:        []ingest.Status{ingest.StatusReady},
			b:        []ingest.Status{ingest.StatusProcessing, ingest.StatusFailed},
			wantErr:  ingest.ErrIngestionFailed,
			failedID: "files/b",
		},
		{
			name:     "a fails and b is never queried",
			a:        []ingest.Status{ingest.StatusProcessing, ingest.StatusFailed},
			b:        []ingest.Status{ingest.StatusReady},
			wantErr:  ingest.ErrIngestionFailed,
			failedID: "files/a",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			remote := newFakeRemote().script("a", tc.a...).script("b", tc.b...)
			ready, err := fastGate(t, remote).Ingest(context.Background(), artifacts("a", "b"))

			if tc.wantErr == nil {
				require.NoError(t, err)
				require.Len(t, ready, 2)
				assert.Equal(t, "a", ready[0].Label)
				assert.Equal(t, "b", ready[1].Label)
				return
			}

			require.ErrorIs(t, err, tc.wantErr)
			var failed *ingest.IngestionFailedError
			require.ErrorAs(t, err, &failed)
			assert.Equal(t, tc.failedID, failed.ID)
			if tc.failedID == "files/a" {
				assert.Zero(t, remote.callsFor("b"))
			}
		})
	}
}

func TestSubmitBatch(t *testing.T) {
	t.Parallel()

	t.Run("empty batch", func(t *testing.T) {
		t.Parallel()

		remote := newFakeRemote()
		_, err := fastGate(t, remote).SubmitBatch(context.Background(), nil)
		assert.ErrorIs(t, err, ingest.ErrEmptyBatch)
	})

	t.Run("rejection stops the batch", func(t *testing.T) {
		t.Parallel()

		remote := newFakeRemote()
		remote.rejects["bad"] = errors.New("unsupported kind")

		_, err := fastGate(t, remote).SubmitBatch(context.Background(), artifacts("good", "bad", "never"))
		require.ErrorIs(t, err, ingest.ErrSubmissionRejected)

		var subErr *ingest.SubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, 1, subErr.Index)
		assert.Equal(t, "bad", subErr.Label)
		assert.Equal(t, []string{"good"}, remote.submitted)
	})

	t.Run("label defaults to file name", func(t *testing.T) {
		t.Parallel()

		remote := newFakeRemote()
		records, err := fastGate(t, remote).SubmitBatch(context.Background(), []ingest.Artifact{{Path: "/srv/docs/guide.pdf", Kind: "application/pdf"}})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "guide.pdf", records[0].Label)
		assert.Equal(t, ingest.StatusSubmitted, records[0].Status)
	})

	t.Run("cancelled before submitting", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		remote := newFakeRemote()
		_, err := fastGate(t, remote).SubmitBatch(ctx, artifacts("doc"))
		assert.ErrorIs(t, err, ingest.ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, remote.submitted)
	})
}

func TestAwaitReadyNotFound(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.scripts["gone"] = []step{{err: fmt.Errorf("lookup: %w", ingest.ErrRecordNotFound)}}

	_, err := fastGate(t, remote).Ingest(context.Background(), artifacts("gone"))
	require.ErrorIs(t, err, ingest.ErrRecordNotFound)

	var nf *ingest.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "files/gone", nf.ID)
	assert.Equal(t, 1, remote.callsFor("gone"))
}

func TestAwaitReadyTransportErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote()
	remote.scripts["doc"] = []step{{err: errors.New("connection reset")}}

	_, err := fastGate(t, remote).Ingest(context.Background(), artifacts("doc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 1, remote.callsFor("doc"))
}

func TestOptionalArtifactsAreDropped(t *testing.T) {
	t.Parallel()

	remote := newFakeRemote().
		script("core", ingest.StatusReady).
		script("extra", ingest.StatusProcessing, ingest.StatusFailed).
		script("tail", ingest.StatusReady)
	remote.rejects["broken"] = errors.New("too large")

	batch := artifacts("core", "extra", "broken", "tail")
	batch[1].Optional = true
	batch[2].Optional = true

	ready, err := fastGate(t, remote).Ingest(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, "core", ready[0].Label)
	assert.Equal(t, "tail", ready[1].Label)
}

func TestAwaitReadyTimesOutWithFinalCheckAtDeadline(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	remote := newFakeRemote().script("slow", ingest.StatusProcessing)

	g, err := ingest.NewGate(remote, nil, ingest.Options{
		PollInterval: 10 * time.Second,
		MaxWait:      30 * time.Second,
	}, ingest.WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := g.SubmitBatch(ctx, artifacts("slow"))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := g.AwaitReady(ctx, records)
		errCh <- err
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(10 * time.Second)
	}

	err = <-errCh
	require.ErrorIs(t, err, ingest.ErrTimeout)

	var te *ingest.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "files/slow", te.ID)
	assert.Equal(t, ingest.StatusProcessing, te.Status)
	assert.Equal(t, 30*time.Second, te.Waited)
	// initial check, two interval checks and the one at the deadline
	assert.Equal(t, 4, remote.callsFor("slow"))
}

func TestAwaitReadyWaitsConstantInterval(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	remote := newFakeRemote().script("doc", ingest.StatusProcessing, ingest.StatusProcessing, ingest.StatusReady)

	g, err := ingest.NewGate(remote, nil, ingest.Options{PollInterval: 10 * time.Second}, ingest.WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := g.SubmitBatch(ctx, artifacts("doc"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := g.AwaitReady(ctx, records)
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, remote.callsFor("doc"))

	clock.Advance(9 * time.Second)
	assert.Equal(t, 1, remote.callsFor("doc"))

	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, remote.callsFor("doc"))

	clock.Advance(10 * time.Second)
	require.NoError(t, <-done)
	assert.Equal(t, 3, remote.callsFor("doc"))
}

func TestAwaitReadyExponentialBackoff(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	remote := newFakeRemote().script("doc",
		ingest.StatusProcessing, ingest.StatusProcessing, ingest.StatusProcessing, ingest.StatusReady)

	g, err := ingest.NewGate(remote, nil, ingest.Options{
		PollInterval:    time.Second,
		Backoff:         ingest.BackoffExponential,
		MaxPollInterval: 4 * time.Second,
	}, ingest.WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := g.SubmitBatch(ctx, artifacts("doc"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := g.AwaitReady(ctx, records)
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, remote.callsFor("doc"))
	clock.Advance(time.Second)
	assert.Equal(t, 2, remote.callsFor("doc"), "second wait doubles to 2s")
	clock.Advance(time.Second)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 3, remote.callsFor("doc"))
	clock.Advance(4 * time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, 4, remote.callsFor("doc"))
}

func TestAwaitReadyCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	remote := newFakeRemote().script("doc", ingest.StatusProcessing)

	g, err := ingest.NewGate(remote, nil, ingest.Options{PollInterval: time.Minute}, ingest.WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	records, err := g.SubmitBatch(ctx, artifacts("doc"))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := g.AwaitReady(ctx, records)
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err = <-done
	assert.ErrorIs(t, err, ingest.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, remote.callsFor("doc"))
}

func TestNewGateValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		remote  ingest.RemoteService
		opts    ingest.Options
		wantErr bool
	}{
		{name: "defaults", remote: newFakeRemote()},
		{name: "no timeout", remote: newFakeRemote(), opts: ingest.Options{MaxWait: ingest.NoTimeout}},
		{name: "nil remote", wantErr: true},
		{name: "unknown backoff", remote: newFakeRemote(), opts: ingest.Options{Backoff: "fibonacci"}, wantErr: true},
		{name: "negative jitter", remote: newFakeRemote(), opts: ingest.Options{Jitter: -time.Second}, wantErr: true},
		{name: "jitter below interval", remote: newFakeRemote(), opts: ingest.Options{PollInterval: time.Second, Jitter: 500 * time.Millisecond}},
		{name: "jitter equals interval", remote: newFakeRemote(), opts: ingest.Options{PollInterval: time.Second, Jitter: time.Second}, wantErr: true},
		{name: "jitter above default interval", remote: newFakeRemote(), opts: ingest.Options{Jitter: time.Minute}, wantErr: true},
		{
			name:    "cap below interval",
			remote:  newFakeRemote(),
			opts:    ingest.Options{PollInterval: time.Minute, Backoff: ingest.BackoffExponential, MaxPollInterval: time.Second},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g, err := ingest.NewGate(tc.remote, nil, tc.opts)
			if tc.wantErr {
				assert.Error(t, err)
				assert.Nil(t, g)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, ingest.StatusSubmitted.Terminal())
	assert.False(t, ingest.StatusProcessing.Terminal())
	assert.True(t, ingest.StatusReady.Terminal())
	assert.True(t, ingest.StatusFailed.Terminal())
}
