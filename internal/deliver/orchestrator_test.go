package deliver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/page"
	"github.com/tunegrab/tunegrab/internal/page/pagetest"
	"github.com/tunegrab/tunegrab/internal/scan"
	"github.com/tunegrab/tunegrab/internal/session"
)

// stubStrategy counts calls and returns scripted results.
type stubStrategy struct {
	name  string
	mu    sync.Mutex
	calls int
	fn    func(a *Attempt) (Outcome, error)
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Deliver(_ context.Context, a *Attempt) (Outcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(a)
	}
	return Outcome{Kind: KindDelivered, Stage: s.name}, nil
}

func (s *stubStrategy) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingEvents captures notifications for assertions.
type recordingEvents struct {
	mu        sync.Mutex
	started   []int
	progress  [][2]int
	failed    []string
	complete  []int
	canceled  []int
	errs      []string
	pauses    int
	resumes   int
}

func (r *recordingEvents) DownloadStarted(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, total)
}
func (r *recordingEvents) Progress(cur, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{cur, total})
}
func (r *recordingEvents) ItemFailed(item scan.Item, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, item.ID)
}
func (r *recordingEvents) DownloadComplete(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complete = append(r.complete, n)
}
func (r *recordingEvents) DownloadCanceled(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, n)
}
func (r *recordingEvents) DownloadError(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, reason)
}
func (r *recordingEvents) Paused() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses++
}
func (r *recordingEvents) Resumed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resumes++
}
func (r *recordingEvents) pauseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauses
}

func testItems(n int) []scan.Item {
	items := make([]scan.Item, n)
	for i := range items {
		items[i] = scan.Item{
			ID:           fmt.Sprintf("%d", 10001+i),
			Title:        fmt.Sprintf("Track %d", i+1),
			CanonicalURL: fmt.Sprintf("https://example.com/tracks/%d", 10001+i),
			ContainerURL: "https://example.com/artist/tracks",
		}
	}
	return items
}

func newTestOrchestrator(strategies []Strategy, events Events, view page.View) (*Orchestrator, *session.Registry, session.ID) {
	reg := session.NewRegistry()
	s := reg.Begin(session.KindDownload)
	if view == nil {
		view = &pagetest.View{Loc: "https://example.com/artist/tracks"}
	}
	o := NewOrchestrator(strategies, view, reg, events, nil)
	o.sleep = func(ctx context.Context, d time.Duration) { time.Sleep(time.Millisecond) }
	o.randN = func(n int64) int64 { return 0 }
	return o, reg, s.ID
}

func TestRun_CascadeShortCircuit(t *testing.T) {
	// Stage 1 succeeds: stages 2-4 must never be invoked for the item.
	s1 := &stubStrategy{name: "one"}
	s2 := &stubStrategy{name: "two"}
	s3 := &stubStrategy{name: "three"}
	s4 := &stubStrategy{name: "four"}

	o, _, sid := newTestOrchestrator([]Strategy{s1, s2, s3, s4}, nil, nil)

	summary, err := o.Run(context.Background(), sid, session.NewControl(), testItems(1), config.DownloadsConfig{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, s1.callCount())
	assert.Zero(t, s2.callCount())
	assert.Zero(t, s3.callCount())
	assert.Zero(t, s4.callCount())
}

func TestRun_FallsThroughRecoverableFailures(t *testing.T) {
	s1 := &stubStrategy{name: "one", fn: func(*Attempt) (Outcome, error) {
		return Outcome{}, ErrNotApplicable
	}}
	s2 := &stubStrategy{name: "two", fn: func(*Attempt) (Outcome, error) {
		return Outcome{}, ErrControlNotFound
	}}
	s3 := &stubStrategy{name: "three"}

	o, _, sid := newTestOrchestrator([]Strategy{s1, s2, s3}, nil, nil)

	summary, err := o.Run(context.Background(), sid, session.NewControl(), testItems(1), config.DownloadsConfig{})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, s3.callCount())
}

func TestRun_ExhaustionTolerance(t *testing.T) {
	// Item 3 of 5 exhausts every stage: the run still processes items 4
	// and 5 and reports succeeded=4, failed=1.
	failing := func(a *Attempt) (Outcome, error) {
		if a.Index == 2 {
			return Outcome{}, ErrControlNotFound
		}
		return Outcome{Kind: KindDelivered}, nil
	}
	s1 := &stubStrategy{name: "one", fn: failing}
	s2 := &stubStrategy{name: "two", fn: failing}
	events := &recordingEvents{}

	o, _, sid := newTestOrchestrator([]Strategy{s1, s2}, events, nil)

	summary, err := o.Run(context.Background(), sid, session.NewControl(), testItems(5), config.DownloadsConfig{})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.Canceled)
	assert.Equal(t, []string{"10003"}, events.failed)
	assert.Equal(t, []int{4}, events.complete)
	assert.Len(t, events.progress, 5)
}

func TestRun_PauseBlocksNextItem(t *testing.T) {
	ctrl := session.NewControl()
	delivered := &stubStrategy{name: "only", fn: func(a *Attempt) (Outcome, error) {
		if a.Index == 1 {
			// Operator hits pause while item 2 is being delivered.
			ctrl.Pause()
		}
		return Outcome{Kind: KindDelivered}, nil
	}}
	events := &recordingEvents{}
	o, _, sid := newTestOrchestrator([]Strategy{delivered}, events, nil)

	done := make(chan Summary, 1)
	go func() {
		summary, _ := o.Run(context.Background(), sid, ctrl, testItems(5), config.DownloadsConfig{})
		done <- summary
	}()

	// The loop must report paused and sit between items 2 and 3.
	require.Eventually(t, func() bool { return events.pauseCount() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, delivered.callCount(), "item 3 must not be attempted while paused")

	ctrl.Resume()
	select {
	case summary := <-done:
		assert.Equal(t, 5, summary.Succeeded)
		assert.False(t, summary.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after resume")
	}
	assert.Equal(t, 1, events.resumes)
}

func TestRun_CancelDuringPause(t *testing.T) {
	ctrl := session.NewControl()
	delivered := &stubStrategy{name: "only", fn: func(a *Attempt) (Outcome, error) {
		if a.Index == 1 {
			ctrl.Pause()
		}
		return Outcome{Kind: KindDelivered}, nil
	}}
	events := &recordingEvents{}
	o, _, sid := newTestOrchestrator([]Strategy{delivered}, events, nil)

	done := make(chan Summary, 1)
	go func() {
		summary, _ := o.Run(context.Background(), sid, ctrl, testItems(5), config.DownloadsConfig{})
		done <- summary
	}()

	require.Eventually(t, func() bool { return events.pauseCount() == 1 }, time.Second, time.Millisecond)
	ctrl.Cancel()

	select {
	case summary := <-done:
		assert.True(t, summary.Canceled)
		assert.Equal(t, 2, summary.Succeeded, "no additional successes after cancel")
		assert.Equal(t, []int{2}, events.canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after cancel")
	}
	assert.Equal(t, 2, delivered.callCount())
}

func TestRun_StaleSessionCancels(t *testing.T) {
	s1 := &stubStrategy{name: "one"}
	events := &recordingEvents{}
	o, reg, sid := newTestOrchestrator([]Strategy{s1}, events, nil)

	// A new session supersedes before the run starts.
	reg.Begin(session.KindDownload)

	summary, err := o.Run(context.Background(), sid, session.NewControl(), testItems(3), config.DownloadsConfig{})
	require.NoError(t, err)

	assert.True(t, summary.Canceled)
	assert.Zero(t, summary.Succeeded)
	assert.Zero(t, s1.callCount())
	assert.Equal(t, []int{0}, events.canceled)
}

func TestRun_ChallengeAborts(t *testing.T) {
	s1 := &stubStrategy{name: "one"}
	events := &recordingEvents{}
	view := &pagetest.View{Loc: "https://example.com/artist/tracks", Challenge: true}
	o, _, sid := newTestOrchestrator([]Strategy{s1}, events, view)

	_, err := o.Run(context.Background(), sid, session.NewControl(), testItems(3), config.DownloadsConfig{})
	require.ErrorIs(t, err, page.ErrChallengeDetected)
	assert.Zero(t, s1.callCount())
	assert.Len(t, events.errs, 1)
}

func TestRun_FatalStrategyErrorAborts(t *testing.T) {
	s1 := &stubStrategy{name: "one", fn: func(*Attempt) (Outcome, error) {
		return Outcome{}, page.ErrChallengeDetected
	}}
	s2 := &stubStrategy{name: "two"}
	events := &recordingEvents{}
	o, _, sid := newTestOrchestrator([]Strategy{s1, s2}, events, nil)

	_, err := o.Run(context.Background(), sid, session.NewControl(), testItems(2), config.DownloadsConfig{})
	require.ErrorIs(t, err, page.ErrChallengeDetected)

	assert.Zero(t, s2.callCount(), "challenge must not fall through to the next stage")
	assert.Len(t, events.errs, 1, "exactly one terminal notification")
}

func TestDeliverItem_ExhaustionWrapsLastError(t *testing.T) {
	s1 := &stubStrategy{name: "one", fn: func(*Attempt) (Outcome, error) {
		return Outcome{}, ErrControlNotFound
	}}
	o, _, _ := newTestOrchestrator([]Strategy{s1}, nil, nil)

	_, err := o.deliverItem(context.Background(), &Attempt{Item: testItems(1)[0]})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeliveryExhausted))
}

func TestPace_RespectsConfiguredFloor(t *testing.T) {
	o, _, sid := newTestOrchestrator(nil, nil, nil)

	var slept time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) { slept += d }

	canceled := o.pace(context.Background(), sid, session.NewControl(), config.DownloadsConfig{DelaySeconds: 3})
	assert.False(t, canceled)
	assert.Equal(t, 3*time.Second, slept, "configured delay above baseline is the floor")
}

func TestPace_BaselineIsMandatory(t *testing.T) {
	o, _, sid := newTestOrchestrator(nil, nil, nil)

	var slept time.Duration
	o.sleep = func(ctx context.Context, d time.Duration) { slept += d }

	o.pace(context.Background(), sid, session.NewControl(), config.DownloadsConfig{DelaySeconds: 0})
	assert.Equal(t, baselineDelay, slept, "zero configured delay still paces at the baseline")
}

func TestPace_CanceledMidWait(t *testing.T) {
	o, _, sid := newTestOrchestrator(nil, nil, nil)
	ctrl := session.NewControl()

	calls := 0
	o.sleep = func(ctx context.Context, d time.Duration) {
		calls++
		if calls == 2 {
			ctrl.Cancel()
		}
	}

	canceled := o.pace(context.Background(), sid, ctrl, config.DownloadsConfig{DelaySeconds: 10})
	assert.True(t, canceled)
	assert.Less(t, calls, 5, "cancel must be observed within a few poll slices")
}
