package deliver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/page"
	"github.com/tunegrab/tunegrab/internal/scan"
	"github.com/tunegrab/tunegrab/internal/session"
)

// Events is the best-effort progress channel toward the control surface.
// Implementations must never block or fail the caller; the observer may
// not exist at all.
type Events interface {
	DownloadStarted(total int)
	Progress(current, total int)
	ItemFailed(item scan.Item, reason string)
	DownloadComplete(succeeded int)
	DownloadCanceled(succeeded int)
	DownloadError(reason string)
	Paused()
	Resumed()
}

// NopEvents discards everything.
type NopEvents struct{}

func (NopEvents) DownloadStarted(int)          {}
func (NopEvents) Progress(int, int)            {}
func (NopEvents) ItemFailed(scan.Item, string) {}
func (NopEvents) DownloadComplete(int)         {}
func (NopEvents) DownloadCanceled(int)         {}
func (NopEvents) DownloadError(string)         {}
func (NopEvents) Paused()                      {}
func (NopEvents) Resumed()                     {}

const (
	// baselineDelay is the pacing floor even when the configured delay is
	// lower. It exists to stay under the host page's bot-mitigation radar,
	// so it is mandatory, not a politeness knob.
	baselineDelay = 1 * time.Second
	// pacingJitter is the upper bound of the uniform jitter added to every
	// inter-item wait.
	pacingJitter = 1500 * time.Millisecond
	// pausePoll is how often a paused loop re-checks its flags.
	pausePoll = 500 * time.Millisecond
	// cancelPoll bounds how long any wait can go without observing a
	// cancellation request.
	cancelPoll = 250 * time.Millisecond
)

// Orchestrator runs the delivery cascade over a list of items.
type Orchestrator struct {
	strategies []Strategy
	view       page.View
	reg        *session.Registry
	events     Events
	log        *slog.Logger

	sleep func(ctx context.Context, d time.Duration)
	randN func(n int64) int64
}

// NewOrchestrator wires the cascade to its collaborators. A nil events
// sink is replaced with NopEvents.
func NewOrchestrator(strategies []Strategy, view page.View, reg *session.Registry, events Events, log *slog.Logger) *Orchestrator {
	if events == nil {
		events = NopEvents{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		strategies: strategies,
		view:       view,
		reg:        reg,
		events:     events,
		log:        log.With("component", "orchestrator"),
		sleep:      sleepFor,
		randN:      rand.Int63n,
	}
}

// Run delivers items in extraction order. Per-item exhaustion is recorded
// and skipped; cancellation and challenge detection abort the run with
// exactly one terminal notification. The summary counters are mutated only
// here, never from notification handlers.
func (o *Orchestrator) Run(ctx context.Context, sid session.ID, ctrl *session.Control,
	items []scan.Item, cfg config.DownloadsConfig) (Summary, error) {

	var summary Summary
	total := len(items)
	o.events.DownloadStarted(total)
	o.log.Info("download run started", "items", total)

	for i, item := range items {
		if o.runCanceled(sid, ctrl) {
			summary.Canceled = true
			o.events.DownloadCanceled(summary.Succeeded)
			o.log.Info("download run canceled", "succeeded", summary.Succeeded)
			return summary, nil
		}

		// Pause is honored only between items, never mid-cascade.
		if canceled := o.waitWhilePaused(ctx, sid, ctrl); canceled {
			summary.Canceled = true
			o.events.DownloadCanceled(summary.Succeeded)
			o.log.Info("download run canceled during pause", "succeeded", summary.Succeeded)
			return summary, nil
		}

		if canceled := o.pace(ctx, sid, ctrl, cfg); canceled {
			summary.Canceled = true
			o.events.DownloadCanceled(summary.Succeeded)
			return summary, nil
		}

		if o.view.ChallengePresent() {
			o.events.DownloadError("challenge detected, retry later")
			return summary, page.ErrChallengeDetected
		}

		outcome, err := o.deliverItem(ctx, &Attempt{Item: item, Index: i})
		switch {
		case err == nil:
			summary.Succeeded++
			o.log.Info("item delivered", "id", item.ID, "stage", outcome.Stage, "kind", outcome.Kind)
		case fatal(err):
			o.events.DownloadError(err.Error())
			o.log.Warn("download run aborted", "id", item.ID, "error", err)
			return summary, err
		default:
			summary.Failed++
			o.events.ItemFailed(item, err.Error())
			o.log.Warn("item skipped", "id", item.ID, "title", item.Title, "error", err)
		}
		o.events.Progress(i+1, total)
	}

	o.events.DownloadComplete(summary.Succeeded)
	o.log.Info("download run complete", "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

// deliverItem walks the cascade, stopping at the first success. Fatal
// errors bubble; anything else sends the item to the next stage.
func (o *Orchestrator) deliverItem(ctx context.Context, a *Attempt) (Outcome, error) {
	var lastErr error
	for _, s := range o.strategies {
		outcome, err := s.Deliver(ctx, a)
		if err == nil {
			return outcome, nil
		}
		if fatal(err) {
			return Outcome{}, err
		}
		o.log.Debug("stage failed", "id", a.Item.ID, "stage", s.Name(), "error", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrNotApplicable
	}
	return Outcome{}, fmt.Errorf("%w: %v", ErrDeliveryExhausted, lastErr)
}

// pace waits the mandatory inter-item delay: the configured floor (or the
// baseline, whichever is higher) plus uniform jitter. The wait is chopped
// into short slices so a cancel request is observed promptly. Returns true
// if the run was canceled during the wait.
func (o *Orchestrator) pace(ctx context.Context, sid session.ID, ctrl *session.Control, cfg config.DownloadsConfig) bool {
	d := time.Duration(cfg.DelaySeconds) * time.Second
	if d < baselineDelay {
		d = baselineDelay
	}
	d += time.Duration(o.randN(int64(pacingJitter)))

	for remaining := d; remaining > 0; remaining -= cancelPoll {
		if o.runCanceled(sid, ctrl) {
			return true
		}
		slice := cancelPoll
		if remaining < slice {
			slice = remaining
		}
		o.sleep(ctx, slice)
	}
	return o.runCanceled(sid, ctrl)
}

// waitWhilePaused blocks between items while the pause flag is set,
// polling for resume or cancel. Returns true if canceled while paused.
func (o *Orchestrator) waitWhilePaused(ctx context.Context, sid session.ID, ctrl *session.Control) bool {
	if !ctrl.Paused() {
		return false
	}
	o.events.Paused()
	o.log.Info("download run paused")
	for ctrl.Paused() {
		if o.runCanceled(sid, ctrl) {
			return true
		}
		o.sleep(ctx, pausePoll)
	}
	if o.runCanceled(sid, ctrl) {
		return true
	}
	o.events.Resumed()
	o.log.Info("download run resumed")
	return false
}

func (o *Orchestrator) runCanceled(sid session.ID, ctrl *session.Control) bool {
	return ctrl.Canceled() || !o.reg.IsCurrent(sid)
}

func sleepFor(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
