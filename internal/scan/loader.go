package scan

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/tunegrab/tunegrab/internal/page"
	"github.com/tunegrab/tunegrab/internal/session"
)

// LoaderConfig tunes the incremental loading loop.
type LoaderConfig struct {
	// StabilityThreshold is how many consecutive unchanged count reads
	// mean the listing has converged.
	StabilityThreshold int
	// MaxIterations caps the measure/trigger loop.
	MaxIterations int
	// Budget is the wall-clock limit for the whole loop. Exhausting it is
	// convergence, not failure.
	Budget time.Duration
	// BaseDelay is the minimum wait between a trigger and the next
	// measurement. Jitter is added on top so the polling never looks like
	// a fixed-interval automation.
	BaseDelay time.Duration
	Jitter    time.Duration
}

// DefaultLoaderConfig returns the tuning used against the real site.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		StabilityThreshold: 2,
		MaxIterations:      40,
		Budget:             25 * time.Second,
		BaseDelay:          800 * time.Millisecond,
		Jitter:             700 * time.Millisecond,
	}
}

// Loader drives the page's lazy rendering until the visible item count
// stops changing, then restores the original scroll position.
type Loader struct {
	view  page.View
	count func() int
	reg   *session.Registry
	cfg   LoaderConfig
	log   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	randN func(n int64) int64
}

// NewLoader creates a loader measuring candidate counts via ex.
func NewLoader(view page.View, ex *Extractor, reg *session.Registry, cfg LoaderConfig, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StabilityThreshold <= 0 {
		cfg.StabilityThreshold = 2
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 40
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 25 * time.Second
	}
	return &Loader{
		view:  view,
		count: func() int { return ex.CountCandidates(view) },
		reg:   reg,
		cfg:   cfg,
		log:   log.With("component", "loader"),
		sleep: sleepCtx,
		now:   time.Now,
		randN: rand.Int63n,
	}
}

// LoadAll loops measure → compare → trigger until the count is stable, the
// iteration cap is hit, or the budget runs out. Measurements are strictly
// sequential: no measurement overlaps a trigger. Returns the final count.
func (l *Loader) LoadAll(ctx context.Context, sid session.ID) (int, error) {
	start := l.now()
	origin := l.view.ScrollOffset()
	last := -1
	stable := 0

	// The view is restored only on normal stops. A canceled session is
	// stale and must not touch the view the superseding session now owns.
	for iter := 0; iter < l.cfg.MaxIterations; iter++ {
		if err := l.reg.Check(sid); err != nil {
			return 0, err
		}
		if l.view.ChallengePresent() {
			return 0, page.ErrChallengeDetected
		}

		count := l.count()
		if count == last {
			stable++
		} else {
			stable = 0
			last = count
		}
		if stable >= l.cfg.StabilityThreshold {
			l.log.Debug("loading converged", "count", count, "iterations", iter+1)
			l.view.RestoreScroll(origin)
			return count, nil
		}
		if l.now().Sub(start) >= l.cfg.Budget {
			// Budget exhaustion means "converged as far as it will".
			l.log.Debug("loading budget exhausted", "count", count)
			l.view.RestoreScroll(origin)
			return count, nil
		}

		if err := l.view.LoadMore(ctx); err != nil {
			return 0, err
		}
		if err := l.sleep(ctx, l.interval()); err != nil {
			return 0, err
		}
		if err := l.reg.Check(sid); err != nil {
			return 0, err
		}
	}
	l.view.RestoreScroll(origin)
	return last, nil
}

// interval returns the base delay plus uniform jitter, deliberately
// irregular so repeated polls do not form a fixed cadence.
func (l *Loader) interval() time.Duration {
	d := l.cfg.BaseDelay
	if l.cfg.Jitter > 0 {
		d += time.Duration(l.randN(int64(l.cfg.Jitter)))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return session.ErrCanceled
	case <-t.C:
		return nil
	}
}
