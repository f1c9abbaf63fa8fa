// Package engine joins the two run contexts: scans execute on the actor
// that owns the page view, downloads on the background actor that drives
// the delivery cascade. The two never share memory; commands and results
// cross as messages, and every slice crossing an actor boundary is copied.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tunegrab/tunegrab/internal/bridge"
	"github.com/tunegrab/tunegrab/internal/config"
	"github.com/tunegrab/tunegrab/internal/deliver"
	"github.com/tunegrab/tunegrab/internal/namer"
	"github.com/tunegrab/tunegrab/internal/page"
	"github.com/tunegrab/tunegrab/internal/scan"
	"github.com/tunegrab/tunegrab/internal/session"
)

// ErrNoItems is returned by StartDownload when no scan has produced items.
var ErrNoItems = errors.New("no extracted items to download")

type scanCmd struct {
	sess  *session.Session
	reply chan scanResult
}

type scanResult struct {
	items []scan.Item
	err   error
}

type downloadCmd struct {
	sess  *session.Session
	ctrl  *session.Control
	items []scan.Item
	cfg   config.DownloadsConfig
	reply chan downloadResult
}

type downloadResult struct {
	summary deliver.Summary
	err     error
}

// Engine is the control surface over both actors. Its methods are safe to
// call from any goroutine; the actors themselves are single-threaded.
type Engine struct {
	cfg       *config.Config
	view      page.View
	reg       *session.Registry
	ex        *scan.Extractor
	orch      *deliver.Orchestrator
	notifier  *bridge.Notifier
	store     *bridge.StateStore
	loaderCfg scan.LoaderConfig
	log       *slog.Logger

	scanCh chan scanCmd
	dlCh   chan downloadCmd

	mu    sync.Mutex
	items []scan.Item
	ctrl  *session.Control
}

// New assembles a production engine: registry, notifier, extraction stack,
// and the default delivery cascade over the given view and downloader.
func New(cfg *config.Config, view page.View, client deliver.Downloader, store *bridge.StateStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	reg := session.NewRegistry()
	notifier := bridge.NewNotifier(store, log)
	resolver := namer.NewResolver(cfg.Downloads)
	strategies := deliver.DefaultCascade(view, client, resolver, log)
	return newEngine(cfg, view, reg, notifier, store, strategies, scan.LoaderConfig{}, log)
}

func newEngine(cfg *config.Config, view page.View, reg *session.Registry, notifier *bridge.Notifier,
	store *bridge.StateStore, strategies []deliver.Strategy, loaderCfg scan.LoaderConfig, log *slog.Logger) *Engine {

	ex := scan.NewExtractor(reg, log)
	return &Engine{
		cfg:       cfg,
		view:      view,
		reg:       reg,
		ex:        ex,
		orch:      deliver.NewOrchestrator(strategies, view, reg, notifier, log),
		notifier:  notifier,
		store:     store,
		loaderCfg: loaderCfg,
		log:       log.With("component", "engine"),
		scanCh:    make(chan scanCmd),
		dlCh:      make(chan downloadCmd),
	}
}

// Run drives both actors until ctx is canceled. It blocks; start it once,
// in its own goroutine or as the process main loop.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.pageActor(ctx) })
	g.Go(func() error { return e.downloadActor(ctx) })
	return g.Wait()
}

func (e *Engine) pageActor(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.scanCh:
			cmd.reply <- e.runScan(ctx, cmd.sess)
		}
	}
}

func (e *Engine) downloadActor(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.dlCh:
			cmd.reply <- e.runDownload(ctx, cmd)
		}
	}
}

// StartScan begins a scan session and blocks until it finishes. A scan in
// flight is superseded: its session goes stale and it aborts at its next
// cooperative check.
func (e *Engine) StartScan(ctx context.Context) ([]scan.Item, error) {
	sess := e.reg.Begin(session.KindScan)
	if err := sess.SetStatus(session.StatusScanning); err != nil {
		return nil, err
	}

	cmd := scanCmd{sess: sess, reply: make(chan scanResult, 1)}
	select {
	case e.scanCh <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.items, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) runScan(ctx context.Context, sess *session.Session) scanResult {
	e.notifier.ScanStarted()
	e.log.Info("scan started", "session", sess.ID, "url", e.cfg.Site.ListingURL)

	if e.cfg.Site.ListingURL != "" && e.view.Location() != e.cfg.Site.ListingURL {
		if err := e.view.Navigate(ctx, e.cfg.Site.ListingURL); err != nil {
			return e.scanFailed(sess, fmt.Errorf("open listing: %w", err))
		}
	}

	loader := scan.NewLoader(e.view, e.ex, e.reg, e.loaderCfg, e.log)
	count, err := loader.LoadAll(ctx, sess.ID)
	if err != nil {
		return e.scanFailed(sess, err)
	}
	e.log.Debug("listing settled", "candidates", count)

	if err := sess.SetStatus(session.StatusExtracting); err != nil {
		return scanResult{err: err}
	}
	items, err := e.ex.ExtractAll(ctx, sess.ID, e.view)
	if err != nil {
		return e.scanFailed(sess, err)
	}

	e.mu.Lock()
	e.items = slices.Clone(items)
	e.mu.Unlock()

	_ = sess.SetStatus(session.StatusCompleted)
	e.notifier.ScanComplete(len(items))
	e.log.Info("scan complete", "items", len(items))
	return scanResult{items: slices.Clone(items)}
}

// scanFailed marks the session and reports the error. A canceled session
// ends quietly; it is an expected outcome, not a failure.
func (e *Engine) scanFailed(sess *session.Session, err error) scanResult {
	if errors.Is(err, session.ErrCanceled) {
		_ = sess.SetStatus(session.StatusCanceled)
		e.log.Info("scan canceled", "session", sess.ID)
		return scanResult{err: err}
	}
	_ = sess.SetStatus(session.StatusFailed)
	e.notifier.ScanError(err.Error())
	e.log.Warn("scan failed", "session", sess.ID, "error", err)
	return scanResult{err: err}
}

// StartDownload begins a download session over the last scan's items and
// blocks until the run ends. Pause, Resume, and Cancel act on it from
// other goroutines while it runs.
func (e *Engine) StartDownload(ctx context.Context) (deliver.Summary, error) {
	e.mu.Lock()
	items := slices.Clone(e.items)
	e.mu.Unlock()
	if len(items) == 0 {
		return deliver.Summary{}, ErrNoItems
	}

	sess := e.reg.Begin(session.KindDownload)
	if err := sess.SetStatus(session.StatusDownloading); err != nil {
		return deliver.Summary{}, err
	}
	ctrl := session.NewControl()
	e.mu.Lock()
	e.ctrl = ctrl
	e.mu.Unlock()

	cmd := downloadCmd{sess: sess, ctrl: ctrl, items: items, cfg: e.cfg.Downloads, reply: make(chan downloadResult, 1)}
	select {
	case e.dlCh <- cmd:
	case <-ctx.Done():
		return deliver.Summary{}, ctx.Err()
	}
	select {
	case res := <-cmd.reply:
		return res.summary, res.err
	case <-ctx.Done():
		return deliver.Summary{}, ctx.Err()
	}
}

func (e *Engine) runDownload(ctx context.Context, cmd downloadCmd) downloadResult {
	summary, err := e.orch.Run(ctx, cmd.sess.ID, cmd.ctrl, cmd.items, cmd.cfg)
	switch {
	case err != nil:
		_ = cmd.sess.SetStatus(session.StatusFailed)
	case summary.Canceled:
		_ = cmd.sess.SetStatus(session.StatusCanceled)
	default:
		_ = cmd.sess.SetStatus(session.StatusCompleted)
	}
	return downloadResult{summary: summary, err: err}
}

// Pause requests the running download stop before its next item.
func (e *Engine) Pause() {
	if c := e.control(); c != nil {
		c.Pause()
	}
}

// Resume clears a pending pause.
func (e *Engine) Resume() {
	if c := e.control(); c != nil {
		c.Resume()
	}
}

// Cancel aborts whatever run is active, scan or download.
func (e *Engine) Cancel() {
	if c := e.control(); c != nil {
		c.Cancel()
	}
	e.reg.Cancel(e.reg.Current())
}

// CancelScan aborts the current scan session.
func (e *Engine) CancelScan() {
	e.reg.Cancel(e.reg.Current())
}

// RestorableState reads the last persisted run snapshot. Advisory only:
// it describes where a previous run got to, never what to resume.
func (e *Engine) RestorableState() (bridge.RunState, error) {
	if e.store == nil {
		return bridge.RunState{}, bridge.ErrNoState
	}
	return e.store.Load()
}

// Items returns a copy of the last scan's extracted records.
func (e *Engine) Items() []scan.Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.items)
}

func (e *Engine) control() *session.Control {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl
}
