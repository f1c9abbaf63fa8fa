package bridge

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tunegrab/tunegrab/internal/scan"
	"github.com/tunegrab/tunegrab/internal/session"
)

// Notifier fans run notifications out to subscribers and mirrors progress
// into the state store. Delivery is non-blocking: a slow or absent
// subscriber gets messages dropped, never a stalled run. It satisfies the
// orchestrator's Events interface.
type Notifier struct {
	mu     sync.Mutex
	subs   []chan Message
	state  RunState
	store  *StateStore
	log    *slog.Logger
	closed bool
}

// NewNotifier creates a notifier. The store is optional; pass nil to
// disable persistence.
func NewNotifier(store *StateStore, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{store: store, log: log.With("component", "bridge")}
}

// Subscribe returns a channel receiving every message published after the
// call. The channel is closed by Close.
func (n *Notifier) Subscribe(bufferSize int) <-chan Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan Message, bufferSize)
	n.subs = append(n.subs, ch)
	return ch
}

// Close shuts the notifier down and closes all subscriber channels.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for _, ch := range n.subs {
		close(ch)
	}
	n.subs = nil
}

func (n *Notifier) publish(msg Message) {
	msg.At = time.Now()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	subs := make([]chan Message, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		default:
			n.log.Warn("subscriber channel full, dropping message", "type", msg.Type)
		}
	}
}

// record updates the run snapshot and mirrors it into the store.
// Persistence failures are logged and swallowed; the run must not notice
// them.
func (n *Notifier) record(mutate func(*RunState)) {
	n.mu.Lock()
	mutate(&n.state)
	state := n.state
	n.mu.Unlock()

	if n.store == nil {
		return
	}
	if err := n.store.Save(state); err != nil {
		n.log.Warn("failed to persist run state", "error", err)
	}
}

// ScanStarted reports that a scan session began.
func (n *Notifier) ScanStarted() {
	n.publish(Message{Type: MsgScanStarted})
	n.record(func(s *RunState) {
		*s = RunState{Status: session.StatusScanning}
	})
}

// ScanComplete reports how many items the scan extracted.
func (n *Notifier) ScanComplete(count int) {
	n.publish(Message{Type: MsgScanComplete, Total: count})
	n.record(func(s *RunState) {
		s.Status = session.StatusCompleted
		s.Total = count
	})
}

// ScanError reports a failed scan.
func (n *Notifier) ScanError(reason string) {
	n.publish(Message{Type: MsgScanError, Reason: reason})
	n.record(func(s *RunState) { s.Status = session.StatusFailed })
}

func (n *Notifier) DownloadStarted(total int) {
	n.publish(Message{Type: MsgDownloadStarted, Total: total})
	n.record(func(s *RunState) {
		*s = RunState{Status: session.StatusDownloading, Total: total}
	})
}

func (n *Notifier) Progress(current, total int) {
	n.publish(Message{Type: MsgProgress, Current: current, Total: total})
	n.record(func(s *RunState) {
		s.Current = current
		s.Total = total
	})
}

func (n *Notifier) ItemFailed(item scan.Item, reason string) {
	n.publish(Message{Type: MsgItemFailed, Item: item, Reason: reason})
}

func (n *Notifier) DownloadComplete(succeeded int) {
	n.publish(Message{Type: MsgDownloadComplete, Current: succeeded})
	n.record(func(s *RunState) {
		s.Status = session.StatusCompleted
		s.Succeeded = succeeded
	})
}

func (n *Notifier) DownloadCanceled(succeeded int) {
	n.publish(Message{Type: MsgDownloadCanceled, Current: succeeded})
	n.record(func(s *RunState) {
		s.Status = session.StatusCanceled
		s.Succeeded = succeeded
		s.Paused = false
	})
}

func (n *Notifier) DownloadError(reason string) {
	n.publish(Message{Type: MsgDownloadError, Reason: reason})
	n.record(func(s *RunState) { s.Status = session.StatusFailed })
}

func (n *Notifier) Paused() {
	n.publish(Message{Type: MsgPaused})
	n.record(func(s *RunState) {
		s.Status = session.StatusPaused
		s.Paused = true
	})
}

func (n *Notifier) Resumed() {
	n.publish(Message{Type: MsgResumed})
	n.record(func(s *RunState) {
		s.Status = session.StatusDownloading
		s.Paused = false
	})
}
