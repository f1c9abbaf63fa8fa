package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunegrab/tunegrab/internal/scan"
	"github.com/tunegrab/tunegrab/internal/session"
)

func drain(ch <-chan Message) []Message {
	var out []Message
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestNotifier_SubscriberReceivesInOrder(t *testing.T) {
	n := NewNotifier(nil, nil)
	ch := n.Subscribe(16)

	n.DownloadStarted(3)
	n.Progress(1, 3)
	n.ItemFailed(scan.Item{ID: "7"}, "exhausted")
	n.DownloadComplete(2)

	msgs := drain(ch)
	require.Len(t, msgs, 4)
	assert.Equal(t, MsgDownloadStarted, msgs[0].Type)
	assert.Equal(t, 3, msgs[0].Total)
	assert.Equal(t, MsgProgress, msgs[1].Type)
	assert.Equal(t, 1, msgs[1].Current)
	assert.Equal(t, MsgItemFailed, msgs[2].Type)
	assert.Equal(t, "7", msgs[2].Item.ID)
	assert.Equal(t, "exhausted", msgs[2].Reason)
	assert.Equal(t, MsgDownloadComplete, msgs[3].Type)
	assert.False(t, msgs[3].At.IsZero())
}

func TestNotifier_FullSubscriberNeverBlocks(t *testing.T) {
	n := NewNotifier(nil, nil)
	ch := n.Subscribe(1)

	// With a one-slot buffer and no reader, publishing must drop, not hang.
	n.DownloadStarted(5)
	n.Progress(1, 5)
	n.Progress(2, 5)

	msgs := drain(ch)
	require.Len(t, msgs, 1)
	assert.Equal(t, MsgDownloadStarted, msgs[0].Type)
}

func TestNotifier_NoSubscribers(t *testing.T) {
	n := NewNotifier(nil, nil)

	// Nothing listening is the normal case; must be a no-op.
	n.ScanStarted()
	n.Progress(1, 2)
	n.DownloadError("boom")
}

func TestNotifier_CloseEndsSubscription(t *testing.T) {
	n := NewNotifier(nil, nil)
	ch := n.Subscribe(4)

	n.ScanStarted()
	n.Close()
	n.ScanComplete(9) // after close, silently discarded

	msgs := drain(ch)
	require.Len(t, msgs, 1)
	assert.Equal(t, MsgScanStarted, msgs[0].Type)

	_, open := <-ch
	assert.False(t, open, "channel must be closed")
}

func TestNotifier_MirrorsStateIntoStore(t *testing.T) {
	store := openTestStore(t)
	n := NewNotifier(store, nil)

	n.DownloadStarted(4)
	n.Progress(1, 4)
	n.Progress(2, 4)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, session.StatusDownloading, state.Status)
	assert.Equal(t, 2, state.Current)
	assert.Equal(t, 4, state.Total)

	n.Paused()
	state, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, session.StatusPaused, state.Status)
	assert.True(t, state.Paused)

	n.Resumed()
	n.Progress(3, 4)
	n.DownloadComplete(3)

	state, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, state.Status)
	assert.Equal(t, 3, state.Succeeded)
	assert.Equal(t, 4, state.Total, "total survives terminal transition")
	assert.False(t, state.Paused)
}

func TestNotifier_CanceledSnapshot(t *testing.T) {
	store := openTestStore(t)
	n := NewNotifier(store, nil)

	n.DownloadStarted(10)
	n.Progress(5, 10)
	n.DownloadCanceled(4)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, session.StatusCanceled, state.Status)
	assert.Equal(t, 4, state.Succeeded)
	assert.Equal(t, 5, state.Current)
}
