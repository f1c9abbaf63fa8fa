// Package bridge connects a run to its observer: best-effort progress
// notifications over a channel, and a small persisted snapshot the observer
// can read back after a crash or restart. The observer may be absent at any
// moment; nothing in this package ever blocks or fails the run on its
// account.
package bridge

import (
	"time"

	"github.com/tunegrab/tunegrab/internal/scan"
)

// MessageType identifies what a bridge message reports.
type MessageType string

const (
	MsgScanStarted      MessageType = "scan_started"
	MsgScanComplete     MessageType = "scan_complete"
	MsgScanError        MessageType = "scan_error"
	MsgDownloadStarted  MessageType = "download_started"
	MsgProgress         MessageType = "progress"
	MsgItemFailed       MessageType = "item_failed"
	MsgDownloadComplete MessageType = "download_complete"
	MsgDownloadCanceled MessageType = "download_canceled"
	MsgDownloadError    MessageType = "download_error"
	MsgPaused           MessageType = "paused"
	MsgResumed          MessageType = "resumed"
)

// Message is one best-effort notification toward the observer.
type Message struct {
	Type    MessageType `json:"type"`
	Current int         `json:"current,omitempty"`
	Total   int         `json:"total,omitempty"`
	Item    scan.Item   `json:"item"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}
