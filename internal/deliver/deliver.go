// Package deliver turns extracted item records into locally saved files.
//
// Each item goes through an ordered cascade of delivery strategies; a
// stage runs only when the previous one failed recoverably, and a single
// item exhausting every stage never aborts the run. The orchestrator adds
// mandatory pacing between items, cooperative pause/resume/cancel, and
// progress reporting toward an observer that may not exist.
package deliver

import (
	"context"

	"github.com/tunegrab/tunegrab/internal/scan"
)

//go:generate mockgen -source=deliver.go -destination=mocks/deliver.go -package=mocks

// Downloader is the native download subsystem. Submit returns an opaque
// handle for the accepted download, ErrStructuralPath when the destination
// path is rejected for its structure, or any other error for transport
// failures.
type Downloader interface {
	Submit(ctx context.Context, url, path string) (handle string, err error)
}

// Kind classifies how an item was delivered.
type Kind string

const (
	// KindDelivered means a stage delivered the item through a structured path.
	KindDelivered Kind = "delivered"
	// KindDeliveredFlat means delivery needed the flattened-filename retry.
	KindDeliveredFlat Kind = "delivered_flat"
)

// Outcome records one successful delivery.
type Outcome struct {
	Kind   Kind
	Handle string
	Stage  string
}

// Attempt carries one item through the cascade. Index is the item's
// position in extraction order, used as the last-resort container match.
type Attempt struct {
	Item  scan.Item
	Index int
}

// Strategy is one stage of the delivery cascade.
type Strategy interface {
	// Name identifies the stage in logs and outcomes.
	Name() string
	// Deliver attempts the item. A recoverable error sends the item to
	// the next stage; session.ErrCanceled and page.ErrChallengeDetected
	// abort the whole run.
	Deliver(ctx context.Context, a *Attempt) (Outcome, error)
}

// Summary aggregates one run's outcomes.
type Summary struct {
	Succeeded int
	Failed    int
	Canceled  bool
}
