package deliver

import (
	"errors"

	"github.com/tunegrab/tunegrab/internal/page"
	"github.com/tunegrab/tunegrab/internal/session"
)

// Sentinel errors for the deliver package.
var (
	// ErrStructuralPath is returned by a Downloader when the destination
	// path is rejected for its structure. Triggers exactly one retry with
	// a flattened filename.
	ErrStructuralPath = errors.New("structural path rejected")

	// ErrDeliveryExhausted means every cascade stage failed for an item.
	// The item is skipped and the run continues.
	ErrDeliveryExhausted = errors.New("no delivery method succeeded")

	// ErrNotApplicable is returned by a stage that cannot even be
	// attempted for an item (wrong URL shape, missing container). Always
	// recoverable.
	ErrNotApplicable = errors.New("stage not applicable")

	// ErrControlNotFound means no acquire control could be located in the
	// page region a stage searched.
	ErrControlNotFound = errors.New("acquire control not found")

	// ErrNoAssetURL means no embedded asset URL could be pattern-matched
	// out of the fetched markup.
	ErrNoAssetURL = errors.New("no embedded asset url found")

	// ErrViewMismatch means the active view was not where the stage
	// expected it; the attempt aborts rather than proceeding blindly.
	ErrViewMismatch = errors.New("active view location mismatch")
)

// fatal reports whether err must abort the whole run instead of falling
// through to the next cascade stage.
func fatal(err error) bool {
	return errors.Is(err, session.ErrCanceled) || errors.Is(err, page.ErrChallengeDetected)
}
