package classifier

import (
	"errors"

	"github.com/example/kopeknet/internal/labels"
)

var (
	// ErrModelUnavailable means the classifier artifact could not be loaded
	// or failed to run.
	ErrModelUnavailable = errors.New("classifier model unavailable")
	// ErrLabelMismatch means the model output cannot be aligned with the
	// label asset.
	ErrLabelMismatch = errors.New("classifier output does not match labels")
	// ErrIndexOutOfRange means the winning class has no label.
	ErrIndexOutOfRange = labels.ErrIndexOutOfRange
)

// Kind names the error class of err for persistence and metrics. It returns
// "" for nil.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrLabelMismatch):
		return "label_mismatch"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	default:
		return "internal"
	}
}
