package classifier

import (
	"fmt"

	"github.com/example/kopeknet/internal/labels"
)

// Result is the outcome of one classification. It is handed to the
// presentation layer as a value.
type Result struct {
	Label      labels.Label
	Index      int
	Confidence float32

	// ReferenceTemplate overrides labels.DefaultReferenceTemplate.
	ReferenceTemplate string
}

// DisplayLabel returns the predicted breed with spaces instead of underscores.
func (r *Result) DisplayLabel() string {
	return r.Label.Display()
}

// ConfidencePercent formats the confidence with one decimal, e.g. "87.3%".
func (r *Result) ConfidencePercent() string {
	return fmt.Sprintf("%.1f%%", r.Confidence*100)
}

// ReferenceURL links the raw label to its reference page.
func (r *Result) ReferenceURL() string {
	return r.Label.ReferenceURL(r.ReferenceTemplate)
}
