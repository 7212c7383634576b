// Package classifier runs the breed model on a preprocessed tensor and picks
// the most likely label.
package classifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/kopeknet/internal/labels"
	"github.com/example/kopeknet/internal/logging"
)

// Options tune how model output is matched against the labels.
type Options struct {
	// StrictLabels rejects any output whose length differs from the label
	// count. Without it only a winning index beyond the labels is fatal.
	StrictLabels bool
	// ReferenceTemplate is passed to labels.Label.ReferenceURL.
	ReferenceTemplate string
}

// Classifier is stateless between calls; every Classify acquires and
// releases its own model.
type Classifier struct {
	loader Loader
	labels labels.List
	opts   Options
	logger *zap.Logger
}

// New builds a Classifier over the given loader and label list.
func New(loader Loader, list labels.List, opts Options, logger *zap.Logger) *Classifier {
	return &Classifier{
		loader: loader,
		labels: list,
		opts:   opts,
		logger: logger.Named("classifier"),
	}
}

// Labels returns the label list the classifier ranks against.
func (c *Classifier) Labels() labels.List {
	return c.labels
}

// ArgMax returns the index and value of the largest score. The search starts
// at (0, 0) and only a strictly greater score moves it, so ties keep the
// earlier index and a vector with no positive score reports index 0.
func ArgMax(scores []float32) (int, float32) {
	maxIdx := 0
	var maxVal float32
	for i, v := range scores {
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	return maxIdx, maxVal
}

// Classify runs one forward pass over input and returns the best label.
func (c *Classifier) Classify(ctx context.Context, requestID string, input []float32) (*Result, error) {
	opLogger := logging.WithOperation(c.logger, "classifier.classify", requestID)

	model, err := c.loader.Load(ctx)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.load", requestID, fmt.Errorf("%w: %v", ErrModelUnavailable, err))
		opLogger.Error("failed to load model", zap.Error(err))
		return nil, wrapped
	}
	defer func() {
		if closeErr := model.Close(); closeErr != nil {
			opLogger.Warn("failed to release model", zap.Error(closeErr))
		}
	}()

	scores, err := model.Run(ctx, input)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.run", requestID, fmt.Errorf("%w: %v", ErrModelUnavailable, err))
		opLogger.Error("inference failed", zap.Error(err))
		return nil, wrapped
	}

	return c.rank(requestID, scores)
}

func (c *Classifier) rank(requestID string, scores []float32) (*Result, error) {
	if len(scores) == 0 {
		return nil, logging.NewOperationError("classifier.rank", requestID,
			fmt.Errorf("%w: empty output vector", ErrLabelMismatch))
	}
	if len(scores) != len(c.labels) {
		if c.opts.StrictLabels {
			return nil, logging.NewOperationError("classifier.rank", requestID,
				fmt.Errorf("%w: %d scores, %d labels", ErrLabelMismatch, len(scores), len(c.labels)))
		}
		c.logger.Warn("output length differs from label count",
			zap.String("request_id", requestID),
			zap.Int("scores", len(scores)),
			zap.Int("labels", len(c.labels)))
	}

	idx, _ := ArgMax(scores)
	label, err := c.labels.At(idx)
	if err != nil {
		return nil, logging.NewOperationError("classifier.rank", requestID, err)
	}

	return &Result{
		Label:             label,
		Index:             idx,
		Confidence:        scores[idx],
		ReferenceTemplate: c.opts.ReferenceTemplate,
	}, nil
}
