package usecase

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/kopeknet/internal/classifier"
	"github.com/example/kopeknet/internal/labels"
	"github.com/example/kopeknet/internal/logging"
	"github.com/example/kopeknet/internal/preprocess"
	"github.com/example/kopeknet/internal/repository"
	"github.com/example/kopeknet/internal/retry"
)

const (
	processingMarker = "processing"
	processingTTL    = time.Minute
	resultTTL        = 5 * time.Minute
)

var (
	// ErrInvalidImage means the upload could not be decoded or has no pixels.
	ErrInvalidImage = errors.New("invalid image")
	// ErrCacheMiss is returned by Cache.Get for unknown keys.
	ErrCacheMiss = errors.New("cache miss")
	// ErrStillProcessing means the request id is known but not finished.
	ErrStillProcessing = errors.New("classification still processing")
	// ErrNotFound means no result exists for the request and user.
	ErrNotFound = repository.ErrNotFound
)

// ClassificationRepository defines the persistence operations needed by the use case.
type ClassificationRepository interface {
	SaveLog(ctx context.Context, log *repository.ClassificationLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.ClassificationLog, error)
	FindLatestByHash(ctx context.Context, userID, hash string) (*repository.ClassificationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ImageClassifier ranks a preprocessed tensor.
type ImageClassifier interface {
	Classify(ctx context.Context, requestID string, input []float32) (*classifier.Result, error)
}

// Outcome is the result of one classification request as shown to clients.
type Outcome struct {
	RequestID         string    `json:"request_id"`
	UserID            string    `json:"user_id"`
	Success           bool      `json:"success"`
	ErrorKind         string    `json:"error_kind,omitempty"`
	Label             string    `json:"label,omitempty"`
	DisplayLabel      string    `json:"display_label,omitempty"`
	ClassIndex        int       `json:"class_index"`
	Confidence        float32   `json:"confidence"`
	ConfidencePercent string    `json:"confidence_percent,omitempty"`
	ReferenceURL      string    `json:"reference_url,omitempty"`
	ReusedFrom        string    `json:"reused_from,omitempty"`
	SHA1Hash          string    `json:"sha1_hash"`
	CreatedAt         time.Time `json:"created_at"`
}

// ClassificationUseCase orchestrates preprocessing, inference, persistence
// and caching for uploaded images.
type ClassificationUseCase struct {
	repo              ClassificationRepository
	cache             Cache
	classifier        ImageClassifier
	logger            *zap.Logger
	policy            retry.Policy
	referenceTemplate string
	now               func() time.Time
}

// NewClassificationUseCase constructs a new use case instance.
func NewClassificationUseCase(repo ClassificationRepository, cache Cache, c ImageClassifier, referenceTemplate string, logger *zap.Logger) *ClassificationUseCase {
	return &ClassificationUseCase{
		repo:              repo,
		cache:             cache,
		classifier:        c,
		logger:            logger.Named("classification_usecase"),
		policy:            retry.DefaultPolicy,
		referenceTemplate: referenceTemplate,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// ClassifyImage decodes imageBytes, predicts the breed and records the
// outcome. Inference is never retried; the same input gives the same answer.
func (uc *ClassificationUseCase) ClassifyImage(ctx context.Context, userID string, imageBytes []byte) (*Outcome, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.classify_image", requestID)

	img, format, err := preprocess.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, logging.NewOperationError("usecase.decode_image", requestID, fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}
	tensor, err := preprocess.Preprocess(img)
	if err != nil {
		return nil, logging.NewOperationError("usecase.preprocess_image", requestID, fmt.Errorf("%w: %v", ErrInvalidImage, err))
	}
	opLogger.Debug("image preprocessed",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	if err := retry.Do(ctx, uc.policy, uc.logger, "cache.set.processing", requestID, func() error {
		return uc.cache.Set(ctx, resultKey(requestID), processingMarker, processingTTL)
	}); err != nil {
		opLogger.Error("failed to set processing flag", zap.Error(err))
		return nil, err
	}

	hash := sha1.Sum(imageBytes)
	hashHex := hex.EncodeToString(hash[:])
	log := &repository.ClassificationLog{
		RequestID: requestID,
		UserID:    userID,
		SHA1Hash:  hashHex,
		CreatedAt: uc.now(),
	}

	if prior, err := uc.repo.FindLatestByHash(ctx, userID, hashHex); err == nil {
		log.Label = prior.Label
		log.ClassIndex = prior.ClassIndex
		log.Confidence = prior.Confidence
		log.Success = true
		log.Details = fmt.Sprintf("reused:%s", prior.RequestID)
		opLogger.Info("reusing prior classification", zap.String("prior_request_id", prior.RequestID))
		outcome := uc.outcomeFromLog(log)
		outcome.ReusedFrom = prior.RequestID
		return uc.finish(ctx, opLogger, log, outcome)
	} else if !errors.Is(err, ErrNotFound) {
		opLogger.Warn("duplicate lookup failed", zap.Error(err))
	}

	result, classifyErr := uc.classifier.Classify(ctx, requestID, tensor)
	if classifyErr != nil {
		log.ErrorKind = classifier.Kind(classifyErr)
		log.Details = classifyErr.Error()
		opLogger.Error("classification failed", zap.Error(classifyErr), zap.String("error_kind", log.ErrorKind))
		if _, err := uc.finish(ctx, opLogger, log, uc.outcomeFromLog(log)); err != nil {
			opLogger.Warn("failed to record classification failure", zap.Error(err))
		}
		return nil, classifyErr
	}

	log.Label = result.Label.Raw()
	log.ClassIndex = result.Index
	log.Confidence = result.Confidence
	log.Success = true
	log.Details = fmt.Sprintf("label:%s confidence:%s hash:%s", log.Label, result.ConfidencePercent(), hashHex)

	return uc.finish(ctx, opLogger, log, uc.outcomeFromLog(log))
}

// finish persists log and caches outcome under the request id.
func (uc *ClassificationUseCase) finish(ctx context.Context, opLogger *zap.Logger, log *repository.ClassificationLog, outcome *Outcome) (*Outcome, error) {
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", log.RequestID, err)
		opLogger.Error("failed to persist classification log", zap.Error(wrapped))
		return nil, wrapped
	}

	serialized, err := json.Marshal(outcome)
	if err != nil {
		opLogger.Error("failed to serialize classification result", zap.Error(err))
		return nil, err
	}

	if err := retry.Do(ctx, uc.policy, uc.logger, "cache.set.result", log.RequestID, func() error {
		return uc.cache.Set(ctx, resultKey(log.RequestID), string(serialized), resultTTL)
	}); err != nil {
		opLogger.Error("failed to cache classification result", zap.Error(err))
		return nil, err
	}

	return outcome, nil
}

// GetResult retrieves a cached outcome or loads it from persistence.
func (uc *ClassificationUseCase) GetResult(ctx context.Context, userID, requestID string) (*Outcome, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.get_result", requestID)

	var cached string
	err := retry.Do(ctx, uc.policy, uc.logger, "cache.get.result", requestID, func() error {
		value, err := uc.cache.Get(ctx, resultKey(requestID))
		if err != nil {
			return err
		}
		cached = value
		return nil
	})
	switch {
	case err == nil && cached == processingMarker:
		return nil, ErrStillProcessing
	case err == nil:
		var outcome Outcome
		if err := json.Unmarshal([]byte(cached), &outcome); err != nil {
			opLogger.Warn("failed to decode cached result", zap.Error(err))
		} else if outcome.UserID == userID {
			return &outcome, nil
		}
	case !errors.Is(err, ErrCacheMiss):
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	return uc.outcomeFromLog(log), nil
}

func (uc *ClassificationUseCase) outcomeFromLog(log *repository.ClassificationLog) *Outcome {
	outcome := &Outcome{
		RequestID:  log.RequestID,
		UserID:     log.UserID,
		Success:    log.Success,
		ErrorKind:  log.ErrorKind,
		ClassIndex: log.ClassIndex,
		Confidence: log.Confidence,
		SHA1Hash:   log.SHA1Hash,
		CreatedAt:  log.CreatedAt,
	}
	if !log.Success {
		return outcome
	}

	result := &classifier.Result{
		Label:             labels.Label(log.Label),
		Index:             log.ClassIndex,
		Confidence:        log.Confidence,
		ReferenceTemplate: uc.referenceTemplate,
	}
	outcome.Label = result.Label.Raw()
	outcome.DisplayLabel = result.DisplayLabel()
	outcome.ConfidencePercent = result.ConfidencePercent()
	outcome.ReferenceURL = result.ReferenceURL()
	return outcome
}
