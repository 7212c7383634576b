package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/kopeknet/internal/retry"
)

// ErrNotFound is returned when no log matches a lookup.
var ErrNotFound = errors.New("classification log not found")

// ClassificationLog represents a persisted classification request.
type ClassificationLog struct {
	ID         uint      `gorm:"primaryKey"`
	RequestID  string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID     string    `gorm:"column:user_id;size:64;index:idx_user_hash"`
	Label      string    `gorm:"column:label;size:128"`
	ClassIndex int       `gorm:"column:class_index"`
	Confidence float32   `gorm:"column:confidence"`
	Success    bool      `gorm:"column:success"`
	ErrorKind  string    `gorm:"column:error_kind;size:32"`
	Details    string    `gorm:"column:details;type:text"`
	SHA1Hash   string    `gorm:"column:sha1_hash;size:40;index:idx_user_hash"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ClassificationLog) TableName() string {
	return "classification_logs"
}

// MetricsAggregation holds raw counters over all persisted logs.
type MetricsAggregation struct {
	TotalCount        int64
	SuccessCount      int64
	AverageConfidence float64
}

// ClassificationRepository provides persistence APIs for classification logs.
type ClassificationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewClassificationRepository creates a new repository instance.
func NewClassificationRepository(db *gorm.DB, logger *zap.Logger) *ClassificationRepository {
	return &ClassificationRepository{
		db:     db,
		logger: logger.Named("classification_repository"),
		policy: retry.DefaultPolicy,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ClassificationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ClassificationLog{})
}

// SaveLog persists a classification log entry.
func (r *ClassificationRepository) SaveLog(ctx context.Context, log *ClassificationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves a log matching the request and owner.
func (r *ClassificationRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*ClassificationLog, error) {
	var log ClassificationLog
	err := r.executeWithRetry(ctx, "repository.find_by_request", requestID, func() error {
		return notFound(r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error)
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindLatestByHash returns the user's most recent successful classification
// of an image with the given SHA-1.
func (r *ClassificationRepository) FindLatestByHash(ctx context.Context, userID, hash string) (*ClassificationLog, error) {
	var log ClassificationLog
	err := r.executeWithRetry(ctx, "repository.find_by_hash", "", func() error {
		return notFound(r.db.WithContext(ctx).
			Where("user_id = ? AND sha1_hash = ? AND success = ?", userID, hash, true).
			Order("created_at DESC").
			First(&log).Error)
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes request counters and the mean confidence of
// successful classifications.
func (r *ClassificationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&ClassificationLog{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS success_count, " +
				"COALESCE(AVG(CASE WHEN success THEN confidence END), 0) AS average_confidence").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *ClassificationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.policy, r.logger, operation, requestID, fn)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
