package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/kopeknet/internal/auth"
	"github.com/example/kopeknet/internal/classifier"
	"github.com/example/kopeknet/internal/logging"
	"github.com/example/kopeknet/internal/usecase"
)

// MaxUploadSize caps the multipart request carrying the image.
const MaxUploadSize = 10 << 20

const classifyFailedMessage = "could not classify image"

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/gif"}

// ClassificationService is the use case surface the routes depend on.
type ClassificationService interface {
	ClassifyImage(ctx context.Context, userID string, imageBytes []byte) (*usecase.Outcome, error)
	GetResult(ctx context.Context, userID, requestID string) (*usecase.Outcome, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc ClassificationService, authMiddleware gin.HandlerFunc, logger *zap.Logger) {
	h := &handler{svc: svc, logger: logger.Named("handlers")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics/summary", h.metricsSummary)

	authorized := router.Group("/", authMiddleware)
	authorized.POST("/classify", h.classify)
	authorized.GET("/result/:id", h.result)
}

type handler struct {
	svc    ClassificationService
	logger *zap.Logger
}

func (h *handler) classify(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if c.Request.ContentLength > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	if mtype := mimetype.Detect(data); !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type", "detected": mtype.String()})
		return
	}

	outcome, err := h.svc.ClassifyImage(c.Request.Context(), userID, data)
	if err != nil {
		h.writeClassifyError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *handler) writeClassifyError(c *gin.Context, err error) {
	h.logger.Warn("classify request failed",
		zap.Error(err),
		zap.String("operation", logging.OperationOf(err)),
		zap.String("error_kind", classifier.Kind(err)))

	switch {
	case errors.Is(err, usecase.ErrInvalidImage):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "image could not be decoded"})
	case errors.Is(err, classifier.ErrModelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": classifyFailedMessage, "kind": classifier.Kind(err)})
	case errors.Is(err, classifier.ErrLabelMismatch), errors.Is(err, classifier.ErrIndexOutOfRange):
		c.JSON(http.StatusInternalServerError, gin.H{"error": classifyFailedMessage, "kind": classifier.Kind(err)})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": classifyFailedMessage})
	}
}

func (h *handler) result(c *gin.Context) {
	userID, ok := auth.GetUserID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	outcome, err := h.svc.GetResult(c.Request.Context(), userID, c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, outcome)
	case errors.Is(err, usecase.ErrStillProcessing):
		c.JSON(http.StatusAccepted, gin.H{"status": "processing"})
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
	default:
		h.logger.Error("result lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
	}
}

func (h *handler) metricsSummary(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load metrics"})
		return
	}
	c.JSON(http.StatusOK, summary)
}
