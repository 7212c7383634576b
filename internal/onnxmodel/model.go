// Package onnxmodel loads the breed classifier with ONNX Runtime.
package onnxmodel

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/kopeknet/internal/classifier"
)

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(sharedLibrary string) error {
	envOnce.Do(func() {
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return envErr
}

// Shutdown releases the process-wide ONNX environment.
func Shutdown() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Loader opens a new ONNX session per Load.
type Loader struct {
	manifest *Manifest
	logger   *zap.Logger
}

// NewLoader returns a classifier.Loader for the manifest's model.
func NewLoader(manifest *Manifest, logger *zap.Logger) *Loader {
	return &Loader{manifest: manifest, logger: logger.Named("onnx_loader")}
}

// Load implements classifier.Loader.
func (l *Loader) Load(ctx context.Context) (classifier.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := initEnvironment(l.manifest.SharedLibrary); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(l.manifest.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(l.manifest.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(l.manifest.ModelPath,
		[]string{l.manifest.InputName}, []string{l.manifest.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	l.logger.Debug("onnx session created",
		zap.String("model", l.manifest.ModelPath),
		zap.String("version", l.manifest.Version))

	return &Model{session: session, input: inputTensor, output: outputTensor}, nil
}

// Model is one ONNX session with its bound tensors. It is not safe for
// concurrent use.
type Model struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// Run copies input into the session and returns a copy of the scores.
func (m *Model) Run(ctx context.Context, input []float32) ([]float32, error) {
	dst := m.input.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := m.output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Close destroys the session and its tensors.
func (m *Model) Close() error {
	var firstErr error
	if m.session != nil {
		firstErr = m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		if err := m.input.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.input = nil
	}
	if m.output != nil {
		if err := m.output.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.output = nil
	}
	return firstErr
}
