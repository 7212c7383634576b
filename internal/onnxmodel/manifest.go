package onnxmodel

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/example/kopeknet/internal/preprocess"
)

// Manifest describes a packaged model and its label asset.
type Manifest struct {
	ModelPath     string  `yaml:"model_path"`
	LabelsPath    string  `yaml:"labels_path"`
	SharedLibrary string  `yaml:"shared_library"`
	InputName     string  `yaml:"input_name"`
	OutputName    string  `yaml:"output_name"`
	InputShape    []int64 `yaml:"input_shape"`
	OutputShape   []int64 `yaml:"output_shape"`
	Version       string  `yaml:"version"`
}

// LoadManifest reads a YAML manifest. Relative paths inside it are resolved
// against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}

	dir := filepath.Dir(path)
	m.ModelPath = resolve(dir, m.ModelPath)
	m.LabelsPath = resolve(dir, m.LabelsPath)
	if m.SharedLibrary != "" {
		m.SharedLibrary = resolve(dir, m.SharedLibrary)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the manifest matches the preprocessor's tensor layout.
func (m *Manifest) Validate() error {
	if m.ModelPath == "" {
		return fmt.Errorf("manifest: model_path is required")
	}
	if m.LabelsPath == "" {
		return fmt.Errorf("manifest: labels_path is required")
	}

	want := (preprocess.Tensor{}).Shape()
	if len(m.InputShape) != len(want) {
		return fmt.Errorf("manifest: input_shape %v, expected %v", m.InputShape, want)
	}
	for i, dim := range want {
		if m.InputShape[i] != dim {
			return fmt.Errorf("manifest: input_shape %v, expected %v", m.InputShape, want)
		}
	}

	if len(m.OutputShape) != 2 || m.OutputShape[0] != 1 || m.OutputShape[1] < 1 {
		return fmt.Errorf("manifest: output_shape %v, expected [1, classes]", m.OutputShape)
	}
	return nil
}

// Classes is the number of scores the model emits.
func (m *Manifest) Classes() int {
	return int(m.OutputShape[1])
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
