package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ppiankov/fabula/internal/model"
)

var (
	// ErrModelNotFound is returned when no classifier artifact exists at the path
	ErrModelNotFound = errors.New("classifier model not found")
	// ErrInvalidModel is returned for artifacts that do not decode into a usable model
	ErrInvalidModel = errors.New("invalid classifier model")
)

const (
	modelFormat  = "fabula-logistic-regression"
	modelVersion = 1
)

type envelope struct {
	Format   string    `json:"format"`
	Version  int       `json:"version"`
	Features []string  `json:"features"`
	Weights  []float64 `json:"weights"`
	Bias     float64   `json:"bias"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// Save writes the model as a versioned JSON document
func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope{
		Format:   modelFormat,
		Version:  modelVersion,
		Features: model.FeatureNames,
		Weights:  m.Weights,
		Bias:     m.Bias,
		Mean:     m.Mean,
		Scale:    m.Scale,
	})
}

// Load reads a model written by Save
func Load(r io.Reader) (*Model, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if env.Format != modelFormat {
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidModel, env.Format)
	}
	if env.Version != modelVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidModel, env.Version)
	}
	if len(env.Weights) != model.NumFeatures || len(env.Mean) != model.NumFeatures || len(env.Scale) != model.NumFeatures {
		return nil, fmt.Errorf("%w: expected %d features", ErrInvalidModel, model.NumFeatures)
	}
	for j, s := range env.Scale {
		if s == 0 {
			return nil, fmt.Errorf("%w: zero scale for feature %d", ErrInvalidModel, j)
		}
	}

	return &Model{
		Weights: env.Weights,
		Bias:    env.Bias,
		Mean:    env.Mean,
		Scale:   env.Scale,
	}, nil
}

// SaveFile writes the model to path, creating parent directories
func (m *Model) SaveFile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	if err := m.Save(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write model: %w", err)
	}
	return f.Close()
}

// LoadFile reads a model from path. A missing file yields ErrModelNotFound.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f)
}

// Exists reports whether a model artifact is present at path
func Exists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return fmt.Errorf("stat model: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrModelNotFound, path)
	}
	return nil
}
