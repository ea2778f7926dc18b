// Package embed maps text to unit-length vectors for evidence retrieval.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ppiankov/fabula/internal/model"
	"github.com/ppiankov/fabula/internal/util"
)

// ErrCountMismatch is returned when a backend answers with a different number of vectors than texts
var ErrCountMismatch = errors.New("embedding count does not match input count")

// Embedder turns texts into vectors: same length and order as the input,
// one fixed dimensionality per embedder, each vector L2-normalized.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NormalizeL2 scales v to unit length in place and returns it. Zero vectors are left as is.
func NormalizeL2(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sumSq)
	for i, x := range v {
		v[i] = float32(float64(x) * inv)
	}
	return v
}

// New builds the embedder named by the configuration
func New(cfg model.EmbeddingConfig, httpCfg model.HTTPConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return NewOpenAI(cfg, httpCfg)
	case "ollama":
		client := util.NewHTTPClient(httpCfg.Timeout, httpCfg.HTTPProxy, httpCfg.HTTPSProxy)
		return NewOllama(cfg.BaseURL, cfg.Model, client), nil
	case "hashing", "":
		return NewHashing(cfg.Dim), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, ollama, hashing)", cfg.Provider)
	}
}
