package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashingDim is used when no dimensionality is configured
const DefaultHashingDim = 384

// Hashing is a deterministic bag-of-words embedder: each content word is
// hashed into one of dim buckets. It needs no network and is meant for
// tests and air-gapped runs; it only captures lexical overlap.
type Hashing struct {
	dim int
}

// NewHashing creates a hashing embedder with dim buckets
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultHashingDim
	}
	return &Hashing{dim: dim}
}

// Name returns the embedder name
func (h *Hashing) Name() string {
	return fmt.Sprintf("hashing/%d", h.dim)
}

// Dim returns the vector dimensionality
func (h *Hashing) Dim() int {
	return h.dim
}

// Embed hashes every text. It never fails.
func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, h.dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.TrimFunc(w, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			})
			if w == "" || stopWords[w] {
				continue
			}
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			vec[f.Sum32()%uint32(h.dim)] += 1
		}
		out[i] = NormalizeL2(vec)
	}
	return out, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "of": true,
	"to": true, "in": true, "on": true, "at": true, "by": true, "for": true, "with": true,
	"is": true, "was": true, "were": true, "are": true, "be": true, "been": true,
	"he": true, "she": true, "it": true, "his": true, "her": true, "they": true, "their": true,
	"that": true, "this": true, "as": true, "from": true, "had": true, "has": true, "have": true,
}
