package index

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ppiankov/fabula/internal/model"
)

// Index is an in-memory exact nearest-neighbour store over one document's passages.
//
// Passages and their vectors are held in parallel, append-only. Vectors are
// unit-normalized on insert so inner product equals cosine similarity.
// Search is a brute-force matrix-vector product, which is fast enough for
// the tens of thousands of passages a single novel produces.
type Index struct {
	dim   int
	texts []string
	data  []float64 // row-major, len(texts) x dim
}

// Hit is one search result
type Hit struct {
	model.Passage
	Similarity float64
}

// New creates an empty index with fixed dimensionality
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	return &Index{dim: dim}, nil
}

// Dim returns the vector dimensionality
func (x *Index) Dim() int {
	return x.dim
}

// Len returns the number of stored passages
func (x *Index) Len() int {
	return len(x.texts)
}

// Passage returns the passage with the given id
func (x *Index) Passage(id int) (model.Passage, bool) {
	if id < 0 || id >= len(x.texts) {
		return model.Passage{}, false
	}
	return model.Passage{ID: id, Text: x.texts[id]}, true
}

// Add appends passages in order. Either all entries are added or none are.
func (x *Index) Add(vectors [][]float32, texts []string) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: %d vectors, %d texts", ErrLengthMismatch, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, index has %d", ErrDimensionMismatch, i, len(v), x.dim)
		}
	}

	for i, v := range vectors {
		x.data = append(x.data, NormalizeL2(v)...)
		x.texts = append(x.texts, texts[i])
	}
	return nil
}

// SearchScored returns the k passages most similar to query, by descending
// inner product with ties broken by insertion order. Fewer than k stored
// passages returns all of them; k <= 0 returns none.
func (x *Index) SearchScored(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}
	n := len(x.texts)
	if k <= 0 || n == 0 {
		return []Hit{}, nil
	}
	if k > n {
		k = n
	}

	passages := mat.NewDense(n, x.dim, x.data)
	q := mat.NewVecDense(x.dim, NormalizeL2(query))

	var sims mat.VecDense
	sims.MulVec(passages, q)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return sims.AtVec(order[a]) > sims.AtVec(order[b])
	})

	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		id := order[i]
		hits[i] = Hit{
			Passage:    model.Passage{ID: id, Text: x.texts[id]},
			Similarity: sims.AtVec(id),
		}
	}
	return hits, nil
}

// Search returns the texts of the k passages most similar to query
func (x *Index) Search(query []float32, k int) ([]string, error) {
	hits, err := x.SearchScored(query, k)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return texts, nil
}
