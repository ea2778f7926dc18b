package index

import "errors"

var (
	// ErrDimensionMismatch indicates a vector whose length differs from the index dimensionality.
	// It means the embedder changed between index build and query and is not recoverable.
	ErrDimensionMismatch = errors.New("vector dimensionality mismatch")

	// ErrLengthMismatch indicates Add was called with different numbers of vectors and texts.
	ErrLengthMismatch = errors.New("vectors and texts length mismatch")

	// ErrInvalidDimension indicates a non-positive dimensionality at construction.
	ErrInvalidDimension = errors.New("index dimensionality must be positive")
)
