package model

// Passage is a contiguous span of sentences from one document.
// ID is the position assigned by the owning evidence index.
type Passage struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Evidence pairs a claim with one retrieved passage
type Evidence struct {
	Claim      Claim   `json:"claim"`
	Passage    Passage `json:"passage"`
	Similarity float64 `json:"similarity"` // Inner product between claim and passage vectors
}

// ContradictionThreshold is the strict lower bound a score must exceed to count as a contradiction
const ContradictionThreshold = 0.7

// FeatureVector summarizes all contradiction scores collected for one example
type FeatureVector struct {
	MaxScore           float64 `json:"max_score"`
	MeanScore          float64 `json:"mean_score"`
	ContradictionCount int     `json:"contradiction_count"`
}

// NumFeatures is the fixed dimensionality of a FeatureVector
const NumFeatures = 3

// FeatureNames lists the feature names in Slice order
var FeatureNames = []string{"max_score", "mean_score", "contradiction_count"}

// Slice returns the feature vector as a fixed-order float slice
func (f FeatureVector) Slice() []float64 {
	return []float64{f.MaxScore, f.MeanScore, float64(f.ContradictionCount)}
}

// NeutralFeatures is the defined default for examples that produced no scores.
// It is what an all-NEUTRAL evidence pool would aggregate to.
func NeutralFeatures() FeatureVector {
	return FeatureVector{
		MaxScore:           0.3,
		MeanScore:          0.3,
		ContradictionCount: 0,
	}
}
