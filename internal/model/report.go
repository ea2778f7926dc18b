package model

import "time"

// Prediction is the classifier output for one example
type Prediction struct {
	ID          string        `json:"id"`
	Label       int           `json:"label"`       // 1 = consistent, 0 = inconsistent
	Probability float64       `json:"probability"` // P(consistent)
	Features    FeatureVector `json:"features"`
	Degenerate  bool          `json:"degenerate"` // Features were defaulted (no claims or no evidence)
}

// TrainingSummary describes a completed training run
type TrainingSummary struct {
	RunID              string    `json:"run_id,omitempty"`
	TrainedAt          time.Time `json:"trained_at"`
	Examples           int       `json:"examples"`
	Skipped            int       `json:"skipped"` // Degenerate or unlabeled examples left out
	TrainSize          int       `json:"train_size"`
	ValidationSize     int       `json:"validation_size"`
	ValidationAccuracy float64   `json:"validation_accuracy"`
	Validated          bool      `json:"validated"`
	JudgeCalls         int       `json:"judge_calls"`
	JudgeFallbacks     int       `json:"judge_fallbacks"`
}
