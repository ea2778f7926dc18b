// Package classify trains and applies the consistency decision function: a
// binary logistic regression over standardized evidence features.
package classify

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ppiankov/fabula/internal/model"
)

var (
	// ErrEmptyTrainingSet is returned when Train receives no rows
	ErrEmptyTrainingSet = errors.New("empty training set")
	// ErrLabelMismatch is returned when features and labels differ in length
	ErrLabelMismatch = errors.New("features and labels differ in length")
	// ErrInvalidLabel is returned for labels other than 0 and 1
	ErrInvalidLabel = errors.New("labels must be 0 or 1")
	// ErrSingleClass is returned when the training rows contain one class only
	ErrSingleClass = errors.New("training set contains a single class")
)

// Model is a trained logistic regression. Mean and Scale standardize inputs
// before the linear term; it is read-only after training.
type Model struct {
	Weights []float64
	Bias    float64
	Mean    []float64
	Scale   []float64
}

// Report describes a training run
type Report struct {
	TrainSize          int
	ValidationSize     int
	TrainAccuracy      float64
	ValidationAccuracy float64
	Validated          bool // False when the set was too small to hold rows out
}

// Train fits a model on features and 0/1 labels (1 = consistent).
// A seeded, optionally stratified, fraction of rows is held out for validation.
func Train(features []model.FeatureVector, labels []int, opts Options) (*Model, *Report, error) {
	if len(features) == 0 {
		return nil, nil, ErrEmptyTrainingSet
	}
	if len(features) != len(labels) {
		return nil, nil, fmt.Errorf("%w: %d features, %d labels", ErrLabelMismatch, len(features), len(labels))
	}

	classes := [2]int{}
	for i, y := range labels {
		if y != model.LabelInconsistent && y != model.LabelConsistent {
			return nil, nil, fmt.Errorf("%w: row %d has %d", ErrInvalidLabel, i, y)
		}
		classes[y]++
	}
	if classes[0] == 0 || classes[1] == 0 {
		return nil, nil, ErrSingleClass
	}

	opts = opts.withDefaults()
	trainIdx, valIdx := split(labels, opts)

	m := fit(pick(features, trainIdx), pickLabels(labels, trainIdx), opts)

	report := &Report{
		TrainSize:     len(trainIdx),
		TrainAccuracy: m.Accuracy(pick(features, trainIdx), pickLabels(labels, trainIdx)),
	}
	if len(valIdx) > 0 {
		report.Validated = true
		report.ValidationSize = len(valIdx)
		report.ValidationAccuracy = m.Accuracy(pick(features, valIdx), pickLabels(labels, valIdx))
	}

	return m, report, nil
}

// fit runs full-batch gradient descent on the standardized design matrix
func fit(features []model.FeatureVector, labels []int, opts Options) *Model {
	n := len(features)
	raw := designMatrix(features)

	m := &Model{
		Weights: make([]float64, model.NumFeatures),
		Mean:    make([]float64, model.NumFeatures),
		Scale:   make([]float64, model.NumFeatures),
	}

	col := make([]float64, n)
	for j := 0; j < model.NumFeatures; j++ {
		mat.Col(col, j, raw)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			// Constant column: centre it and leave the scale alone
			std = 1
		}
		m.Mean[j] = mean
		m.Scale[j] = std
	}

	x := m.standardize(raw)
	y := mat.NewVecDense(n, nil)
	for i, label := range labels {
		y.SetVec(i, float64(label))
	}

	w := mat.NewVecDense(model.NumFeatures, nil)
	var b float64

	z := mat.NewVecDense(n, nil)
	residual := mat.NewVecDense(n, nil)
	grad := mat.NewVecDense(model.NumFeatures, nil)

	for iter := 0; iter < opts.Iterations; iter++ {
		z.MulVec(x, w)
		for i := 0; i < n; i++ {
			residual.SetVec(i, sigmoid(z.AtVec(i)+b)-y.AtVec(i))
		}

		grad.MulVec(x.T(), residual)
		grad.ScaleVec(1/float64(n), grad)
		grad.AddScaledVec(grad, opts.L2, w)

		gradB := mat.Sum(residual) / float64(n)

		w.AddScaledVec(w, -opts.LearningRate, grad)
		b -= opts.LearningRate * gradB
	}

	for j := 0; j < model.NumFeatures; j++ {
		m.Weights[j] = w.AtVec(j)
	}
	m.Bias = b

	return m
}

// PredictProba returns the probability that the feature vector is consistent
func (m *Model) PredictProba(fv model.FeatureVector) float64 {
	x := fv.Slice()
	z := m.Bias
	for j, v := range x {
		z += m.Weights[j] * (v - m.Mean[j]) / m.Scale[j]
	}
	return sigmoid(z)
}

// Predict returns 1 (consistent) when the probability is at least one half, else 0
func (m *Model) Predict(fv model.FeatureVector) int {
	if m.PredictProba(fv) >= 0.5 {
		return model.LabelConsistent
	}
	return model.LabelInconsistent
}

// Accuracy is the fraction of rows predicted correctly
func (m *Model) Accuracy(features []model.FeatureVector, labels []int) float64 {
	if len(features) == 0 {
		return 0
	}
	correct := 0
	for i, fv := range features {
		if m.Predict(fv) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(features))
}

func (m *Model) standardize(raw *mat.Dense) *mat.Dense {
	r, c := raw.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return (v - m.Mean[j]) / m.Scale[j]
	}, raw)
	return out
}

func designMatrix(features []model.FeatureVector) *mat.Dense {
	data := make([]float64, 0, len(features)*model.NumFeatures)
	for _, fv := range features {
		data = append(data, fv.Slice()...)
	}
	return mat.NewDense(len(features), model.NumFeatures, data)
}

func sigmoid(z float64) float64 {
	// Split on sign so exp never overflows
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func pick(features []model.FeatureVector, idx []int) []model.FeatureVector {
	out := make([]model.FeatureVector, len(idx))
	for i, k := range idx {
		out[i] = features[k]
	}
	return out
}

func pickLabels(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, k := range idx {
		out[i] = labels[k]
	}
	return out
}
