package classify

import (
	"math"
	"math/rand"
	"sort"

	"github.com/ppiankov/fabula/internal/model"
)

// Options controls training
type Options struct {
	ValidationSplit float64 // Fraction held out; 0 disables validation
	Stratify        bool    // Hold out the same fraction of each class
	Seed            int64
	Iterations      int
	LearningRate    float64
	L2              float64
}

// DefaultOptions mirrors the classifier section of model.DefaultConfig
func DefaultOptions() Options {
	return OptionsFromConfig(model.DefaultConfig().Classifier)
}

// OptionsFromConfig converts the configuration section into training options
func OptionsFromConfig(cfg model.ClassifierConfig) Options {
	return Options{
		ValidationSplit: cfg.ValidationSplit,
		Stratify:        cfg.Stratify,
		Seed:            cfg.Seed,
		Iterations:      cfg.Iterations,
		LearningRate:    cfg.LearningRate,
		L2:              cfg.L2,
	}
}

func (o Options) withDefaults() Options {
	if o.Iterations <= 0 {
		o.Iterations = 1000
	}
	if o.LearningRate <= 0 {
		o.LearningRate = 0.5
	}
	if o.L2 < 0 {
		o.L2 = 0
	}
	if o.ValidationSplit < 0 || o.ValidationSplit >= 1 {
		o.ValidationSplit = 0
	}
	return o
}

// split partitions row indices into training and validation sets. The
// validation set is empty when it could not hold at least one row of each
// class while leaving both classes in training.
func split(labels []int, opts Options) (train, val []int) {
	all := make([]int, len(labels))
	for i := range all {
		all[i] = i
	}
	if opts.ValidationSplit <= 0 {
		return all, nil
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	if opts.Stratify {
		byClass := [2][]int{}
		for _, i := range all {
			byClass[labels[i]] = append(byClass[labels[i]], i)
		}
		for _, rows := range byClass {
			rng.Shuffle(len(rows), func(a, b int) { rows[a], rows[b] = rows[b], rows[a] })
			nVal := holdout(len(rows), opts.ValidationSplit)
			if nVal < 1 || len(rows)-nVal < 1 {
				return all, nil
			}
			val = append(val, rows[:nVal]...)
			train = append(train, rows[nVal:]...)
		}
	} else {
		rng.Shuffle(len(all), func(a, b int) { all[a], all[b] = all[b], all[a] })
		nVal := holdout(len(all), opts.ValidationSplit)
		val = append(val, all[:nVal]...)
		train = append(train, all[nVal:]...)
		if !hasBothClasses(labels, train) || !hasBothClasses(labels, val) {
			sort.Ints(all)
			return all, nil
		}
	}

	sort.Ints(train)
	sort.Ints(val)
	return train, val
}

func holdout(n int, fraction float64) int {
	return int(math.Round(fraction * float64(n)))
}

func hasBothClasses(labels []int, idx []int) bool {
	seen := [2]bool{}
	for _, i := range idx {
		seen[labels[i]] = true
	}
	return seen[0] && seen[1]
}
