package judge

import "strings"

// Verdict is the judgment model's answer about one (claim, evidence) pair
type Verdict int

const (
	// Unrecognized is any answer outside the three-word vocabulary
	Unrecognized Verdict = iota
	Contradict
	Support
	Neutral
)

// Numeric scores fed to the aggregator. Higher means more contradictory.
const (
	ContradictScore = 1.0
	NeutralScore    = 0.3
	SupportScore    = 0.0
)

// FallbackVerdict is the raw answer substituted when a judge call fails for good
const FallbackVerdict = "NEUTRAL"

// ParseVerdict maps a raw judge answer onto a Verdict. Matching is exact after
// trimming whitespace and upper-casing; "CONTRADICTS" or "Support." are Unrecognized.
func ParseVerdict(raw string) Verdict {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CONTRADICT":
		return Contradict
	case "SUPPORT":
		return Support
	case "NEUTRAL":
		return Neutral
	default:
		return Unrecognized
	}
}

// Score returns the numeric contradiction score of the verdict
func (v Verdict) Score() float64 {
	switch v {
	case Contradict:
		return ContradictScore
	case Support:
		return SupportScore
	case Neutral:
		return NeutralScore
	case Unrecognized:
		// Malformed output carries no signal either way
		return NeutralScore
	default:
		return NeutralScore
	}
}

func (v Verdict) String() string {
	switch v {
	case Contradict:
		return "CONTRADICT"
	case Support:
		return "SUPPORT"
	case Neutral:
		return "NEUTRAL"
	default:
		return "UNRECOGNIZED"
	}
}

// MapScore parses a raw answer and returns its score
func MapScore(raw string) float64 {
	return ParseVerdict(raw).Score()
}
