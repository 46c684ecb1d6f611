// Package matcher compares face descriptors produced by an external embedding model.
// Everything here is a pure function of its arguments and safe for concurrent use.
package matcher

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidInput is returned when descriptors cannot be compared.
var ErrInvalidInput = errors.New("invalid input")

// Descriptor is a fixed-length face embedding. Its dimensionality is owned by the model.
type Descriptor []float32

// LabeledDescriptor is one reference identity. Only the first descriptor is used for ranking.
type LabeledDescriptor struct {
	Label       string
	Descriptors []Descriptor
}

// MatchResult is a single reference scored against a query.
// Confidence is 1 - Distance and is not clamped, so it can be negative.
type MatchResult struct {
	Label      string  `json:"label"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// MatchDecision classifies a result against a threshold.
type MatchDecision struct {
	Matched   bool    `json:"matched"`
	Threshold float64 `json:"threshold"`
}

// PairResult is the outcome of comparing two descriptors directly.
type PairResult struct {
	MatchDecision
	Similarity float64 `json:"similarity"`
	Distance   float64 `json:"distance"`
}

// Distance returns the Euclidean distance between two descriptors of equal length.
func Distance(a, b Descriptor) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: empty descriptor", ErrInvalidInput)
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch (%d != %d)", ErrInvalidInput, len(a), len(b))
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Similarity converts a distance into a confidence score (1 - d).
func Similarity(d float64) float64 {
	return 1 - d
}

// Decide reports whether the result's confidence is strictly above threshold.
func Decide(result MatchResult, threshold float64) MatchDecision {
	return MatchDecision{
		Matched:   result.Confidence > threshold,
		Threshold: threshold,
	}
}

// RankMatches scores query against every reference and orders the results by
// descending confidence. Equal confidences keep their input order.
func RankMatches(query Descriptor, references []LabeledDescriptor) ([]MatchResult, error) {
	results := make([]MatchResult, 0, len(references))
	if len(references) == 0 {
		return results, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query descriptor", ErrInvalidInput)
	}

	for _, ref := range references {
		if len(ref.Descriptors) == 0 {
			return nil, fmt.Errorf("%w: reference %q has no descriptors", ErrInvalidInput, ref.Label)
		}
		dist, err := Distance(query, ref.Descriptors[0])
		if err != nil {
			return nil, fmt.Errorf("reference %q: %w", ref.Label, err)
		}
		results = append(results, MatchResult{
			Label:      ref.Label,
			Distance:   dist,
			Confidence: Similarity(dist),
		})
	}

	slices.SortStableFunc(results, func(a, b MatchResult) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return results, nil
}

// FilterAbove returns the results that Decide classifies as matched, in their original order.
func FilterAbove(results []MatchResult, threshold float64) []MatchResult {
	filtered := make([]MatchResult, 0, len(results))
	for _, r := range results {
		if Decide(r, threshold).Matched {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// CompareSinglePair bundles Distance, Similarity and Decide for a two-image comparison.
func CompareSinglePair(query, candidate Descriptor, threshold float64) (PairResult, error) {
	dist, err := Distance(query, candidate)
	if err != nil {
		return PairResult{}, err
	}
	sim := Similarity(dist)
	return PairResult{
		MatchDecision: Decide(MatchResult{Distance: dist, Confidence: sim}, threshold),
		Similarity:    sim,
		Distance:      dist,
	}, nil
}

// PercentageMatch formats a similarity as a whole percentage, e.g. 0.874 -> "87%".
// Halves round toward positive infinity.
func PercentageMatch(similarity float64) string {
	return fmt.Sprintf("%d%%", int(math.Floor(similarity*100+0.5)))
}
