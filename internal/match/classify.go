// Package match classifies face embeddings against the identity store and
// decides when a recognition may be written to the attendance log.
package match

import (
	"errors"
	"fmt"
	"math"

	"github.com/kozaktomas/face-logger/internal/identity"
)

// Unknown is the label reported for faces without a match.
const Unknown = identity.UnknownLabel

// ErrDimensionMismatch is returned for a query embedding whose length differs from the store's.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Result is the outcome of classifying one face.
type Result struct {
	Label    string
	Distance float64 // distance to the nearest known embedding, +Inf for an empty store
	Index    int     // index of the nearest known embedding in load order, -1 if none
	Matched  bool    // nearest embedding is within the threshold
}

// Known reports whether the face matched a registered person. It does not
// look at the label, so a directory named like the unmatched label still
// counts as a person.
func (r Result) Known() bool {
	return r.Matched
}

// Classify finds the nearest known embedding by Euclidean distance. The first
// embedding in load order wins ties. The nearest label is returned when its
// distance is within threshold, Unknown otherwise.
func Classify(embedding []float64, store *identity.Store, threshold float64) (Result, error) {
	if dim := store.Dim(); dim > 0 && len(embedding) != dim {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), dim)
	}

	res := Result{Label: Unknown, Distance: math.Inf(1), Index: -1}
	for i, known := range store.Embeddings() {
		if len(known.Embedding) != len(embedding) {
			return Result{}, fmt.Errorf("%w: got %d, known %d", ErrDimensionMismatch, len(embedding), len(known.Embedding))
		}
		d := EuclideanDistance(embedding, known.Embedding)
		if d < res.Distance {
			res.Distance = d
			res.Index = i
		}
	}

	if res.Index >= 0 && res.Distance <= threshold {
		res.Label = store.Embeddings()[res.Index].Label
		res.Matched = true
	}
	return res, nil
}
