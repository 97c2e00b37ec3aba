package transform

import "fmt"

// NotFoundReason tells why a per frame estimate could not be produced.
type NotFoundReason int

const (
	// ReasonNone is the reason of an estimate that was found.
	ReasonNone NotFoundReason = iota
	// ReasonInsufficientCorrespondences is returned when fewer than 4 point pairs are available.
	ReasonInsufficientCorrespondences
	// ReasonDegenerateHomography is returned when no homography gathers enough inliers.
	ReasonDegenerateHomography
	// ReasonDegeneratePose is returned when a homography cannot be decomposed into a rotation and a translation.
	ReasonDegeneratePose
)

func (r NotFoundReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInsufficientCorrespondences:
		return "insufficient correspondences"
	case ReasonDegenerateHomography:
		return "degenerate homography"
	case ReasonDegeneratePose:
		return "degenerate pose"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Estimate is the outcome of a per frame estimation: either a value or the reason there is none.
// Not finding the pattern in a frame is a normal outcome, not an error.
type Estimate[T any] struct {
	value  T
	found  bool
	reason NotFoundReason
}

// Found wraps an estimated value.
func Found[T any](v T) Estimate[T] {
	return Estimate[T]{value: v, found: true}
}

// NotFound returns an empty estimate with its reason.
func NotFound[T any](reason NotFoundReason) Estimate[T] {
	return Estimate[T]{reason: reason}
}

// Get returns the value and whether it was found.
func (e Estimate[T]) Get() (T, bool) {
	return e.value, e.found
}

// IsFound reports whether the estimate holds a value.
func (e Estimate[T]) IsFound() bool {
	return e.found
}

// Reason returns ReasonNone for found estimates.
func (e Estimate[T]) Reason() NotFoundReason {
	return e.reason
}

func (e Estimate[T]) String() string {
	if e.found {
		return fmt.Sprintf("found(%v)", e.value)
	}
	return fmt.Sprintf("not found: %v", e.reason)
}
