package domain

import (
	"math"
	"time"
)

// OverlapKind describes how two windows relate when they collide.
type OverlapKind string

const (
	OverlapNone OverlapKind = "none"
	// OverlapContains: A covers all of B.
	OverlapContains OverlapKind = "contains"
	// OverlapContained: B covers all of A.
	OverlapContained OverlapKind = "contained"
	// OverlapPartialStart: A starts first and runs into the start of B.
	OverlapPartialStart OverlapKind = "partial_start"
	// OverlapPartialEnd: A starts inside B and runs past its end.
	OverlapPartialEnd OverlapKind = "partial_end"
	// OverlapBuffer: the windows do not touch; only the buffer bridges them.
	OverlapBuffer OverlapKind = "buffer"
)

// Overlap is the result of comparing two windows.
type Overlap struct {
	Overlaps bool
	Minutes  int
	Kind     OverlapKind
}

// DetectOverlap reports whether a and b collide once a is padded by buffer on both ends.
//
// The overlapping span is min(ends) - max(starts) + buffer. That is the padded-A intersection
// whenever the padding stays inside b, and it reads the same from either side. The two differ
// when b lies inside a with room to spare: 09:00-10:30 against 09:30-10:00 with a 15 minute
// buffer gives 45 here and 30 for the padded-A intersection. Any positive span counts;
// sub-minute spans round up to one minute.
func DetectOverlap(a, b TimeWindow, buffer time.Duration) Overlap {
	if buffer < 0 {
		buffer = 0
	}

	latestStart := maxTime(a.Start, b.Start)
	earliestEnd := minTime(a.End(), b.End())
	span := earliestEnd.Sub(latestStart) + buffer
	if span <= 0 {
		return Overlap{Kind: OverlapNone}
	}

	return Overlap{
		Overlaps: true,
		Minutes:  int(math.Ceil(span.Minutes())),
		Kind:     classify(a, b),
	}
}

// Overlaps is the boolean form of DetectOverlap.
func Overlaps(a, b TimeWindow, buffer time.Duration) bool {
	return DetectOverlap(a, b, buffer).Overlaps
}

func classify(a, b TimeWindow) OverlapKind {
	aStart, aEnd := a.Start, a.End()
	bStart, bEnd := b.Start, b.End()

	switch {
	case !aStart.Before(bEnd) || !bStart.Before(aEnd):
		return OverlapBuffer
	case !aStart.After(bStart) && !aEnd.Before(bEnd):
		return OverlapContains
	case !bStart.After(aStart) && !bEnd.Before(aEnd):
		return OverlapContained
	case aStart.Before(bStart):
		return OverlapPartialStart
	default:
		return OverlapPartialEnd
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
