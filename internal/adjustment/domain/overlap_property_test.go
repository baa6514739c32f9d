package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func window(startMinute, minutes int) domain.TimeWindow {
	return domain.TimeWindow{Start: day.Add(time.Duration(startMinute) * time.Minute), DurationMinutes: minutes}
}

// TestOverlapSymmetry checks overlap(A,B) == overlap(B,A) for any pair and buffer.
func TestOverlapSymmetry(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("overlap is symmetric", prop.ForAll(
		func(aStart, aLen, bStart, bLen, buffer int) bool {
			a, b := window(aStart, aLen), window(bStart, bLen)
			buf := time.Duration(buffer) * time.Minute
			ab := domain.DetectOverlap(a, b, buf)
			ba := domain.DetectOverlap(b, a, buf)
			return ab.Overlaps == ba.Overlaps && ab.Minutes == ba.Minutes
		},
		gen.IntRange(0, 24*60),
		gen.IntRange(0, 240),
		gen.IntRange(0, 24*60),
		gen.IntRange(0, 240),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}

// TestOverlapNoFalseNegatives compares against a minute-by-minute scan of padded A against B.
func TestOverlapNoFalseNegatives(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("shared minutes are always reported", prop.ForAll(
		func(aStart, aLen, bStart, bLen, buffer int) bool {
			shared := 0
			for m := aStart - buffer; m < aStart+aLen+buffer; m++ {
				if m >= bStart && m < bStart+bLen {
					shared++
				}
			}

			got := domain.DetectOverlap(window(aStart, aLen), window(bStart, bLen), time.Duration(buffer)*time.Minute)
			if shared == 0 {
				return !got.Overlaps
			}
			return got.Overlaps && got.Minutes >= 1
		},
		gen.IntRange(0, 12*60),
		gen.IntRange(1, 180),
		gen.IntRange(0, 12*60),
		gen.IntRange(1, 180),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
