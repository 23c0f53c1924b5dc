package visibility

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// DefaultFeaturedBoost is added to a listing's score while its featured window is open.
// It must exceed the spread of plan weights (currently 0-5) for featured listings
// to outrank every non-featured one.
const DefaultFeaturedBoost = 10.0

// DefaultWeight is the weight used when a listing carries no usable weight.
const DefaultWeight = 1.0

// Clock returns the current instant.
type Clock func() time.Time

// SystemClock reads the wall clock.
var SystemClock Clock = time.Now

// Ranker scores and compares listings.
// A Ranker holds no mutable state and is safe for concurrent use.
// The zero value uses the wall clock and DefaultFeaturedBoost.
type Ranker struct {
	clock Clock
	boost float64
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithClock sets the clock used to decide whether a featured window is open.
func WithClock(c Clock) Option {
	return func(r *Ranker) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithFeaturedBoost overrides the featured boost.
// Non-positive or non-finite values are ignored.
func WithFeaturedBoost(boost float64) Option {
	return func(r *Ranker) {
		if isPositiveFinite(boost) {
			r.boost = boost
		}
	}
}

// New creates a Ranker.
func New(opts ...Option) *Ranker {
	r := &Ranker{
		clock: SystemClock,
		boost: DefaultFeaturedBoost,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRanker = New()

// FeaturedBoost returns the boost applied to featured listings.
func (r *Ranker) FeaturedBoost() float64 {
	if r == nil || !isPositiveFinite(r.boost) {
		return DefaultFeaturedBoost
	}
	return r.boost
}

// Now returns the ranker's current instant.
func (r *Ranker) Now() time.Time {
	if r == nil || r.clock == nil {
		return SystemClock()
	}
	return r.clock()
}

// Score returns weight + boost for the listing, evaluated at the ranker's current instant.
// It never returns NaN or an infinite value.
func (r *Ranker) Score(in Input) float64 {
	return r.scoreAt(in, r.Now())
}

// IsFeatured reports whether the listing's featured window is open now.
func (r *Ranker) IsFeatured(in Input) bool {
	return in.FeaturedAt(r.Now())
}

// Compare orders a before b when a is more visible.
// Higher score wins; equal scores fall back to the newer CreatedAt.
// The result is negative, zero or positive, suitable for slices.SortStableFunc.
func (r *Ranker) Compare(a, b Input) int {
	now := r.Now()
	if c := cmp.Compare(r.scoreAt(b, now), r.scoreAt(a, now)); c != 0 {
		return c
	}
	return cmp.Compare(b.createdMillis(), a.createdMillis())
}

func (r *Ranker) scoreAt(in Input, now time.Time) float64 {
	score := in.Weight()
	if in.FeaturedAt(now) {
		score += r.FeaturedBoost()
	}
	return score
}

// Sort orders items from most to least visible.
// The sort is stable: listings that compare equal keep their relative order.
// A nil ranker uses the package defaults.
func Sort[T any](r *Ranker, items []T, project func(T) Input) {
	if r == nil {
		r = defaultRanker
	}
	slices.SortStableFunc(items, func(a, b T) int {
		return r.Compare(project(a), project(b))
	})
}

// Score scores a listing against the wall clock with the default boost.
func Score(in Input) float64 {
	return defaultRanker.Score(in)
}

// Compare compares two listings against the wall clock with the default boost.
func Compare(a, b Input) int {
	return defaultRanker.Compare(a, b)
}

// IsFeatured reports whether the listing's featured window is open on the wall clock.
func IsFeatured(in Input) bool {
	return defaultRanker.IsFeatured(in)
}

func isPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
