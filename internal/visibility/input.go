package visibility

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Input is the read-only view of a listing used for ranking.
// Callers build it from whatever record they own at query time.
type Input struct {
	// VisibilityWeight is the plan-tier weight. nil, NaN, infinite or
	// non-positive values count as DefaultWeight.
	VisibilityWeight *float64 `json:"visibilityWeight"`

	// FeaturedUntil ends the featured window. nil means never featured.
	FeaturedUntil *time.Time `json:"featuredUntil"`

	// CreatedAt breaks score ties, newest first. The zero value ranks as the Unix epoch.
	CreatedAt time.Time `json:"createdAt"`
}

// WeightOf returns a pointer to w, for building an Input inline.
func WeightOf(w float64) *float64 {
	return &w
}

// TimeOf returns a pointer to t, for building an Input inline.
func TimeOf(t time.Time) *time.Time {
	return &t
}

// Weight returns the normalized weight used in the score.
func (in Input) Weight() float64 {
	if in.VisibilityWeight == nil || !isPositiveFinite(*in.VisibilityWeight) {
		return DefaultWeight
	}
	return *in.VisibilityWeight
}

// FeaturedAt reports whether the featured window is open at now.
// The window is open strictly before FeaturedUntil.
func (in Input) FeaturedAt(now time.Time) bool {
	return in.FeaturedUntil != nil && in.FeaturedUntil.After(now)
}

func (in Input) createdMillis() int64 {
	if in.CreatedAt.IsZero() {
		return 0
	}
	return in.CreatedAt.UnixMilli()
}

// UnmarshalJSON accepts the loose shapes upstream records use: weights as numbers,
// numeric strings or null; timestamps as RFC 3339 or date strings, epoch
// milliseconds, or null. Fields that cannot be interpreted are left at their
// defaults rather than failing the decode.
func (in *Input) UnmarshalJSON(data []byte) error {
	var raw struct {
		VisibilityWeight any `json:"visibilityWeight"`
		FeaturedUntil    any `json:"featuredUntil"`
		CreatedAt        any `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*in = Input{}
	if w, ok := ParseWeight(raw.VisibilityWeight); ok {
		in.VisibilityWeight = &w
	}
	if t, ok := ParseTime(raw.FeaturedUntil); ok {
		in.FeaturedUntil = &t
	}
	if t, ok := ParseTime(raw.CreatedAt); ok {
		in.CreatedAt = t
	}
	return nil
}

// ParseWeight interprets v as a numeric weight.
// It reports false for nil, non-numeric and NaN values. Range checks are left to Input.Weight.
func ParseWeight(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case *float64:
		if x == nil {
			return 0, false
		}
		f = *x
	case *int:
		if x == nil {
			return 0, false
		}
		f = float64(*x)
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// maxEpochMillis bounds numeric timestamps to the range a Date can represent.
const maxEpochMillis = 8.64e15

// timeLayouts are tried in order for string timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime interprets v as an instant.
// Numbers and numeric strings are epoch milliseconds. Zone-less strings
// ("2025-03-04T05:06:07", "2025-03-04") are read as UTC, never in the
// host's local zone.
func ParseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case *time.Time:
		if x == nil || x.IsZero() {
			return time.Time{}, false
		}
		return *x, true
	case string:
		return parseTimeString(x)
	default:
		ms, ok := ParseWeight(v)
		if !ok || math.Abs(ms) > maxEpochMillis {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(ms)).UTC(), true
	}
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}
