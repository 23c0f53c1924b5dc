// Package plan defines the subscription tiers sellers and salons can hold
// and how a tier translates into listing visibility.
package plan

import (
	"slices"
	"strings"
	"time"
)

// Code identifies a subscription tier.
type Code string

// Tier codes. FREE and STARTER are grandfathered and not offered to new signups.
const (
	CodeFree      Code = "FREE"
	CodeStarter   Code = "STARTER"
	CodeEssential Code = "ESSENTIAL"
	CodeGrowth    Code = "GROWTH"
	CodePro       Code = "PRO"
	CodeElite     Code = "ELITE"
)

// DefaultCode is assigned to new signups.
const DefaultCode = CodeEssential

// Fallbacks used when neither an override nor a stored plan row supplies a value.
const (
	DefaultVisibilityWeight = 1
	DefaultMaxListings      = 2
)

// UnlimitedListings is the listing cap stored for unlimited tiers.
const UnlimitedListings = 9999

// Plan describes a tier's visibility and limits.
type Plan struct {
	Code             Code   `json:"code"`
	Name             string `json:"name"`
	VisibilityWeight int    `json:"visibility_weight"`
	MaxListings      int    `json:"max_listings"`
	PriceCents       int    `json:"price_cents"`
	Legacy           bool   `json:"legacy,omitempty"`
}

// Unlimited reports whether the plan has no practical listing cap.
func (p Plan) Unlimited() bool {
	return p.MaxListings >= UnlimitedListings
}

// catalog is ordered from the lowest to the highest tier.
var catalog = []Plan{
	{Code: CodeFree, Name: "Free (Legacy)", VisibilityWeight: 0, MaxListings: 1, PriceCents: 0, Legacy: true},
	{Code: CodeStarter, Name: "Starter (Legacy)", VisibilityWeight: 1, MaxListings: 3, PriceCents: 4900, Legacy: true},
	{Code: CodeEssential, Name: "Essential", VisibilityWeight: 2, MaxListings: 7, PriceCents: 9900},
	{Code: CodeGrowth, Name: "Growth", VisibilityWeight: 3, MaxListings: 15, PriceCents: 19900},
	{Code: CodePro, Name: "Pro", VisibilityWeight: 4, MaxListings: 27, PriceCents: 29900},
	{Code: CodeElite, Name: "Elite", VisibilityWeight: 5, MaxListings: UnlimitedListings, PriceCents: 49900},
}

// All returns every plan, legacy tiers first.
func All() []Plan {
	return slices.Clone(catalog)
}

// Active returns the plans offered to new signups.
func Active() []Plan {
	return filter(func(p Plan) bool { return !p.Legacy })
}

// Legacy returns the grandfathered plans.
func Legacy() []Plan {
	return filter(func(p Plan) bool { return p.Legacy })
}

func filter(keep func(Plan) bool) []Plan {
	var out []Plan
	for _, p := range catalog {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the catalog entry for a code. The code is normalized first.
func Lookup(code string) (Plan, bool) {
	c, ok := NormalizeCode(code)
	if !ok {
		return Plan{}, false
	}
	for _, p := range catalog {
		if p.Code == c {
			return p, true
		}
	}
	return Plan{}, false
}

// NormalizeCode trims and upper-cases a raw plan code.
// Empty input and the literal strings "undefined" and "null" (as sent by
// some form clients) are treated as absent.
func NormalizeCode(raw string) (Code, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "undefined") || strings.EqualFold(s, "null") {
		return "", false
	}
	c := Code(strings.ToUpper(s))
	for _, p := range catalog {
		if p.Code == c {
			return c, true
		}
	}
	return "", false
}

// Overrides carries admin-supplied values that win over the catalog.
type Overrides struct {
	VisibilityWeight *int
	MaxListings      *int

	// FeaturedUntil is applied only when SetFeaturedUntil is true;
	// a nil FeaturedUntil then clears the featured window.
	FeaturedUntil    *time.Time
	SetFeaturedUntil bool
}

// Assignment is the result of resolving a plan change.
type Assignment struct {
	// Code is empty when the requested code was absent or unknown; the
	// listing then keeps its current plan code.
	Code             Code
	VisibilityWeight int
	MaxListings      int
	PriceCents       *int

	// PaymentVerified is set for FREE, which needs no payment proof.
	PaymentVerified bool

	FeaturedUntil    *time.Time
	SetFeaturedUntil bool
}

// Resolve computes the values a listing takes on when moved to code.
//
// Each value is taken from the first source that supplies it:
//   - visibility weight: override, stored plan row, catalog, DefaultVisibilityWeight
//   - max listings: override, stored plan row, catalog, DefaultMaxListings
//   - price: stored plan row, catalog, otherwise left unset
//
// stored is the plan row persisted for code, if the deployment keeps one.
// Stored rows are ignored for unknown codes.
func Resolve(code string, stored *Plan, o Overrides) Assignment {
	c, valid := NormalizeCode(code)

	var fallback *Plan
	if valid {
		if p, ok := Lookup(string(c)); ok {
			fallback = &p
		}
	} else {
		stored = nil
	}

	a := Assignment{
		Code:             c,
		VisibilityWeight: DefaultVisibilityWeight,
		MaxListings:      DefaultMaxListings,
		PaymentVerified:  c == CodeFree,
		FeaturedUntil:    o.FeaturedUntil,
		SetFeaturedUntil: o.SetFeaturedUntil,
	}

	switch {
	case o.VisibilityWeight != nil:
		a.VisibilityWeight = *o.VisibilityWeight
	case stored != nil:
		a.VisibilityWeight = stored.VisibilityWeight
	case fallback != nil:
		a.VisibilityWeight = fallback.VisibilityWeight
	}

	switch {
	case o.MaxListings != nil:
		a.MaxListings = *o.MaxListings
	case stored != nil:
		a.MaxListings = stored.MaxListings
	case fallback != nil:
		a.MaxListings = fallback.MaxListings
	}

	switch {
	case stored != nil:
		price := stored.PriceCents
		a.PriceCents = &price
	case fallback != nil:
		price := fallback.PriceCents
		a.PriceCents = &price
	}

	return a
}
