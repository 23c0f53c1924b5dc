// Package listing holds marketplace listings and the queries that order
// them by visibility.
package listing

import (
	"errors"
	"time"

	"github.com/onnwee/marketplace/internal/plan"
	"github.com/onnwee/marketplace/internal/visibility"
)

// Sentinel errors for listing operations.
var (
	ErrNotFound        = errors.New("listing not found")
	ErrNotApproved     = errors.New("listing is not approved")
	ErrInvalidDuration = errors.New("featured duration must be at least one day")
	ErrInvalidPlan     = errors.New("invalid plan assignment")
	ErrReadOnly        = errors.New("listing source is read-only")
)

// Kind is the type of thing a listing advertises.
type Kind string

// Listing kinds.
const (
	KindSalon   Kind = "salon"
	KindService Kind = "service"
	KindProduct Kind = "product"
)

// Listing is a salon, service or product shown in the marketplace.
type Listing struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
	Province   string `json:"province,omitempty"`
	City       string `json:"city,omitempty"`
	Town       string `json:"town,omitempty"`
	PriceCents int    `json:"priceCents"`

	// Plan state. VisibilityWeight is nil until a plan has been assigned.
	PlanCode         plan.Code  `json:"planCode,omitempty"`
	VisibilityWeight *float64   `json:"visibilityWeight,omitempty"`
	MaxListings      int        `json:"maxListings,omitempty"`
	PaymentVerified  bool       `json:"paymentVerified"`
	FeaturedUntil    *time.Time `json:"featuredUntil,omitempty"`

	Approved  bool      `json:"approved"`
	HasImages bool      `json:"hasImages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Visibility projects the listing into the ranker's input.
func (l Listing) Visibility() visibility.Input {
	return visibility.Input{
		VisibilityWeight: l.VisibilityWeight,
		FeaturedUntil:    l.FeaturedUntil,
		CreatedAt:        l.CreatedAt,
	}
}

// clone returns a copy that shares no pointers with l.
func (l Listing) clone() Listing {
	c := l
	if l.VisibilityWeight != nil {
		w := *l.VisibilityWeight
		c.VisibilityWeight = &w
	}
	if l.FeaturedUntil != nil {
		t := *l.FeaturedUntil
		c.FeaturedUntil = &t
	}
	return c
}

func project(l Listing) visibility.Input {
	return l.Visibility()
}
