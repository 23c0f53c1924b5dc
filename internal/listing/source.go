package listing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Filter narrows the approved listings a Source returns.
// Zero-valued fields do not filter.
type Filter struct {
	// Query and Category are case-insensitive substring matches on
	// title and category. Province must match exactly, ignoring case.
	// City matches either the listing's city or its town.
	Query    string
	Category string
	Province string
	City     string
	PriceMin *int
	PriceMax *int

	// RequireImages drops listings without at least one image.
	RequireImages bool
}

// Matches reports whether l passes every set field of f.
// It does not check approval.
func (f Filter) Matches(l Listing) bool {
	if f.RequireImages && !l.HasImages {
		return false
	}
	if !containsFold(l.Category, f.Category) {
		return false
	}
	if f.Province != "" && !strings.EqualFold(l.Province, f.Province) {
		return false
	}
	if f.City != "" && !strings.EqualFold(l.City, f.City) && !strings.EqualFold(l.Town, f.City) {
		return false
	}
	if f.PriceMin != nil && l.PriceCents < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && l.PriceCents > *f.PriceMax {
		return false
	}
	return containsFold(l.Title, f.Query)
}

// containsFold reports whether s contains substr ignoring case. An empty
// (or all-space) substr always matches.
func containsFold(s, substr string) bool {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// Source is the persistence collaborator behind Service.
type Source interface {
	// Approved returns approved listings matching f in the source's natural order.
	Approved(ctx context.Context, f Filter) ([]Listing, error)

	// Get returns a listing by ID, approved or not. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (Listing, error)

	// Save inserts or replaces a listing and returns the stored copy.
	// An empty ID is assigned a new UUID.
	Save(ctx context.Context, l Listing) (Listing, error)
}

// MemorySource is an in-memory Source.
// Thread-safe via RWMutex. Listings are returned in insertion order.
type MemorySource struct {
	mu       sync.RWMutex
	listings map[string]Listing
	order    []string
	now      func() time.Time
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		listings: make(map[string]Listing),
		now:      time.Now,
	}
}

// Approved returns approved listings matching f.
func (s *MemorySource) Approved(ctx context.Context, f Filter) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Listing, 0, len(s.order))
	for _, id := range s.order {
		l := s.listings[id]
		if l.Approved && f.Matches(l) {
			out = append(out, l.clone())
		}
	}
	return out, nil
}

// Get returns a copy of the listing with the given ID.
func (s *MemorySource) Get(ctx context.Context, id string) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return Listing{}, ErrNotFound
	}
	return l.clone(), nil
}

// Save stores a copy of l. New listings without a CreatedAt get the current time.
func (s *MemorySource) Save(ctx context.Context, l Listing) (Listing, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if _, exists := s.listings[l.ID]; !exists {
		if l.CreatedAt.IsZero() {
			l.CreatedAt = s.now()
		}
		s.order = append(s.order, l.ID)
	}

	stored := l.clone()
	s.listings[l.ID] = stored
	return stored.clone(), nil
}

// Len returns the number of stored listings.
func (s *MemorySource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
