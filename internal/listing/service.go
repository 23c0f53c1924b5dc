package listing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/marketplace/internal/cache"
	"github.com/onnwee/marketplace/internal/metrics"
	"github.com/onnwee/marketplace/internal/plan"
	"github.com/onnwee/marketplace/internal/tracing"
	"github.com/onnwee/marketplace/internal/visibility"
)

// Defaults for ranked queries.
const (
	DefaultFeaturedPool  = 20
	DefaultFeaturedLimit = 5
	DefaultPageSize      = 10
)

// Cache keys for ranked ID lists. The featured key carries the pool and limit.
const (
	cacheKeyFeatured = "featured:%d:%d"
	cacheKeyApproved = "approved"
)

// SortBy selects the order of search results.
type SortBy string

// Search orders.
const (
	SortRelevance SortBy = "relevance"
	SortPrice     SortBy = "price"
	SortLatest    SortBy = "latest"
)

// ParseSortBy maps a query parameter onto a SortBy.
// Unknown or empty values fall back to SortRelevance.
func ParseSortBy(s string) SortBy {
	switch SortBy(strings.ToLower(strings.TrimSpace(s))) {
	case SortPrice:
		return SortPrice
	case SortLatest:
		return SortLatest
	default:
		return SortRelevance
	}
}

// PageResult is one page of the ranked approved listings.
type PageResult struct {
	Items      []Listing `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"currentPage"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
}

// FeaturedOverview splits approved listings for the featured-placement admin view.
type FeaturedOverview struct {
	// Featured is ordered by weight, then by the latest window end.
	Featured []Listing `json:"featured"`
	// Available is ordered by title.
	Available []Listing `json:"available"`
}

// Service answers ranked listing queries and applies visibility changes.
// Safe for concurrent use.
type Service struct {
	src         Source
	ranker      *visibility.Ranker
	cache       cache.RankCache
	cacheTTL    time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	storedPlans map[plan.Code]plan.Plan

	featuredPool  int
	featuredLimit int
	pageSize      int
}

// Option configures a Service.
type Option func(*Service)

// WithCache serves ranked lists from c. A non-positive ttl uses the cache default.
func WithCache(c cache.RankCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithMetrics records query metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFeatured sets how many approved listings the featured feed considers
// and how many it returns. Non-positive values keep the defaults.
func WithFeatured(pool, limit int) Option {
	return func(s *Service) {
		if pool > 0 {
			s.featuredPool = pool
		}
		if limit > 0 {
			s.featuredLimit = limit
		}
	}
}

// WithDefaultPageSize sets the page size used when a caller passes none.
func WithDefaultPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithStoredPlans supplies plan rows that take precedence over the built-in catalog.
func WithStoredPlans(plans []plan.Plan) Option {
	return func(s *Service) {
		for _, p := range plans {
			s.storedPlans[p.Code] = p
		}
	}
}

// NewService creates a Service over src. A nil ranker uses the wall clock
// and the default featured boost.
func NewService(src Source, ranker *visibility.Ranker, opts ...Option) *Service {
	if ranker == nil {
		ranker = visibility.New()
	}
	s := &Service{
		src:           src,
		ranker:        ranker,
		logger:        slog.Default(),
		storedPlans:   make(map[plan.Code]plan.Plan),
		featuredPool:  DefaultFeaturedPool,
		featuredLimit: DefaultFeaturedLimit,
		pageSize:      DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Featured returns the home-page feed: the first FeaturedPool approved
// listings from the source, ranked, cut to FeaturedLimit.
func (s *Service) Featured(ctx context.Context) (items []Listing, err error) {
	ctx, endSpan := tracing.StartRankSpan(ctx, metrics.OperationFeatured)
	defer func() { endSpan(err) }()
	defer s.observe(metrics.OperationFeatured, time.Now())

	return s.ranked(ctx, s.featuredKey(), func(ctx context.Context) ([]Listing, error) {
		pool, err := s.src.Approved(ctx, Filter{})
		if err != nil {
			return nil, fmt.Errorf("failed to load featured pool: %w", err)
		}
		if len(pool) > s.featuredPool {
			pool = pool[:s.featuredPool]
		}
		s.sort(pool)
		if len(pool) > s.featuredLimit {
			pool = pool[:s.featuredLimit]
		}
		return pool, nil
	})
}

// Page ranks every approved listing with images and returns one page.
// page < 1 is treated as 1 and pageSize < 1 as the default page size.
func (s *Service) Page(ctx context.Context, page, pageSize int) (result PageResult, err error) {
	ctx, endSpan := tracing.StartRankSpan(ctx, metrics.OperationPage)
	defer func() { endSpan(err) }()
	defer s.observe(metrics.OperationPage, time.Now())

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.pageSize
	}

	all, err := s.ranked(ctx, cacheKeyApproved, func(ctx context.Context) ([]Listing, error) {
		items, err := s.src.Approved(ctx, Filter{RequireImages: true})
		if err != nil {
			return nil, fmt.Errorf("failed to load approved listings: %w", err)
		}
		s.sort(items)
		return items, nil
	})
	if err != nil {
		return PageResult{}, err
	}

	total := len(all)
	result = PageResult{
		Items:      []Listing{},
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}

	start := (page - 1) * pageSize
	if start < total {
		end := min(start+pageSize, total)
		result.Items = all[start:end]
	}
	return result, nil
}

// Search returns approved listings with images that match f.
// SortRelevance ranks by visibility; SortPrice orders by ascending price
// and SortLatest by descending creation time, both ignoring visibility.
func (s *Service) Search(ctx context.Context, f Filter, sortBy SortBy) (items []Listing, err error) {
	ctx, endSpan := tracing.StartRankSpan(ctx, metrics.OperationSearch)
	defer func() { endSpan(err) }()
	defer s.observe(metrics.OperationSearch, time.Now())

	f.RequireImages = true
	items, err = s.src.Approved(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}

	switch sortBy {
	case SortPrice:
		slices.SortStableFunc(items, func(a, b Listing) int {
			return cmp.Compare(a.PriceCents, b.PriceCents)
		})
	case SortLatest:
		slices.SortStableFunc(items, func(a, b Listing) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	default:
		s.sort(items)
	}

	tracing.SetAttributes(ctx, attribute.String("search.sort", string(sortBy)))
	return items, nil
}

// Feature opens a featured window on an approved listing, ending
// durationDays calendar days from now. An existing window is replaced.
func (s *Service) Feature(ctx context.Context, id string, durationDays int) (l Listing, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "listing.feature", attribute.String("listing.id", id))
	defer func() { endSpan(err) }()

	if durationDays < 1 {
		return Listing{}, fmt.Errorf("failed to feature listing %s: %w", id, ErrInvalidDuration)
	}

	l, err = s.get(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	if !l.Approved {
		return Listing{}, fmt.Errorf("failed to feature listing %s: %w", id, ErrNotApproved)
	}

	until := s.ranker.Now().AddDate(0, 0, durationDays)
	l.FeaturedUntil = &until

	if l, err = s.save(ctx, l); err != nil {
		return Listing{}, err
	}

	s.logger.Info("listing featured",
		"listing_id", id,
		"duration_days", durationDays,
		"featured_until", until)
	return l, nil
}

// Unfeature closes a listing's featured window.
func (s *Service) Unfeature(ctx context.Context, id string) (l Listing, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "listing.unfeature", attribute.String("listing.id", id))
	defer func() { endSpan(err) }()

	l, err = s.get(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	l.FeaturedUntil = nil

	if l, err = s.save(ctx, l); err != nil {
		return Listing{}, err
	}

	s.logger.Info("listing unfeatured", "listing_id", id)
	return l, nil
}

// SetPlan moves a listing to the plan named by code and applies the
// resulting weight and listing cap. An absent or unknown code keeps the
// listing's current plan code but still resets weight and cap to the
// defaults unless overrides supply them.
func (s *Service) SetPlan(ctx context.Context, id, code string, o plan.Overrides) (l Listing, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "listing.set_plan",
		attribute.String("listing.id", id),
		attribute.String("plan.code", code),
	)
	defer func() { endSpan(err) }()

	if o.VisibilityWeight != nil && *o.VisibilityWeight < 0 {
		return Listing{}, fmt.Errorf("visibility weight %d: %w", *o.VisibilityWeight, ErrInvalidPlan)
	}
	if o.MaxListings != nil && *o.MaxListings < 0 {
		return Listing{}, fmt.Errorf("max listings %d: %w", *o.MaxListings, ErrInvalidPlan)
	}

	l, err = s.get(ctx, id)
	if err != nil {
		return Listing{}, err
	}

	var stored *plan.Plan
	if c, ok := plan.NormalizeCode(code); ok {
		if p, ok := s.storedPlans[c]; ok {
			stored = &p
		}
	}
	a := plan.Resolve(code, stored, o)

	if a.Code != "" {
		l.PlanCode = a.Code
	}
	weight := float64(a.VisibilityWeight)
	l.VisibilityWeight = &weight
	l.MaxListings = a.MaxListings
	if a.PaymentVerified {
		l.PaymentVerified = true
	}
	if a.SetFeaturedUntil {
		l.FeaturedUntil = a.FeaturedUntil
	}

	if l, err = s.save(ctx, l); err != nil {
		return Listing{}, err
	}

	s.logger.Info("listing visibility updated",
		"listing_id", id,
		"plan_code", l.PlanCode,
		"visibility_weight", a.VisibilityWeight,
		"max_listings", a.MaxListings,
		"featured_until", l.FeaturedUntil)
	return l, nil
}

// ManageFeatured splits approved listings into those with an open featured
// window and those available to feature. A window ending exactly now still
// counts as featured here.
func (s *Service) ManageFeatured(ctx context.Context) (overview FeaturedOverview, err error) {
	ctx, endSpan := tracing.StartRankSpan(ctx, metrics.OperationManageFeatured)
	defer func() { endSpan(err) }()
	defer s.observe(metrics.OperationManageFeatured, time.Now())

	all, err := s.src.Approved(ctx, Filter{})
	if err != nil {
		return FeaturedOverview{}, fmt.Errorf("failed to load approved listings: %w", err)
	}

	now := s.ranker.Now()
	overview = FeaturedOverview{Featured: []Listing{}, Available: []Listing{}}
	for _, l := range all {
		if l.FeaturedUntil != nil && !l.FeaturedUntil.Before(now) {
			overview.Featured = append(overview.Featured, l)
		} else {
			overview.Available = append(overview.Available, l)
		}
	}

	slices.SortStableFunc(overview.Featured, func(a, b Listing) int {
		if c := cmp.Compare(b.Visibility().Weight(), a.Visibility().Weight()); c != 0 {
			return c
		}
		return b.FeaturedUntil.Compare(*a.FeaturedUntil)
	})
	slices.SortStableFunc(overview.Available, func(a, b Listing) int {
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})

	return overview, nil
}

// InvalidateRankings drops every cached ranked list.
func (s *Service) InvalidateRankings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate ranking cache", "error", err)
	}
}

func (s *Service) get(ctx context.Context, id string) (Listing, error) {
	l, err := s.src.Get(ctx, id)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to get listing %s: %w", id, err)
	}
	return l, nil
}

func (s *Service) save(ctx context.Context, l Listing) (Listing, error) {
	saved, err := s.src.Save(ctx, l)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to save listing %s: %w", l.ID, err)
	}
	s.InvalidateRankings(ctx)
	return saved, nil
}

func (s *Service) sort(items []Listing) {
	visibility.Sort(s.ranker, items, project)
	if s.metrics != nil {
		s.metrics.ObserveListingsRanked(len(items))
	}
}

func (s *Service) observe(operation string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncOperation(operation)
	s.metrics.ObserveDuration(operation, time.Since(start).Seconds())
}

// ranked serves the list stored under key from cache, or computes it with
// load and caches the resulting IDs. Cache failures are logged and never
// fail the query.
func (s *Service) ranked(ctx context.Context, key string, load func(context.Context) ([]Listing, error)) ([]Listing, error) {
	if items, ok := s.fromCache(ctx, key); ok {
		tracing.SetAttributes(ctx, tracing.AttrCacheHit.Bool(true), tracing.AttrRankCount.Int(len(items)))
		return items, nil
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}
	tracing.SetAttributes(ctx, tracing.AttrCacheHit.Bool(false), tracing.AttrRankCount.Int(len(items)))

	if s.cache != nil {
		ids := make([]string, len(items))
		for i, l := range items {
			ids[i] = l.ID
		}
		if err := s.cache.SetPage(ctx, key, ids, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache ranked listings", "key", key, "error", err)
		}
	}
	return items, nil
}

// fromCache resolves cached IDs back into listings. Any ID that no longer
// resolves to an approved listing turns the hit into a miss.
func (s *Service) fromCache(ctx context.Context, key string) ([]Listing, bool) {
	if s.cache == nil {
		return nil, false
	}

	ids, ok, err := s.cache.GetPage(ctx, key)
	if err != nil {
		s.logger.Warn("ranking cache read failed", "key", key, "error", err)
	}
	if err != nil || !ok {
		s.countCache(false)
		return nil, false
	}

	items := make([]Listing, 0, len(ids))
	for _, id := range ids {
		l, err := s.src.Get(ctx, id)
		if err != nil || !l.Approved {
			if err != nil && !errors.Is(err, ErrNotFound) {
				s.logger.Warn("failed to resolve cached listing", "listing_id", id, "error", err)
			}
			s.countCache(false)
			return nil, false
		}
		items = append(items, l)
	}

	s.countCache(true)
	return items, true
}

func (s *Service) featuredKey() string {
	return fmt.Sprintf(cacheKeyFeatured, s.featuredPool, s.featuredLimit)
}

func (s *Service) countCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.IncCacheHits()
	} else {
		s.metrics.IncCacheMisses()
	}
}
