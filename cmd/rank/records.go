package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/onnwee/marketplace/internal/listing"
	"github.com/onnwee/marketplace/internal/plan"
	"github.com/onnwee/marketplace/internal/visibility"
)

// record is one input element. Ranking fields are decoded leniently by
// visibility.Input; the rest feeds the listing queries.
type record struct {
	input   visibility.Input
	listing listing.Listing
}

type rawRecord struct {
	ID         any    `json:"id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	Province   string `json:"province"`
	City       string `json:"city"`
	Town       string `json:"town"`
	PriceCents int    `json:"priceCents"`
	PlanCode   string `json:"planCode"`
	Approved   *bool  `json:"approved"`
	HasImages  *bool  `json:"hasImages"`
}

// decodeRecords reads a JSON array. approved and hasImages default to true
// so a bare ranking fixture is visible in every mode.
func decodeRecords(r io.Reader) ([]record, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}

	records := make([]record, 0, len(raw))
	for i, msg := range raw {
		var in visibility.Input
		if err := json.Unmarshal(msg, &in); err != nil {
			return nil, fmt.Errorf("listing %d: %w", i, err)
		}
		var fields rawRecord
		if err := json.Unmarshal(msg, &fields); err != nil {
			return nil, fmt.Errorf("listing %d: %w", i, err)
		}

		l := listing.Listing{
			ID:               idString(fields.ID, i),
			Kind:             listing.Kind(fields.Kind),
			Title:            fields.Title,
			Category:         fields.Category,
			Province:         fields.Province,
			City:             fields.City,
			Town:             fields.Town,
			PriceCents:       fields.PriceCents,
			VisibilityWeight: in.VisibilityWeight,
			FeaturedUntil:    in.FeaturedUntil,
			Approved:         fields.Approved == nil || *fields.Approved,
			HasImages:        fields.HasImages == nil || *fields.HasImages,
			CreatedAt:        in.CreatedAt,
		}
		if code, ok := plan.NormalizeCode(fields.PlanCode); ok {
			l.PlanCode = code
		}
		records = append(records, record{input: in, listing: l})
	}
	return records, nil
}

// idString accepts string or numeric IDs. Missing IDs become the element index.
func idString(v any, index int) string {
	switch id := v.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	}
	return strconv.Itoa(index)
}

// scored is one output row.
type scored struct {
	ID        string  `json:"id"`
	Title     string  `json:"title,omitempty"`
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Featured  bool    `json:"featured"`
	CreatedAt string  `json:"createdAt,omitempty"`
}

type scoredPage struct {
	Items      []scored `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"currentPage"`
	PageSize   int      `json:"pageSize"`
	TotalPages int      `json:"totalPages"`
}

func score(r *visibility.Ranker, l listing.Listing) scored {
	in := l.Visibility()
	s := scored{
		ID:       l.ID,
		Title:    l.Title,
		Score:    r.Score(in),
		Weight:   in.Weight(),
		Featured: r.IsFeatured(in),
	}
	if !l.CreatedAt.IsZero() {
		s.CreatedAt = l.CreatedAt.UTC().Format(time.RFC3339)
	}
	return s
}

func scoreAll(r *visibility.Ranker, items []listing.Listing) []scored {
	out := make([]scored, len(items))
	for i, l := range items {
		out[i] = score(r, l)
	}
	return out
}
