package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/onnwee/marketplace/internal/visibility"
)

// SnapshotSource serves listings from a JSON export of the primary store.
// The file is re-read on every call, so a refreshed export is picked up
// without a restart. It is read-only: Save returns ErrReadOnly.
type SnapshotSource struct {
	path string
}

// NewSnapshotSource reads listings from the JSON array at path.
func NewSnapshotSource(path string) *SnapshotSource {
	return &SnapshotSource{path: path}
}

// Approved returns approved listings matching f, in file order.
func (s *SnapshotSource) Approved(ctx context.Context, f Filter) ([]Listing, error) {
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(all))
	for _, l := range all {
		if l.Approved && f.Matches(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Get returns the listing with the given ID, approved or not.
func (s *SnapshotSource) Get(ctx context.Context, id string) (Listing, error) {
	all, err := s.load(ctx)
	if err != nil {
		return Listing{}, err
	}
	for _, l := range all {
		if l.ID == id {
			return l, nil
		}
	}
	return Listing{}, ErrNotFound
}

// Save always fails. Snapshots are written by the primary store's export.
func (s *SnapshotSource) Save(context.Context, Listing) (Listing, error) {
	return Listing{}, ErrReadOnly
}

// snapshotRecord shadows the ranking fields of Listing so they can be
// decoded leniently by visibility.Input.
type snapshotRecord struct {
	Listing
	VisibilityWeight json.RawMessage `json:"visibilityWeight"`
	FeaturedUntil    json.RawMessage `json:"featuredUntil"`
	CreatedAt        json.RawMessage `json:"createdAt"`
}

// decodeListing reads one snapshot element. Weights may be numbers or
// numeric strings and timestamps may be strings or epoch milliseconds.
func decodeListing(msg json.RawMessage) (Listing, error) {
	var rec snapshotRecord
	if err := json.Unmarshal(msg, &rec); err != nil {
		return Listing{}, err
	}
	var in visibility.Input
	if err := json.Unmarshal(msg, &in); err != nil {
		return Listing{}, err
	}

	l := rec.Listing
	l.VisibilityWeight = in.VisibilityWeight
	l.FeaturedUntil = in.FeaturedUntil
	l.CreatedAt = in.CreatedAt
	return l, nil
}

func (s *SnapshotSource) load(ctx context.Context) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read listing snapshot: %w", err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse listing snapshot %s: %w", s.path, err)
	}

	listings := make([]Listing, 0, len(raw))
	for i, msg := range raw {
		l, err := decodeListing(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse listing %d of snapshot %s: %w", i, s.path, err)
		}
		listings = append(listings, l)
	}
	return listings, nil
}
