// Package locstore owns the canonical list of location records.
//
// Store is the persistence contract (SQLite and MongoDB backends live in
// this package). Service wraps a Store and carries the session's current
// filter and sort so callers never pass them around by hand.
package locstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rubiojr/pinmap/pkg/geo"
)

var (
	// ErrNotFound is returned when a lookup, update or removal targets a missing id.
	ErrNotFound = errors.New("location not found")
	// ErrInvalid is returned when a record fails validation (empty name, rate out of range).
	ErrInvalid = errors.New("invalid location")
)

const (
	MinRate = 1
	MaxRate = 5
)

// Geo is a location's position plus an optional human readable address.
type Geo struct {
	Lat     float64 `json:"lat" bson:"lat"`
	Lng     float64 `json:"lng" bson:"lng"`
	Address string  `json:"address,omitempty" bson:"address,omitempty"`
}

// Coords drops the address.
func (g Geo) Coords() geo.Coords {
	return geo.Coords{Lat: g.Lat, Lng: g.Lng}
}

// Location is a persisted, named and rated point. Timestamps are epoch milliseconds.
type Location struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Rate      int    `json:"rate"`
	Geo       Geo    `json:"geo"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Validate checks the fields a caller controls.
func (l Location) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalid)
	}
	if l.Rate < MinRate || l.Rate > MaxRate {
		return fmt.Errorf("%w: rate %d outside [%d,%d]", ErrInvalid, l.Rate, MinRate, MaxRate)
	}
	return nil
}

// Filter narrows the displayed set. A zero Filter matches everything.
type Filter struct {
	Text    string `json:"txt"`
	MinRate int    `json:"minRate"`
}

// Normalize trims the text and clamps MinRate to [0, MaxRate].
func (f Filter) Normalize() Filter {
	f.Text = strings.TrimSpace(f.Text)
	if f.MinRate < 0 {
		f.MinRate = 0
	}
	if f.MinRate > MaxRate {
		f.MinRate = MaxRate
	}
	return f
}

// ParseMinRate reads a minimum rating typed by the user. Ratings are whole
// numbers, so a fraction rounds up; the result is clamped to [0, MaxRate]
// and anything that is not a number reads as zero.
func ParseMinRate(raw string) int {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if (err != nil && !errors.Is(err, strconv.ErrRange)) || math.IsNaN(n) {
		return 0
	}
	n = math.Ceil(n)
	switch {
	case n <= 0:
		return 0
	case n >= MaxRate:
		return MaxRate
	}
	return int(n)
}

// Match reports whether l passes the filter. Backends push the same
// predicate down to their query language.
func (f Filter) Match(l Location) bool {
	if l.Rate < f.MinRate {
		return false
	}
	if f.Text == "" {
		return true
	}
	needle := strings.ToLower(f.Text)
	return strings.Contains(strings.ToLower(l.Name), needle) ||
		strings.Contains(strings.ToLower(l.Geo.Address), needle)
}

// SortField names a sortable column.
type SortField string

const (
	SortNone      SortField = ""
	SortName      SortField = "name"
	SortRate      SortField = "rate"
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
)

// ParseSortField accepts the field names used on the wire.
func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.TrimSpace(s)); f {
	case SortNone, SortName, SortRate, SortCreatedAt, SortUpdatedAt:
		return f, nil
	default:
		return SortNone, fmt.Errorf("%w: unknown sort field %q", ErrInvalid, s)
	}
}

// Sort is a single-field ordering directive. Dir is +1 (ascending) or -1 (descending).
type Sort struct {
	Field SortField `json:"field,omitempty"`
	Dir   int       `json:"dir,omitempty"`
}

// NewSort builds a directive; desc selects -1.
func NewSort(field SortField, desc bool) Sort {
	dir := 1
	if desc {
		dir = -1
	}
	return Sort{Field: field, Dir: dir}
}

// Descending reports whether the directive sorts high to low.
func (s Sort) Descending() bool {
	return s.Dir < 0
}

// Store is the persistence contract for locations.
type Store interface {
	Create(ctx context.Context, loc Location) (Location, error)
	GetByID(ctx context.Context, id string) (Location, error)
	Update(ctx context.Context, loc Location) (Location, error)
	Remove(ctx context.Context, id string) error
	Query(ctx context.Context, f Filter, s Sort) ([]Location, error)
	CountByRating(ctx context.Context) (Tally, error)
	CountByRecency(ctx context.Context) (Tally, error)
	Close() error
}
