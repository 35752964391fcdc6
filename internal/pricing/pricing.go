// Package pricing computes the step between consecutive bids from a
// tournament's configured price bands.
package pricing

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Band is a price range with the increment applied to bids inside it.
// A nil MaxPrice makes the band unbounded above.
type Band struct {
	MinPrice  int64  `json:"minPrice"`
	MaxPrice  *int64 `json:"maxPrice"`
	Increment int64  `json:"increment"`
}

// Contains reports whether price falls inside the band, bounds inclusive.
func (b Band) Contains(price int64) bool {
	if price < b.MinPrice {
		return false
	}
	return b.MaxPrice == nil || price <= *b.MaxPrice
}

// Increment returns the step for the next bid above current. Bands are
// scanned in ascending MinPrice order and the first containing band wins,
// so overlapping bands resolve to the lower one. With no bands, or no band
// containing current, the DefaultIncrement schedule applies.
func Increment(current int64, bands []Band) int64 {
	for _, b := range sorted(bands) {
		if b.Contains(current) {
			return b.Increment
		}
	}
	return DefaultIncrement(current)
}

// DefaultIncrement is the schedule used when a tournament has no bands.
func DefaultIncrement(price int64) int64 {
	switch {
	case price >= 1 && price <= 1000:
		return 100
	case price > 1000 && price <= 5000:
		return 200
	case price > 5000:
		return 500
	default:
		return 100
	}
}

// NextBid returns the amount of the next valid bid after current.
func NextBid(current int64, bands []Band) int64 {
	return current + Increment(current, bands)
}

// Errors reported by ValidateBands.
var (
	ErrBandOverlap      = errors.New("bands overlap")
	ErrBandGap          = errors.New("bands leave a gap")
	ErrBandIncrement    = errors.New("band increment must be positive")
	ErrBandRange        = errors.New("band max price is below its min price")
	ErrUnboundedNotLast = errors.New("only the highest band may be unbounded")
)

// ValidateBands reports every contiguity problem in bands. Integer prices
// make [a,b] and [b+1,c] contiguous. A nil result means the bands form one
// gapless, non-overlapping ladder.
func ValidateBands(bands []Band) error {
	s := sorted(bands)
	var errs []error
	for i, b := range s {
		if b.Increment <= 0 {
			errs = append(errs, fmt.Errorf("band %d (min %d): %w", i, b.MinPrice, ErrBandIncrement))
		}
		if b.MaxPrice != nil && *b.MaxPrice < b.MinPrice {
			errs = append(errs, fmt.Errorf("band %d (min %d, max %d): %w", i, b.MinPrice, *b.MaxPrice, ErrBandRange))
		}
		if i == 0 {
			continue
		}
		prev := s[i-1]
		if prev.MaxPrice == nil {
			errs = append(errs, fmt.Errorf("band %d (min %d): %w", i-1, prev.MinPrice, ErrUnboundedNotLast))
			continue
		}
		switch {
		case b.MinPrice <= *prev.MaxPrice:
			errs = append(errs, fmt.Errorf("bands %d and %d at %d: %w", i-1, i, b.MinPrice, ErrBandOverlap))
		case b.MinPrice > *prev.MaxPrice+1:
			errs = append(errs, fmt.Errorf("bands %d and %d between %d and %d: %w", i-1, i, *prev.MaxPrice, b.MinPrice, ErrBandGap))
		}
	}
	return errors.Join(errs...)
}

func sorted(bands []Band) []Band {
	s := slices.Clone(bands)
	slices.SortStableFunc(s, func(a, b Band) int { return cmp.Compare(a.MinPrice, b.MinPrice) })
	return s
}

// Max is a convenience for building bands in code and tests.
func Max(v int64) *int64 { return &v }
