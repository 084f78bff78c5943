package domain

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Reservation holds the lines reserved by one billing attempt.
type Reservation struct {
	mu       sync.Mutex
	lines    []Line
	release  func(ctx context.Context, line Line) error
	released bool
}

func NewReservation(release func(ctx context.Context, line Line) error) *Reservation {
	return &Reservation{release: release}
}

func (r *Reservation) Add(line Line) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *Reservation) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Line(nil), r.lines...)
}

// Release restores every reserved line in reverse order. It runs detached
// from ctx cancellation and is a no-op after the first call.
func (r *Reservation) Release(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return nil
	}
	r.released = true

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(r.lines) - 1; i >= 0; i-- {
		if err := r.release(ctx, r.lines[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrReservationFailed}, errs...)...)
	}
	return nil
}

// MergeLines sums quantities per product and orders by product id.
func MergeLines(lines []Line) ([]Line, error) {
	totals := make(map[snowflake.ID]int64, len(lines))
	for _, line := range lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		totals[line.ProductID] += line.Quantity
	}
	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}
