package availability

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/eventrentph/eventrent-backend/pkg/db/models"
	pkgerrors "github.com/eventrentph/eventrent-backend/pkg/errors"
	"github.com/eventrentph/eventrent-backend/pkg/types"
)

// Result reports whether a request fits and by how much it misses.
type Result struct {
	Available bool
	Shortfall int
	// Capacity carried for countable items: the quantity still reservable
	// over the requested range.
	Remaining int
}

// Checker decides whether an item can satisfy a dated quantity request.
// It never mutates state; the reservation engine re-runs it under the item
// lock before decrementing.
type Checker interface {
	WithTx(tx *gorm.DB) Checker
	Check(ctx context.Context, item *models.InventoryItem, rng types.DateRange, qty int) (Result, error)
}

type checker struct {
	repo Repository
}

// NewChecker builds the availability checker.
func NewChecker(repo Repository) (Checker, error) {
	if repo == nil {
		return nil, fmt.Errorf("availability repository required")
	}
	return &checker{repo: repo}, nil
}

func (c *checker) WithTx(tx *gorm.DB) Checker {
	if tx == nil {
		return c
	}
	return &checker{repo: c.repo.WithTx(tx)}
}

func (c *checker) Check(ctx context.Context, item *models.InventoryItem, rng types.DateRange, qty int) (Result, error) {
	if item == nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "inventory item required")
	}
	if qty <= 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	if item.ServiceType.Stocked() {
		return c.checkCountable(ctx, item, rng, qty)
	}
	return c.checkCapacity(ctx, item, rng, qty)
}

// checkCountable compares the item's physical stock against the reservations
// whose dates intersect the request. Batch quantities are not drawn down by
// holds, so on-hand stock minus the overlapping committed quantity is exactly
// what the requested window can still take. Holds on disjoint dates do not
// count against the window.
func (c *checker) checkCountable(ctx context.Context, item *models.InventoryItem, rng types.DateRange, qty int) (Result, error) {
	onHand, err := c.repo.SumOnHand(ctx, item.ID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing batch stock")
	}
	overlapping, err := c.repo.SumOverlappingReserved(ctx, item.ID, rng.Start, rng.End)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "summing overlapping reservations")
	}

	remaining := onHand - overlapping
	if remaining < 0 {
		remaining = 0
	}
	if remaining >= qty {
		return Result{Available: true, Remaining: remaining}, nil
	}
	return Result{Available: false, Shortfall: qty - remaining, Remaining: remaining}, nil
}

// checkCapacity walks every day in the range and compares booked quantity
// against the item's per-day slot capacity.
func (c *checker) checkCapacity(ctx context.Context, item *models.InventoryItem, rng types.DateRange, qty int) (Result, error) {
	if item.CapacityPerDay == nil || *item.CapacityPerDay <= 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "item has no per-day capacity configured")
	}
	capacity := *item.CapacityPerDay

	reservations, err := c.repo.ActiveReservationsOverlapping(ctx, item.ID, rng.Start, rng.End)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading overlapping reservations")
	}

	worst := 0
	minRemaining := capacity
	rng.EachDay(func(day time.Time) bool {
		booked := 0
		for _, res := range reservations {
			if !day.Before(res.StartDate) && !day.After(res.EndDate) {
				booked += res.Qty
			}
		}
		remaining := capacity - booked
		if remaining < minRemaining {
			minRemaining = remaining
		}
		if booked+qty > capacity {
			if over := booked + qty - capacity; over > worst {
				worst = over
			}
		}
		return true
	})
	if minRemaining < 0 {
		minRemaining = 0
	}
	if worst > 0 {
		return Result{Available: false, Shortfall: worst, Remaining: minRemaining}, nil
	}
	return Result{Available: true, Remaining: minRemaining}, nil
}
