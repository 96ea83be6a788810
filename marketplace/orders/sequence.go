package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/repositories"
)

const orderNumberPrefix = "ORD"

// NumberAllocator issues strictly increasing, date-scoped order numbers
// in the form ORD-YYYYMMDD-NNNN.
type NumberAllocator struct {
	sequences repositories.SequenceRepository
	now       func() time.Time
}

func NewNumberAllocator(sequences repositories.SequenceRepository) *NumberAllocator {
	return &NumberAllocator{
		sequences: sequences,
		now:       time.Now,
	}
}

// NextOrderNumber never fails the caller. When the atomic counter is
// unreachable it degrades to a timestamp-derived suffix, trading
// monotonicity for availability; the degradation is logged.
func (a *NumberAllocator) NextOrderNumber(ctx context.Context) string {
	now := a.now()
	day := now.Format("20060102")

	value, err := a.sequences.Next(ctx, day)
	if err != nil {
		slog.Error("Order number allocator unavailable, using timestamp fallback",
			slog.String("day", day),
			slog.Any("error", err))
		return fmt.Sprintf("%s-%s-T%06d", orderNumberPrefix, day, now.UnixNano()%1_000_000)
	}

	return fmt.Sprintf("%s-%s-%04d", orderNumberPrefix, day, value)
}
