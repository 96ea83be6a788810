package repositories

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

type SequenceRepository interface {
	// Next atomically increments and returns the counter for the given
	// day key, creating it at 1 when absent. No two callers ever receive
	// the same value.
	Next(ctx context.Context, day string) (int64, error)
}

type sequenceRepository struct {
	db *bun.DB
}

func NewSequenceRepository(db *bun.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

func (r *sequenceRepository) Next(ctx context.Context, day string) (int64, error) {
	var value int64
	err := r.db.NewRaw(
		`INSERT INTO sequence_counters (day, value) VALUES (?, 1)
		 ON CONFLICT (day) DO UPDATE SET value = sequence_counters.value + 1
		 RETURNING value`,
		day,
	).Scan(ctx, &value)

	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence for %s: %w", day, err)
	}
	return value, nil
}
