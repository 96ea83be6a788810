package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/uptrace/bun"
)

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	// Mutate runs fn against the row-locked product in one transaction;
	// the mutated row is persisted when fn returns nil.
	Mutate(ctx context.Context, id string, fn func(p *models.Product) error) error
	CreateReservation(ctx context.Context, reservation *models.StockReservation) error
	ReleaseReservation(ctx context.Context, id string) error
	ExpireStaleReservations(ctx context.Context, now time.Time) (int64, error)
}

type productRepository struct {
	db *bun.DB
}

func NewProductRepository(db *bun.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := r.db.NewInsert().Model(product).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	product := new(models.Product)
	err := r.db.NewSelect().
		Model(product).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

func (r *productRepository) Mutate(ctx context.Context, id string, fn func(p *models.Product) error) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		product := new(models.Product)
		err := tx.NewSelect().
			Model(product).
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx)

		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrProductNotFound
			}
			return fmt.Errorf("failed to get product for update: %w", err)
		}

		if err := fn(product); err != nil {
			return err
		}

		product.UpdatedAt = time.Now()
		if _, err := tx.NewUpdate().Model(product).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		return nil
	})
}

func (r *productRepository) CreateReservation(ctx context.Context, reservation *models.StockReservation) error {
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(reservation).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create stock reservation: %w", err)
	}
	return nil
}

func (r *productRepository) ReleaseReservation(ctx context.Context, id string) error {
	_, err := r.db.NewUpdate().
		Model((*models.StockReservation)(nil)).
		Set("released = TRUE").
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	return nil
}

func (r *productRepository) ExpireStaleReservations(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.NewUpdate().
		Model((*models.StockReservation)(nil)).
		Set("released = TRUE").
		Where("released = FALSE").
		Where("expires_at <= ?", now).
		Exec(ctx)

	if err != nil {
		return 0, fmt.Errorf("failed to expire stale reservations: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows, nil
}
