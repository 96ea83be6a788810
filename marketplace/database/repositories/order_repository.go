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

type OrderRepository interface {
	// Create inserts the order, mapping key collisions (same id, or the
	// auction-win unique index) to ErrDuplicateOrder.
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	HasAuctionOrder(ctx context.Context, productID, userID string) (bool, error)
	// Mutate runs fn against the row-locked order in one transaction.
	Mutate(ctx context.Context, id string, fn func(o *models.Order) error) error
	ListExpired(ctx context.Context, now time.Time) ([]*models.Order, error)
	// MarkExpired flips pending_payment -> payment_expired and reports
	// whether this caller claimed the expiry.
	MarkExpired(ctx context.Context, id string) (bool, error)
}

type orderRepository struct {
	db *bun.DB
}

func NewOrderRepository(db *bun.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(order).Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order := new(models.Order)
	err := r.db.NewSelect().
		Model(order).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) HasAuctionOrder(ctx context.Context, productID, userID string) (bool, error) {
	exists, err := r.db.NewSelect().
		Model((*models.Order)(nil)).
		Where("product_id = ?", productID).
		Where("user_id = ?", userID).
		Where("product_type = ?", models.ProductTypeAuction).
		Exists(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to check auction order: %w", err)
	}
	return exists, nil
}

func (r *orderRepository) Mutate(ctx context.Context, id string, fn func(o *models.Order) error) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		order := new(models.Order)
		err := tx.NewSelect().
			Model(order).
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx)

		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to get order for update: %w", err)
		}

		if err := fn(order); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().Model(order).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		return nil
	})
}

func (r *orderRepository) ListExpired(ctx context.Context, now time.Time) ([]*models.Order, error) {
	var orders []*models.Order

	err := r.db.NewSelect().
		Model(&orders).
		Where("status = ?", models.OrderStatusPendingPayment).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list expired orders: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", models.OrderStatusPaymentExpired).
		Where("id = ?", id).
		Where("status = ?", models.OrderStatusPendingPayment).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to mark order expired: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}
