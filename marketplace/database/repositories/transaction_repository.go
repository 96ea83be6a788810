package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/uptrace/bun"
)

type TransactionRepository interface {
	Append(ctx context.Context, transaction *models.OrderTransaction) error
	ListByOrder(ctx context.Context, orderID string) ([]*models.OrderTransaction, error)
}

type transactionRepository struct {
	db *bun.DB
}

func NewTransactionRepository(db *bun.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Append(ctx context.Context, transaction *models.OrderTransaction) error {
	if transaction.CreatedAt.IsZero() {
		transaction.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(transaction).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to append order transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) ListByOrder(ctx context.Context, orderID string) ([]*models.OrderTransaction, error) {
	var transactions []*models.OrderTransaction

	err := r.db.NewSelect().
		Model(&transactions).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list order transactions: %w", err)
	}
	return transactions, nil
}
