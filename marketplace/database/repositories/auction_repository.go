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

type AuctionRepository interface {
	Create(ctx context.Context, auction *models.Auction) error
	GetByID(ctx context.Context, id string) (*models.Auction, error)
	ListOpen(ctx context.Context) ([]*models.Auction, error)
	// Mutate runs fn against the row-locked auction in one transaction.
	// A non-nil bid returned by fn is appended in the same transaction.
	Mutate(ctx context.Context, id string, fn func(a *models.Auction) (*models.Bid, error)) error
	TopBid(ctx context.Context, auctionID string) (*models.Bid, error)
	Bids(ctx context.Context, auctionID string) ([]*models.Bid, error)
	// Finalize flips active -> ended and sets the winner. It reports
	// whether this caller won the close race.
	Finalize(ctx context.Context, id, winnerID string) (bool, error)
	// Reopen reverts ended -> active and clears the winner, conditional on
	// the given winner still holding the auction.
	Reopen(ctx context.Context, id, winnerID string) (bool, error)
}

type auctionRepository struct {
	db *bun.DB
}

func NewAuctionRepository(db *bun.DB) AuctionRepository {
	return &auctionRepository{db: db}
}

func (r *auctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	now := time.Now()
	auction.CreatedAt = now
	auction.UpdatedAt = now
	if auction.Status == "" {
		auction.Status = models.AuctionStatusActive
	}
	if auction.CurrentPrice == 0 {
		auction.CurrentPrice = auction.StartingPrice
	}

	_, err := r.db.NewInsert().Model(auction).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

func (r *auctionRepository) GetByID(ctx context.Context, id string) (*models.Auction, error) {
	auction := new(models.Auction)
	err := r.db.NewSelect().
		Model(auction).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auction, nil
}

func (r *auctionRepository) ListOpen(ctx context.Context) ([]*models.Auction, error) {
	var auctions []*models.Auction

	err := r.db.NewSelect().
		Model(&auctions).
		Where("status = ?", models.AuctionStatusActive).
		Where("winner_id = ''").
		Order("end_time ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list open auctions: %w", err)
	}
	return auctions, nil
}

func (r *auctionRepository) Mutate(ctx context.Context, id string, fn func(a *models.Auction) (*models.Bid, error)) error {
	return r.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
		auction := new(models.Auction)
		err := tx.NewSelect().
			Model(auction).
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx)

		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAuctionNotFound
			}
			return fmt.Errorf("failed to get auction for update: %w", err)
		}

		bid, err := fn(auction)
		if err != nil {
			return err
		}

		auction.UpdatedAt = time.Now()
		if _, err := tx.NewUpdate().Model(auction).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("failed to update auction: %w", err)
		}

		if bid != nil {
			if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
				return fmt.Errorf("failed to create bid: %w", err)
			}
		}
		return nil
	})
}

func (r *auctionRepository) TopBid(ctx context.Context, auctionID string) (*models.Bid, error) {
	bid := new(models.Bid)
	err := r.db.NewSelect().
		Model(bid).
		Where("auction_id = ?", auctionID).
		Order("amount DESC").
		Order("created_at ASC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get top bid: %w", err)
	}
	return bid, nil
}

func (r *auctionRepository) Bids(ctx context.Context, auctionID string) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := r.db.NewSelect().
		Model(&bids).
		Where("auction_id = ?", auctionID).
		Order("created_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return bids, nil
}

func (r *auctionRepository) Finalize(ctx context.Context, id, winnerID string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", models.AuctionStatusEnded).
		Set("winner_id = ?", winnerID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", models.AuctionStatusActive).
		Where("winner_id = ''").
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to finalize auction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

func (r *auctionRepository) Reopen(ctx context.Context, id, winnerID string) (bool, error) {
	result, err := r.db.NewUpdate().
		Model((*models.Auction)(nil)).
		Set("status = ?", models.AuctionStatusActive).
		Set("winner_id = ''").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status = ?", models.AuctionStatusEnded).
		Where("winner_id = ?", winnerID).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to reopen auction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}
