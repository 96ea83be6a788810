package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bidworks/marketplace/marketplace/audit"
	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
	"github.com/bidworks/marketplace/marketplace/notifications"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

const (
	// BidIncrement is the fixed step all bids must be a multiple of.
	BidIncrement = 500

	// snipeWindow: a bid landing inside this window before the end time
	// pushes the end time out by the same window.
	snipeWindow = 30 * time.Second

	MinAuctionDuration = time.Minute
	MaxAuctionDuration = 7 * 24 * time.Hour

	viewCacheSize = 2048
)

// ValidationError is a user-facing rejection of a bid or auction
// request. It is surfaced to human users and swallowed for synthetic
// bidders.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Service owns auction creation and bid acceptance.
type Service struct {
	auctions repositories.AuctionRepository
	notifier notifications.Notifier
	actions  *audit.ActionLogger
	views    *lru.Cache
	now      func() time.Time
}

func NewService(auctions repositories.AuctionRepository, notifier notifications.Notifier, actions *audit.ActionLogger) *Service {
	if auctions == nil {
		panic("auction repository cannot be nil")
	}
	if notifier == nil {
		notifier = notifications.Noop{}
	}

	views, _ := lru.New(viewCacheSize)
	return &Service{
		auctions: auctions,
		notifier: notifier,
		actions:  actions,
		views:    views,
		now:      time.Now,
	}
}

// CreateAuction opens a new active auction for a seller. The current
// price is seeded from the starting price.
func (s *Service) CreateAuction(ctx context.Context, title, sellerID string, startingPrice int64, duration time.Duration, images []string) (*models.Auction, error) {
	if title == "" || sellerID == "" {
		return nil, &ValidationError{Reason: "title and seller are required"}
	}
	if startingPrice <= 0 || startingPrice%BidIncrement != 0 {
		return nil, &ValidationError{Reason: fmt.Sprintf("starting price must be a positive multiple of %d", BidIncrement)}
	}
	if duration < MinAuctionDuration || duration > MaxAuctionDuration {
		return nil, &ValidationError{Reason: "auction duration out of range"}
	}

	now := s.now()
	auction := &models.Auction{
		ID:            uuid.NewString(),
		Title:         title,
		ImageURLs:     images,
		StartingPrice: startingPrice,
		CurrentPrice:  startingPrice,
		Status:        models.AuctionStatusActive,
		CreatedBy:     sellerID,
		EndTime:       now.Add(duration),
	}

	if err := s.auctions.Create(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	s.actions.LogAction(ctx, "auction_created", "auction", auction.ID, map[string]any{
		"seller_id":      sellerID,
		"starting_price": startingPrice,
		"end_time":       auction.EndTime,
	})

	slog.Info("Auction created",
		slog.String("auction_id", auction.ID),
		slog.String("seller_id", sellerID),
		slog.Int64("starting_price", startingPrice))

	return auction, nil
}

// CancelBySeller ends an active auction that has received no bids yet.
func (s *Service) CancelBySeller(ctx context.Context, auctionID, sellerID string) error {
	err := s.auctions.Mutate(ctx, auctionID, func(a *models.Auction) (*models.Bid, error) {
		if a.CreatedBy != sellerID {
			return nil, &ValidationError{Reason: "only the seller can cancel the auction"}
		}
		if a.Status != models.AuctionStatusActive {
			return nil, &ValidationError{Reason: "auction is not active"}
		}
		if a.BidCount > 0 {
			return nil, &ValidationError{Reason: "auction already has bids"}
		}
		a.Status = models.AuctionStatusEnded
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.views.Remove(auctionID)
	s.actions.LogAction(ctx, "auction_cancelled", "auction", auctionID, map[string]any{
		"seller_id": sellerID,
	})
	return nil
}

// GetAuction returns a cached read view of the auction. The cache is
// invalidated on every accepted bid; the database row stays
// authoritative.
func (s *Service) GetAuction(ctx context.Context, auctionID string) (*models.Auction, error) {
	if cached, ok := s.views.Get(auctionID); ok {
		return cached.(*models.Auction), nil
	}

	auction, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	s.views.Add(auctionID, auction)
	return auction, nil
}
