package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
	"github.com/bidworks/marketplace/marketplace/notifications"
)

// BidRequest carries one bid attempt against an auction.
type BidRequest struct {
	AuctionID string
	UserID    string
	Username  string
	Amount    int64
	IsBot     bool
}

// PlaceBid validates and applies a bid in one row-locked transaction:
// price floor, increment and self-bid checks, the anti-snipe end time
// extension, the bid append and the current price update all commit
// together. Validation failures surface as *ValidationError for human
// users and are logged and swallowed for synthetic bidders.
func (s *Service) PlaceBid(ctx context.Context, req BidRequest) error {
	if req.AuctionID == "" || req.UserID == "" {
		return &ValidationError{Reason: "auction and bidder are required"}
	}

	var previousBidder string
	var previousBidderBot bool

	err := s.auctions.Mutate(ctx, req.AuctionID, func(a *models.Auction) (*models.Bid, error) {
		if a.Status != models.AuctionStatusActive {
			return nil, &ValidationError{Reason: "auction is not active"}
		}
		if a.CreatedBy == req.UserID {
			return nil, &ValidationError{Reason: "you cannot bid on your own auction"}
		}

		floor := a.CurrentPrice
		if a.BidCount == 0 {
			floor = a.StartingPrice
		}
		if req.Amount <= floor {
			return nil, &ValidationError{Reason: fmt.Sprintf("your bid must exceed the current price of %d", floor)}
		}
		if req.Amount%BidIncrement != 0 {
			return nil, &ValidationError{Reason: fmt.Sprintf("bids must be a multiple of %d", BidIncrement)}
		}

		now := s.now()
		if remaining := a.EndTime.Sub(now); remaining > 0 && remaining <= snipeWindow {
			a.EndTime = now.Add(snipeWindow)
		}

		previousBidder = a.TopBidderID
		previousBidderBot = a.TopBidderBot

		a.CurrentPrice = req.Amount
		a.LastBidAt = now
		a.BidCount++
		a.TopBidderID = req.UserID
		a.TopBidderBot = req.IsBot

		return &models.Bid{
			AuctionID: a.ID,
			UserID:    req.UserID,
			Username:  req.Username,
			Amount:    req.Amount,
			IsBot:     req.IsBot,
			CreatedAt: now,
		}, nil
	})

	if err != nil {
		var verr *ValidationError
		if errors.Is(err, repositories.ErrAuctionNotFound) {
			verr = &ValidationError{Reason: "auction not found"}
		}
		if verr != nil || errors.As(err, &verr) {
			if req.IsBot {
				slog.Debug("Ignoring invalid synthetic bid",
					slog.String("auction_id", req.AuctionID),
					slog.String("user_id", req.UserID),
					slog.String("reason", verr.Reason))
				return nil
			}
			return verr
		}
		return fmt.Errorf("failed to place bid: %w", err)
	}

	s.views.Remove(req.AuctionID)

	slog.Info("Bid accepted",
		slog.String("auction_id", req.AuctionID),
		slog.String("user_id", req.UserID),
		slog.Int64("amount", req.Amount),
		slog.Bool("is_bot", req.IsBot))

	s.actions.LogAction(ctx, "bid_placed", "auction", req.AuctionID, map[string]any{
		"user_id": req.UserID,
		"amount":  req.Amount,
		"is_bot":  req.IsBot,
	})

	if previousBidder != "" && previousBidder != req.UserID && !previousBidderBot {
		s.notifier.Notify(ctx, previousBidder, notifications.EventBidOutbid, map[string]any{
			"auction_id": req.AuctionID,
			"new_amount": req.Amount,
		})
	}

	return nil
}
