package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bidworks/marketplace/marketplace/audit"
	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
	"github.com/bidworks/marketplace/marketplace/logger"
	"github.com/bidworks/marketplace/marketplace/notifications"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// maxOverdueSkew: an auction listed as due whose end time is still
	// more than this far in the future indicates an inconsistent read;
	// the closer skips it rather than force-closing.
	maxOverdueSkew = 60 * time.Second

	maxConcurrentCloses = 5
	sweepTimeout        = 30 * time.Second
)

// OrderCreator is the closer's boundary to the order lifecycle.
type OrderCreator interface {
	HasAuctionOrder(ctx context.Context, productID, userID string) (bool, error)
	CreateAuctionOrder(ctx context.Context, auctionID, userID string, amount int64, expiresAt time.Time) (*models.Order, error)
}

// Closer periodically scans active auctions, finalizes the ones past
// their end time exactly once, and creates the winner's order. Multiple
// replicas may sweep concurrently; correctness relies on the
// conditional finalize update and the duplicate-order guard, not on
// mutual exclusion across processes.
type Closer struct {
	auctions      repositories.AuctionRepository
	orders        OrderCreator
	notifier      notifications.Notifier
	actions       *audit.ActionLogger
	locks         *xsync.MapOf[string, *sync.Mutex]
	sem           *semaphore.Weighted
	interval      time.Duration
	paymentWindow time.Duration
	now           func() time.Time
}

func NewCloser(auctions repositories.AuctionRepository, orders OrderCreator, notifier notifications.Notifier, actions *audit.ActionLogger, interval, paymentWindow time.Duration) *Closer {
	if auctions == nil {
		panic("auction repository cannot be nil")
	}
	if orders == nil {
		panic("order creator cannot be nil")
	}
	if notifier == nil {
		notifier = notifications.Noop{}
	}

	return &Closer{
		auctions:      auctions,
		orders:        orders,
		notifier:      notifier,
		actions:       actions,
		locks:         xsync.NewMapOf[string, *sync.Mutex](),
		sem:           semaphore.NewWeighted(maxConcurrentCloses),
		interval:      interval,
		paymentWindow: paymentWindow,
		now:           time.Now,
	}
}

// Run drives sweeps on the configured interval until ctx is cancelled.
func (c *Closer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
			start := time.Now()
			processed, err := c.Sweep(sweepCtx)
			logger.LogSweep("auction_closer", time.Since(start), processed, err)
			cancel()
		}
	}
}

// Sweep examines every open auction once and closes the due ones. It
// returns the number of auctions finalized by this pass.
func (c *Closer) Sweep(ctx context.Context) (int, error) {
	open, err := c.auctions.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list open auctions: %w", err)
	}

	var mu sync.Mutex
	closed := 0

	processed := make(map[string]struct{}, len(open))
	g, gctx := errgroup.WithContext(ctx)

	for _, a := range open {
		if _, seen := processed[a.ID]; seen {
			continue
		}
		processed[a.ID] = struct{}{}

		auctionID := a.ID
		g.Go(func() error {
			if err := c.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer c.sem.Release(1)

			didClose, err := c.closeOne(gctx, auctionID)
			if err != nil {
				slog.Error("Failed to close auction",
					slog.String("auction_id", auctionID),
					slog.Any("error", err))
				return nil
			}
			if didClose {
				mu.Lock()
				closed++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return closed, err
	}
	return closed, nil
}

// closeOne finalizes a single auction. The per-auction mutex guards
// against re-entrancy inside this process; the re-read plus conditional
// finalize guards against other processes.
func (c *Closer) closeOne(ctx context.Context, auctionID string) (bool, error) {
	mu, _ := c.locks.LoadOrCompute(auctionID, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	if !mu.TryLock() {
		return false, nil
	}
	defer mu.Unlock()

	// Re-read authoritative state; another replica may already have
	// finalized this auction since the sweep listed it.
	auction, err := c.auctions.GetByID(ctx, auctionID)
	if err != nil {
		if errors.Is(err, repositories.ErrAuctionNotFound) {
			return false, nil
		}
		return false, err
	}
	if auction.Status != models.AuctionStatusActive || auction.WinnerID != "" {
		return false, nil
	}

	remaining := auction.EndTime.Sub(c.now())
	if remaining > maxOverdueSkew {
		slog.Warn("Open auction listed as due with implausible time remaining, skipping",
			slog.String("auction_id", auctionID),
			slog.Duration("remaining", remaining))
		return false, nil
	}
	if remaining > 0 {
		return false, nil
	}

	var winner *models.Bid
	if auction.BidCount > 0 {
		winner, err = c.auctions.TopBid(ctx, auctionID)
		if err != nil {
			return false, err
		}
	}

	winnerID := ""
	if winner != nil {
		winnerID = winner.UserID
	}

	claimed, err := c.auctions.Finalize(ctx, auctionID, winnerID)
	if err != nil {
		return false, err
	}
	if !claimed {
		// Another replica won the close race; everything downstream is
		// that replica's responsibility.
		return false, nil
	}

	slog.Info("Auction finalized",
		slog.String("auction_id", auctionID),
		slog.String("winner_id", winnerID),
		slog.Int64("final_price", auction.CurrentPrice))

	c.actions.LogAction(ctx, "auction_closed", "auction", auctionID, map[string]any{
		"winner_id":   winnerID,
		"final_price": auction.CurrentPrice,
		"bid_count":   auction.BidCount,
	})

	if winner == nil || winner.IsBot {
		return true, nil
	}

	c.createWinnerOrder(ctx, auction, winner)
	return true, nil
}

// createWinnerOrder runs after the finalize committed. It is
// idempotent on (auctionID, winnerID): a pre-check plus the store's
// unique guard ensure at most one order survives concurrent sweeps.
func (c *Closer) createWinnerOrder(ctx context.Context, auction *models.Auction, winner *models.Bid) {
	exists, err := c.orders.HasAuctionOrder(ctx, auction.ID, winner.UserID)
	if err != nil {
		slog.Error("Failed to check for existing winner order",
			slog.String("auction_id", auction.ID),
			slog.String("winner_id", winner.UserID),
			slog.Any("error", err))
		return
	}
	if exists {
		return
	}

	expiresAt := c.now().Add(c.paymentWindow)
	order, err := c.orders.CreateAuctionOrder(ctx, auction.ID, winner.UserID, winner.Amount, expiresAt)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateOrder) {
			return
		}
		slog.Error("Failed to create winner order",
			slog.String("auction_id", auction.ID),
			slog.String("winner_id", winner.UserID),
			slog.Any("error", err))
		return
	}

	c.notifier.Notify(ctx, winner.UserID, notifications.EventAuctionWon, map[string]any{
		"auction_id": auction.ID,
		"title":      auction.Title,
		"amount":     winner.Amount,
		"order_id":   order.ID,
	})
	c.notifier.SendAutoMessage(ctx, winner.UserID, "auction_win", map[string]string{
		"auction_title": auction.Title,
		"order_number":  order.OrderNumber,
	})
}
