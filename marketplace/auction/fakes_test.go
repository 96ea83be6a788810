package auction

import (
	"context"
	"sync"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
)

// fakeAuctionRepo linearizes all writes behind one mutex, mirroring the
// row locks and conditional updates of the real repository.
type fakeAuctionRepo struct {
	mu       sync.Mutex
	auctions map[string]*models.Auction
	bids     map[string][]*models.Bid
}

func newFakeAuctionRepo() *fakeAuctionRepo {
	return &fakeAuctionRepo{
		auctions: make(map[string]*models.Auction),
		bids:     make(map[string][]*models.Bid),
	}
}

func (r *fakeAuctionRepo) Create(_ context.Context, a *models.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.Status == "" {
		a.Status = models.AuctionStatusActive
	}
	if a.CurrentPrice == 0 {
		a.CurrentPrice = a.StartingPrice
	}
	cp := *a
	r.auctions[a.ID] = &cp
	return nil
}

func (r *fakeAuctionRepo) GetByID(_ context.Context, id string) (*models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return nil, repositories.ErrAuctionNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAuctionRepo) ListOpen(_ context.Context) ([]*models.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []*models.Auction
	for _, a := range r.auctions {
		if a.Status == models.AuctionStatusActive && a.WinnerID == "" {
			cp := *a
			open = append(open, &cp)
		}
	}
	return open, nil
}

func (r *fakeAuctionRepo) Mutate(_ context.Context, id string, fn func(a *models.Auction) (*models.Bid, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return repositories.ErrAuctionNotFound
	}
	cp := *a
	bid, err := fn(&cp)
	if err != nil {
		return err
	}
	r.auctions[id] = &cp
	if bid != nil {
		bid.ID = int64(len(r.bids[id]) + 1)
		r.bids[id] = append(r.bids[id], bid)
	}
	return nil
}

func (r *fakeAuctionRepo) TopBid(_ context.Context, auctionID string) (*models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var top *models.Bid
	for _, b := range r.bids[auctionID] {
		if top == nil || b.Amount > top.Amount {
			top = b
		}
	}
	if top == nil {
		return nil, nil
	}
	cp := *top
	return &cp, nil
}

func (r *fakeAuctionRepo) Bids(_ context.Context, auctionID string) ([]*models.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Bid, 0, len(r.bids[auctionID]))
	for _, b := range r.bids[auctionID] {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeAuctionRepo) Finalize(_ context.Context, id, winnerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok || a.Status != models.AuctionStatusActive || a.WinnerID != "" {
		return false, nil
	}
	a.Status = models.AuctionStatusEnded
	a.WinnerID = winnerID
	return true, nil
}

func (r *fakeAuctionRepo) Reopen(_ context.Context, id, winnerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok || a.Status != models.AuctionStatusEnded || a.WinnerID != winnerID {
		return false, nil
	}
	a.Status = models.AuctionStatusActive
	a.WinnerID = ""
	return true, nil
}

// fakeOrderCreator records winner orders and enforces the one order per
// (auction, user) guard the way the order store does.
type fakeOrderCreator struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (f *fakeOrderCreator) HasAuctionOrder(_ context.Context, productID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasLocked(productID, userID), nil
}

func (f *fakeOrderCreator) CreateAuctionOrder(_ context.Context, auctionID, userID string, amount int64, expiresAt time.Time) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasLocked(auctionID, userID) {
		return nil, repositories.ErrDuplicateOrder
	}
	order := &models.Order{
		ID:          auctionID + "-" + userID,
		OrderNumber: "ORD-TEST",
		UserID:      userID,
		ProductID:   auctionID,
		ProductType: models.ProductTypeAuction,
		Amount:      amount,
		Quantity:    1,
		Status:      models.OrderStatusPendingPayment,
		ExpiresAt:   expiresAt,
	}
	f.orders = append(f.orders, order)
	return order, nil
}

func (f *fakeOrderCreator) hasLocked(productID, userID string) bool {
	for _, o := range f.orders {
		if o.ProductID == productID && o.UserID == userID {
			return true
		}
	}
	return false
}

func (f *fakeOrderCreator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}
