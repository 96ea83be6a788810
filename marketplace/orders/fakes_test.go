package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
)

// fakeOrderRepo linearizes writes behind one mutex and enforces the
// auction-win uniqueness guard the way the database index does.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*models.Order)}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return repositories.ErrDuplicateOrder
	}
	if o.ProductType == models.ProductTypeAuction && r.hasAuctionOrderLocked(o.ProductID, o.UserID) {
		return repositories.ErrDuplicateOrder
	}
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repositories.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOrderRepo) HasAuctionOrder(_ context.Context, productID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasAuctionOrderLocked(productID, userID), nil
}

func (r *fakeOrderRepo) hasAuctionOrderLocked(productID, userID string) bool {
	for _, o := range r.orders {
		if o.ProductType == models.ProductTypeAuction && o.ProductID == productID && o.UserID == userID {
			return true
		}
	}
	return false
}

func (r *fakeOrderRepo) Mutate(_ context.Context, id string, fn func(o *models.Order) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return repositories.ErrOrderNotFound
	}
	cp := *o
	if err := fn(&cp); err != nil {
		return err
	}
	r.orders[id] = &cp
	return nil
}

func (r *fakeOrderRepo) ListExpired(_ context.Context, now time.Time) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.Status == models.OrderStatusPendingPayment && !o.ExpiresAt.IsZero() && !o.ExpiresAt.After(now) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) MarkExpired(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != models.OrderStatusPendingPayment {
		return false, nil
	}
	o.Status = models.OrderStatusPaymentExpired
	return true, nil
}

type fakeTransactionRepo struct {
	mu           sync.Mutex
	transactions []*models.OrderTransaction
}

func (r *fakeTransactionRepo) Append(_ context.Context, tx *models.OrderTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	cp.ID = int64(len(r.transactions) + 1)
	r.transactions = append(r.transactions, &cp)
	return nil
}

func (r *fakeTransactionRepo) ListByOrder(_ context.Context, orderID string) ([]*models.OrderTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.OrderTransaction
	for _, tx := range r.transactions {
		if tx.OrderID == orderID {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeSequenceRepo counts per day in memory; failing simulates the
// counter store being unreachable.
type fakeSequenceRepo struct {
	mu      sync.Mutex
	values  map[string]int64
	failing bool
}

func newFakeSequenceRepo() *fakeSequenceRepo {
	return &fakeSequenceRepo{values: make(map[string]int64)}
}

func (r *fakeSequenceRepo) Next(_ context.Context, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return 0, errors.New("sequence store unreachable")
	}
	r.values[day]++
	return r.values[day], nil
}

// fakeAuctionRepo implements only what the order lifecycle touches:
// the conditional reopen after a winner's order terminates.
type fakeAuctionRepo struct {
	mu       sync.Mutex
	auctions map[string]*models.Auction
}

func newFakeAuctionRepo() *fakeAuctionRepo {
	return &fakeAuctionRepo{auctions: make(map[string]*models.Auction)}
}

func (r *fakeAuctionRepo) add(a *models.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.auctions[a.ID] = &cp
}

func (r *fakeAuctionRepo) Create(_ context.Context, a *models.Auction) error {
	r.add(a)
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

func (r *fakeAuctionRepo) ListOpen(context.Context) ([]*models.Auction, error) {
	return nil, nil
}

func (r *fakeAuctionRepo) Mutate(context.Context, string, func(a *models.Auction) (*models.Bid, error)) error {
	return nil
}

func (r *fakeAuctionRepo) TopBid(context.Context, string) (*models.Bid, error) {
	return nil, nil
}

func (r *fakeAuctionRepo) Bids(context.Context, string) ([]*models.Bid, error) {
	return nil, nil
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

// fakeProductRepo backs a stock ledger for side-effect reversal tests.
type fakeProductRepo struct {
	mu       sync.Mutex
	products map[string]*models.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[string]*models.Product)}
}

func (r *fakeProductRepo) Create(_ context.Context, p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *fakeProductRepo) GetByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, repositories.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProductRepo) Mutate(_ context.Context, id string, fn func(p *models.Product) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return repositories.ErrProductNotFound
	}
	cp := *p
	if err := fn(&cp); err != nil {
		return err
	}
	r.products[id] = &cp
	return nil
}

func (r *fakeProductRepo) CreateReservation(context.Context, *models.StockReservation) error {
	return nil
}

func (r *fakeProductRepo) ReleaseReservation(context.Context, string) error {
	return nil
}

func (r *fakeProductRepo) ExpireStaleReservations(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// fakeNotifier records every event so tests can assert on delivery.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
}

type notifiedEvent struct {
	UserID    string
	EventType string
}

func (n *fakeNotifier) Notify(_ context.Context, userID, eventType string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notifiedEvent{UserID: userID, EventType: eventType})
}

func (n *fakeNotifier) SendAutoMessage(context.Context, string, string, map[string]string) {}

func (n *fakeNotifier) eventsFor(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.UserID == userID {
			out = append(out, e.EventType)
		}
	}
	return out
}
