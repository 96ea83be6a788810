package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bidworks/marketplace/marketplace/audit"
	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
	"github.com/bidworks/marketplace/marketplace/notifications"
	"github.com/bidworks/marketplace/marketplace/stock"
	"github.com/oklog/ulid/v2"
)

// ErrInvalidTransition rejects a status change the state machine does
// not allow.
type ErrInvalidTransition struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// CreateRequest carries everything needed to open a new order.
type CreateRequest struct {
	UserID         string
	ProductID      string
	ProductType    models.ProductType
	Amount         int64
	Quantity       int
	PaymentMethod  string
	DeliveryMethod string
	ExpiresAt      time.Time
	BankName       string
	BankAccount    string
	BankHolder     string
}

// Service owns order creation and the order status state machine. Every
// observed transition is mirrored into the append-only transaction log.
type Service struct {
	orders       repositories.OrderRepository
	transactions repositories.TransactionRepository
	allocator    *NumberAllocator
	ledger       *stock.Ledger
	auctions     repositories.AuctionRepository
	notifier     notifications.Notifier
	actions      *audit.ActionLogger
	now          func() time.Time
}

func NewService(
	orders repositories.OrderRepository,
	transactions repositories.TransactionRepository,
	allocator *NumberAllocator,
	ledger *stock.Ledger,
	auctions repositories.AuctionRepository,
	notifier notifications.Notifier,
	actions *audit.ActionLogger,
) *Service {
	if orders == nil {
		panic("order repository cannot be nil")
	}
	if transactions == nil {
		panic("transaction repository cannot be nil")
	}
	if allocator == nil {
		panic("number allocator cannot be nil")
	}
	if notifier == nil {
		notifier = notifications.Noop{}
	}

	return &Service{
		orders:       orders,
		transactions: transactions,
		allocator:    allocator,
		ledger:       ledger,
		auctions:     auctions,
		notifier:     notifier,
		actions:      actions,
		now:          time.Now,
	}
}

// NewOrderID returns a date-prefixed, lexicographically sortable id.
func (s *Service) NewOrderID() string {
	return s.now().Format("20060102") + "-" + ulid.Make().String()
}

// Create opens an order in pending_payment and records the initial
// transaction. Auction orders are unique per (product, user); a second
// create for the same win returns ErrDuplicateOrder.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Order, error) {
	if req.UserID == "" || req.ProductID == "" {
		return nil, fmt.Errorf("user and product are required")
	}

	if req.ProductType == models.ProductTypeAuction {
		exists, err := s.orders.HasAuctionOrder(ctx, req.ProductID, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing auction order: %w", err)
		}
		if exists {
			return nil, repositories.ErrDuplicateOrder
		}
	}

	now := s.now()
	order := &models.Order{
		ID:             s.NewOrderID(),
		OrderNumber:    s.allocator.NextOrderNumber(ctx),
		UserID:         req.UserID,
		ProductID:      req.ProductID,
		ProductType:    req.ProductType,
		Amount:         req.Amount,
		Quantity:       req.Quantity,
		Status:         models.OrderStatusPendingPayment,
		PaymentMethod:  req.PaymentMethod,
		DeliveryMethod: req.DeliveryMethod,
		CreatedAt:      now,
		ExpiresAt:      req.ExpiresAt,
		BankName:       req.BankName,
		BankAccount:    req.BankAccount,
		BankHolder:     req.BankHolder,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	s.recordTransaction(ctx, order, "", models.ActionCreated)

	s.actions.LogAction(ctx, "order_created", "order", order.ID, map[string]any{
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"product_id":   order.ProductID,
		"product_type": string(order.ProductType),
		"amount":       order.Amount,
	})

	slog.Info("Order created",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.String("user_id", order.UserID),
		slog.String("product_type", string(order.ProductType)))

	s.notifier.Notify(ctx, order.UserID, notifications.EventOrderCreated, map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"amount":       order.Amount,
	})

	return order, nil
}

// CreateAuctionOrder opens the winner's payment-due order after an
// auction closes.
func (s *Service) CreateAuctionOrder(ctx context.Context, auctionID, userID string, amount int64, expiresAt time.Time) (*models.Order, error) {
	return s.Create(ctx, CreateRequest{
		UserID:      userID,
		ProductID:   auctionID,
		ProductType: models.ProductTypeAuction,
		Amount:      amount,
		Quantity:    1,
		ExpiresAt:   expiresAt,
	})
}

// HasAuctionOrder reports whether the user already has an order for the
// auction.
func (s *Service) HasAuctionOrder(ctx context.Context, productID, userID string) (bool, error) {
	return s.orders.HasAuctionOrder(ctx, productID, userID)
}

// Get returns the order by id.
func (s *Service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// History returns the order's transaction log in append order.
func (s *Service) History(ctx context.Context, orderID string) ([]*models.OrderTransaction, error) {
	return s.transactions.ListByOrder(ctx, orderID)
}

// UpdateStatus advances the order along the state machine. Milestone
// timestamps are stamped only on the first arrival at their status, so
// replays cannot move them.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus) error {
	var previous models.OrderStatus
	var updated *models.Order

	err := s.orders.Mutate(ctx, orderID, func(o *models.Order) error {
		if o.Status == next {
			return nil
		}
		if !o.Status.CanTransitionTo(next) {
			return &ErrInvalidTransition{From: o.Status, To: next}
		}

		previous = o.Status
		o.Status = next

		now := s.now()
		switch next {
		case models.OrderStatusPaymentConfirmed:
			if o.PaidAt.IsZero() {
				o.PaidAt = now
			}
		case models.OrderStatusInTransit:
			if o.ShippedAt.IsZero() {
				o.ShippedAt = now
			}
		case models.OrderStatusDelivered:
			if o.DeliveredAt.IsZero() {
				o.DeliveredAt = now
			}
		}

		snapshot := *o
		updated = &snapshot
		return nil
	})
	if err != nil {
		return err
	}
	if updated == nil {
		// Already in the requested status; nothing to record.
		return nil
	}

	s.recordTransaction(ctx, updated, previous, actionFor(next))

	s.actions.LogAction(ctx, "order_status_changed", "order", orderID, map[string]any{
		"from": string(previous),
		"to":   string(next),
	})

	slog.Info("Order status changed",
		slog.String("order_id", orderID),
		slog.String("from", string(previous)),
		slog.String("to", string(next)))

	return nil
}

// Cancel moves a cancellable order to cancelled and reverses its side
// effects: store orders restore their reserved stock, auction orders
// reopen the auction for new bids.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	var previous models.OrderStatus
	var cancelled *models.Order

	err := s.orders.Mutate(ctx, orderID, func(o *models.Order) error {
		if !o.Status.Cancellable() {
			return &ErrInvalidTransition{From: o.Status, To: models.OrderStatusCancelled}
		}
		previous = o.Status
		o.Status = models.OrderStatusCancelled

		snapshot := *o
		cancelled = &snapshot
		return nil
	})
	if err != nil {
		return err
	}

	s.undoSideEffects(ctx, cancelled)

	s.recordTransaction(ctx, cancelled, previous, models.ActionCancelled)

	s.actions.LogAction(ctx, "order_cancelled", "order", orderID, map[string]any{
		"order_number": cancelled.OrderNumber,
		"from":         string(previous),
		"reason":       reason,
	})

	slog.Info("Order cancelled",
		slog.String("order_id", orderID),
		slog.String("from", string(previous)),
		slog.String("reason", reason))

	return nil
}

// undoSideEffects reverses what the order's creation consumed. Both
// branches are tolerant: a failed reversal is logged, never surfaced,
// so the terminal status transition always stands.
func (s *Service) undoSideEffects(ctx context.Context, o *models.Order) {
	switch o.ProductType {
	case models.ProductTypeStore:
		if s.ledger != nil && o.Quantity > 0 {
			s.ledger.Restore(ctx, o.ProductID, o.Quantity)
		}
	case models.ProductTypeAuction:
		if s.auctions == nil {
			return
		}
		reopened, err := s.auctions.Reopen(ctx, o.ProductID, o.UserID)
		if err != nil {
			slog.Error("Failed to reopen auction after order termination",
				slog.String("auction_id", o.ProductID),
				slog.String("order_id", o.ID),
				slog.Any("error", err))
			return
		}
		if reopened {
			slog.Info("Auction reopened after order termination",
				slog.String("auction_id", o.ProductID),
				slog.String("order_id", o.ID))
		}
	}
}

// recordTransaction appends to the order's transaction log.
// Best-effort: the log mirrors transitions, it does not gate them.
func (s *Service) recordTransaction(ctx context.Context, o *models.Order, previous models.OrderStatus, action models.ActionType) {
	tx := &models.OrderTransaction{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		Status:         o.Status,
		PreviousStatus: previous,
		Amount:         o.Amount,
		ActionType:     action,
		CreatedAt:      s.now(),
	}
	if err := s.transactions.Append(ctx, tx); err != nil {
		slog.Error("Failed to append order transaction",
			slog.String("order_id", o.ID),
			slog.String("action", string(action)),
			slog.Any("error", err))
	}
}

func actionFor(status models.OrderStatus) models.ActionType {
	switch status {
	case models.OrderStatusPaymentConfirmed:
		return models.ActionPaymentReceived
	case models.OrderStatusInTransit:
		return models.ActionShipped
	case models.OrderStatusDelivered:
		return models.ActionDelivered
	default:
		return models.ActionStatusChanged
	}
}
