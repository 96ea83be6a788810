package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderStatusPendingPayment   OrderStatus = "pending_payment"
	OrderStatusPaymentConfirmed OrderStatus = "payment_confirmed"
	OrderStatusProcessing       OrderStatus = "processing"
	OrderStatusPreparing        OrderStatus = "preparing"
	OrderStatusInTransit        OrderStatus = "in_transit"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusPaymentExpired   OrderStatus = "payment_expired"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:   {OrderStatusPaymentConfirmed, OrderStatusPaymentExpired, OrderStatusCancelled},
	OrderStatusPaymentConfirmed: {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:       {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:        {OrderStatusInTransit, OrderStatusCancelled},
	OrderStatusInTransit:        {OrderStatusDelivered},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist from s.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Cancellable reports whether an order in this status may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaymentConfirmed, OrderStatusProcessing, OrderStatusPreparing:
		return true
	}
	return false
}

type ProductType string

const (
	ProductTypeStore   ProductType = "store"
	ProductTypeAuction ProductType = "auction"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID          string      `bun:"id,pk"`
	OrderNumber string      `bun:"order_number,notnull"`
	UserID      string      `bun:"user_id,notnull"`
	ProductID   string      `bun:"product_id,notnull"`
	ProductType ProductType `bun:"product_type,notnull"`
	Amount      int64       `bun:"amount,notnull"`
	Quantity    int         `bun:"quantity,notnull,default:0"`
	Status      OrderStatus `bun:"status,notnull"`

	PaymentMethod  string `bun:"payment_method,notnull,default:''"`
	DeliveryMethod string `bun:"delivery_method,notnull,default:''"`

	CreatedAt   time.Time `bun:"created_at,notnull"`
	ExpiresAt   time.Time `bun:"expires_at,nullzero"`
	PaidAt      time.Time `bun:"paid_at,nullzero"`
	ShippedAt   time.Time `bun:"shipped_at,nullzero"`
	DeliveredAt time.Time `bun:"delivered_at,nullzero"`

	BankName    string `bun:"bank_name,notnull,default:''"`
	BankAccount string `bun:"bank_account,notnull,default:''"`
	BankHolder  string `bun:"bank_holder,notnull,default:''"`
}

type ActionType string

const (
	ActionCreated         ActionType = "created"
	ActionStatusChanged   ActionType = "status_changed"
	ActionPaymentReceived ActionType = "payment_received"
	ActionShipped         ActionType = "shipped"
	ActionDelivered       ActionType = "delivered"
	ActionCancelled       ActionType = "cancelled"
)

// OrderTransaction is the append-only audit record, one per observed
// order state transition.
type OrderTransaction struct {
	bun.BaseModel `bun:"table:order_transactions,alias:ot"`

	ID             int64       `bun:"id,pk,autoincrement"`
	OrderID        string      `bun:"order_id,notnull"`
	OrderNumber    string      `bun:"order_number,notnull"`
	Status         OrderStatus `bun:"status,notnull"`
	PreviousStatus OrderStatus `bun:"previous_status,notnull,default:''"`
	Amount         int64       `bun:"amount,notnull"`
	ActionType     ActionType  `bun:"action_type,notnull"`
	CreatedAt      time.Time   `bun:"created_at,notnull"`
}

// SequenceCounter holds the last issued order number per calendar day.
type SequenceCounter struct {
	bun.BaseModel `bun:"table:sequence_counters,alias:sc"`

	Day   string `bun:"day,pk"`
	Value int64  `bun:"value,notnull"`
}
