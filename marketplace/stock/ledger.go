package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

type Code string

const (
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeError             Code = "ERROR"
)

// Result reports the outcome of a reservation attempt.
type Result struct {
	Success       bool
	Code          Code
	ReservationID string
}

const (
	productCacheSize = 4096
	reservationTTL   = 30 * time.Minute
)

var (
	errInsufficientStock = errors.New("insufficient stock")
	errNotWholeBundle    = errors.New("quantity is not a whole number of bundles")
)

// Ledger reserves and restores finite product inventory. Every stock
// mutation goes through a row-locked transaction; two buyers racing for
// the last unit cannot both win.
type Ledger struct {
	products repositories.ProductRepository
	cache    *lru.Cache
}

func NewLedger(products repositories.ProductRepository) *Ledger {
	cache, _ := lru.New(productCacheSize)
	return &Ledger{
		products: products,
		cache:    cache,
	}
}

// Reserve atomically decrements stock for the product, recomputing
// bundle counts for bundle-sold products in the same transaction. On
// success an advisory StockReservation record is written best-effort.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int, userID string) Result {
	if productID == "" || quantity <= 0 {
		return Result{Code: CodeInvalidRequest}
	}

	err := l.products.Mutate(ctx, productID, func(p *models.Product) error {
		if p.SellOnlyByBundle {
			if p.UnitsPerBundle <= 0 || quantity%p.UnitsPerBundle != 0 {
				return errNotWholeBundle
			}
		}
		if quantity > p.Stock {
			return errInsufficientStock
		}
		p.Stock -= quantity
		if p.UnitsPerBundle > 0 {
			p.Bundles = max(0, p.Bundles-bundlesFor(quantity, p.UnitsPerBundle))
		}
		return nil
	})

	l.cache.Remove(productID)

	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrProductNotFound):
		return Result{Code: CodeProductNotFound}
	case errors.Is(err, errInsufficientStock):
		return Result{Code: CodeInsufficientStock}
	case errors.Is(err, errNotWholeBundle):
		return Result{Code: CodeInvalidRequest}
	default:
		slog.Error("Stock reservation transaction failed",
			slog.String("product_id", productID),
			slog.Int("quantity", quantity),
			slog.Any("error", err))
		return Result{Code: CodeError}
	}

	reservation := &models.StockReservation{
		ID:        uuid.NewString(),
		ProductID: productID,
		Quantity:  quantity,
		UserID:    userID,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(reservationTTL),
	}

	// Advisory only; the decrement above is already committed.
	if err := l.products.CreateReservation(ctx, reservation); err != nil {
		slog.Warn("Failed to write stock reservation record",
			slog.String("product_id", productID),
			slog.String("reservation_id", reservation.ID),
			slog.Any("error", err))
	}

	return Result{Success: true, ReservationID: reservation.ID}
}

// Restore reverses a reservation's decrement. It never fails the
// caller's flow; errors are logged and swallowed so a failed restore
// cannot block an order cancellation or expiry.
func (l *Ledger) Restore(ctx context.Context, productID string, quantity int) {
	if productID == "" || quantity <= 0 {
		return
	}

	err := l.products.Mutate(ctx, productID, func(p *models.Product) error {
		p.Stock += quantity
		if p.StockTotal > 0 && p.Stock > p.StockTotal {
			p.Stock = p.StockTotal
		}
		if p.UnitsPerBundle > 0 {
			p.Bundles += bundlesFor(quantity, p.UnitsPerBundle)
			if limit := bundlesFor(p.StockTotal, p.UnitsPerBundle); p.StockTotal > 0 && p.Bundles > limit {
				p.Bundles = limit
			}
		}
		return nil
	})

	l.cache.Remove(productID)

	if err != nil {
		slog.Error("Failed to restore stock",
			slog.String("product_id", productID),
			slog.Int("quantity", quantity),
			slog.Any("error", err))
		return
	}

	slog.Info("Stock restored",
		slog.String("product_id", productID),
		slog.Int("quantity", quantity))
}

// GetProduct returns a cached read view of the product. The cache is
// invalidated on every write; the database row stays authoritative.
func (l *Ledger) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	if cached, ok := l.cache.Get(productID); ok {
		return cached.(*models.Product), nil
	}

	product, err := l.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	l.cache.Add(productID, product)
	return product, nil
}

// ReleaseStaleReservations marks advisory reservations past their
// expiry hint as released. Diagnostic bookkeeping only; it does not
// touch stock.
func (l *Ledger) ReleaseStaleReservations(ctx context.Context) error {
	released, err := l.products.ExpireStaleReservations(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to release stale reservations: %w", err)
	}
	if released > 0 {
		slog.Info("Released stale stock reservations", slog.Int64("count", released))
	}
	return nil
}

func bundlesFor(quantity, unitsPerBundle int) int {
	return (quantity + unitsPerBundle - 1) / unitsPerBundle
}
