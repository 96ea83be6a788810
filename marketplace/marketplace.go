package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bidworks/marketplace/marketplace/auction"
	"github.com/bidworks/marketplace/marketplace/audit"
	"github.com/bidworks/marketplace/marketplace/database"
	"github.com/bidworks/marketplace/marketplace/database/repositories"
	"github.com/bidworks/marketplace/marketplace/notifications"
	"github.com/bidworks/marketplace/marketplace/orders"
	"github.com/bidworks/marketplace/marketplace/stock"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// App wires the storage, audit and notification backends to the
// marketplace services and background workers.
type App struct {
	Cfg      *Config
	DB       *database.DB
	Mongo    *mongo.Client
	Notifier notifications.Notifier
	Actions  *audit.ActionLogger

	Ledger   *stock.Ledger
	Auctions *auction.Service
	Orders   *orders.Service

	closer *auction.Closer
	expiry *orders.ExpiryWorker
}

func New(ctx context.Context, cfg *Config) (*App, error) {
	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.InitializeSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	app := &App{Cfg: cfg, DB: db}

	if cfg.Mongo.URI != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			slog.Warn("Action log disabled, MongoDB unreachable", slog.Any("error", err))
		} else {
			app.Mongo = client
			app.Actions = audit.NewActionLogger(client, cfg.Mongo.Database)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		app.Notifier = notifications.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, cfg.Kafka.MessagesTopic)
	} else {
		slog.Warn("No Kafka brokers configured, notifications disabled")
		app.Notifier = notifications.Noop{}
	}

	bunDB := db.BunDB()
	auctionRepo := repositories.NewAuctionRepository(bunDB)
	productRepo := repositories.NewProductRepository(bunDB)
	orderRepo := repositories.NewOrderRepository(bunDB)
	transactionRepo := repositories.NewTransactionRepository(bunDB)
	sequenceRepo := repositories.NewSequenceRepository(bunDB)

	app.Ledger = stock.NewLedger(productRepo)
	app.Auctions = auction.NewService(auctionRepo, app.Notifier, app.Actions)

	allocator := orders.NewNumberAllocator(sequenceRepo)
	app.Orders = orders.NewService(orderRepo, transactionRepo, allocator, app.Ledger, auctionRepo, app.Notifier, app.Actions)

	app.closer = auction.NewCloser(auctionRepo, app.Orders, app.Notifier, app.Actions,
		cfg.Workers.AuctionSweepInterval(), cfg.Workers.PaymentWindow())
	app.expiry = orders.NewExpiryWorker(app.Orders, cfg.Workers.OrderSweepInterval(), cfg.Workers.AdminUserID)

	return app, nil
}

// Start launches the background workers. They stop when ctx is
// cancelled.
func (a *App) Start(ctx context.Context) {
	go a.closer.Run(ctx)
	go a.expiry.Run(ctx)

	go func() {
		ticker := time.NewTicker(a.Cfg.Workers.OrderSweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.Ledger.ReleaseStaleReservations(ctx); err != nil {
					slog.Error("Reservation sweep failed", slog.Any("error", err))
				}
			}
		}
	}()

	slog.Info("Marketplace workers started",
		slog.Duration("auction_sweep", a.Cfg.Workers.AuctionSweepInterval()),
		slog.Duration("order_sweep", a.Cfg.Workers.OrderSweepInterval()),
		slog.Duration("payment_window", a.Cfg.Workers.PaymentWindow()))
}

// Close releases all backend connections.
func (a *App) Close(ctx context.Context) {
	if closer, ok := a.Notifier.(*notifications.KafkaNotifier); ok {
		if err := closer.Close(); err != nil {
			slog.Error("Failed to close Kafka writers", slog.Any("error", err))
		}
	}
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(ctx); err != nil {
			slog.Error("Failed to disconnect MongoDB", slog.Any("error", err))
		}
	}
	a.DB.Close()
}
