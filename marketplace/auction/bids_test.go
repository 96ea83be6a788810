package auction

import (
	"context"
	"testing"
	"time"

	"github.com/bidworks/marketplace/marketplace/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(repo *fakeAuctionRepo, now time.Time) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func seedAuction(t *testing.T, repo *fakeAuctionRepo, a *models.Auction) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), a))
}

func TestPlaceBidFirstBidMustExceedStartingPrice(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		Title:         "Test Lot",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       now.Add(time.Hour),
	})
	svc := newTestService(repo, now)
	ctx := context.Background()

	// Not a multiple of the increment.
	err := svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1400})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// Equal to the starting price is not enough.
	err = svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1000})
	require.ErrorAs(t, err, &verr)

	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1500}))

	a, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), a.CurrentPrice)
	assert.Equal(t, 1, a.BidCount)
	assert.Equal(t, "u1", a.TopBidderID)
}

func TestPlaceBidMustExceedCurrentPrice(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       now.Add(time.Hour),
	})
	svc := newTestService(repo, now)
	ctx := context.Background()

	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1500}))

	// Matching the current price loses.
	err := svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u2", Amount: 1500})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u2", Amount: 2000}))

	a, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), a.CurrentPrice)
	assert.Equal(t, 2, a.BidCount)
	assert.Equal(t, "u2", a.TopBidderID)
}

func TestPlaceBidRejectsSellerAndInactive(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       now.Add(time.Hour),
	})
	seedAuction(t, repo, &models.Auction{
		ID:            "a2",
		StartingPrice: 1000,
		Status:        models.AuctionStatusEnded,
		CreatedBy:     "seller",
		EndTime:       now.Add(-time.Hour),
	})
	svc := newTestService(repo, now)
	ctx := context.Background()

	var verr *ValidationError
	err := svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "seller", Amount: 1500})
	require.ErrorAs(t, err, &verr)

	err = svc.PlaceBid(ctx, BidRequest{AuctionID: "a2", UserID: "u1", Amount: 1500})
	require.ErrorAs(t, err, &verr)

	err = svc.PlaceBid(ctx, BidRequest{AuctionID: "missing", UserID: "u1", Amount: 1500})
	require.ErrorAs(t, err, &verr)
}

func TestPlaceBidAntiSnipeExtendsEndTime(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	endTime := now.Add(10 * time.Second)
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       endTime,
	})
	svc := newTestService(repo, now)
	ctx := context.Background()

	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1500}))

	a, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(snipeWindow), a.EndTime)
}

func TestPlaceBidOutsideSnipeWindowKeepsEndTime(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	endTime := now.Add(time.Hour)
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       endTime,
	})
	svc := newTestService(repo, now)

	require.NoError(t, svc.PlaceBid(context.Background(), BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1500}))

	a, err := repo.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, endTime, a.EndTime)
}

func TestPlaceBidBotFailuresAreSwallowed(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       now.Add(time.Hour),
	})
	svc := newTestService(repo, now)
	ctx := context.Background()

	// Invalid bot bids report success to the scheduler but change nothing.
	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "bot-1", Amount: 700, IsBot: true}))
	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "missing", UserID: "bot-1", Amount: 1500, IsBot: true}))

	a, err := repo.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 0, a.BidCount)
	assert.Equal(t, int64(1000), a.CurrentPrice)
}

func TestCreateAuctionValidation(t *testing.T) {
	repo := newFakeAuctionRepo()
	svc := newTestService(repo, time.Now())
	ctx := context.Background()

	var verr *ValidationError

	_, err := svc.CreateAuction(ctx, "", "seller", 1000, time.Hour, nil)
	require.ErrorAs(t, err, &verr)

	_, err = svc.CreateAuction(ctx, "Lot", "seller", 1300, time.Hour, nil)
	require.ErrorAs(t, err, &verr)

	_, err = svc.CreateAuction(ctx, "Lot", "seller", 1000, 10*time.Second, nil)
	require.ErrorAs(t, err, &verr)

	a, err := svc.CreateAuction(ctx, "Lot", "seller", 1000, time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, a.Status)
	assert.Equal(t, int64(1000), a.CurrentPrice)
}

func TestCancelBySeller(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       now.Add(time.Hour),
	})
	svc := newTestService(repo, now)
	ctx := context.Background()

	var verr *ValidationError
	err := svc.CancelBySeller(ctx, "a1", "someone-else")
	require.ErrorAs(t, err, &verr)

	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1500}))

	// Bids block seller cancellation.
	err = svc.CancelBySeller(ctx, "a1", "seller")
	require.ErrorAs(t, err, &verr)
}

func TestGetAuctionCacheInvalidatedOnBid(t *testing.T) {
	repo := newFakeAuctionRepo()
	now := time.Now()
	seedAuction(t, repo, &models.Auction{
		ID:            "a1",
		StartingPrice: 1000,
		CreatedBy:     "seller",
		EndTime:       now.Add(time.Hour),
	})
	svc := newTestService(repo, now)
	ctx := context.Background()

	first, err := svc.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), first.CurrentPrice)

	require.NoError(t, svc.PlaceBid(ctx, BidRequest{AuctionID: "a1", UserID: "u1", Amount: 1500}))

	second, err := svc.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), second.CurrentPrice)
}
