package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuctionStatus string

const (
	AuctionStatusDraft  AuctionStatus = "draft"
	AuctionStatusActive AuctionStatus = "active"
	AuctionStatusEnded  AuctionStatus = "ended"
)

type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID            string        `bun:"id,pk"`
	Title         string        `bun:"title,notnull"`
	ImageURLs     []string      `bun:"image_urls,type:jsonb"`
	StartingPrice int64         `bun:"starting_price,notnull"`
	CurrentPrice  int64         `bun:"current_price,notnull"`
	Status        AuctionStatus `bun:"status,notnull"`
	CreatedBy     string        `bun:"created_by,notnull"`
	WinnerID      string        `bun:"winner_id,notnull,default:''"`
	EndTime       time.Time     `bun:"end_time,notnull"`
	Featured      bool          `bun:"featured,notnull,default:false"`

	// Denormalized bid state, maintained in the same transaction as
	// every accepted bid.
	TopBidderID  string    `bun:"top_bidder_id,notnull,default:''"`
	TopBidderBot bool      `bun:"top_bidder_bot,notnull,default:false"`
	LastBidAt    time.Time `bun:"last_bid_at,nullzero"`
	BidCount     int       `bun:"bid_count,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Bid is append-only; rows are never edited or deleted.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	AuctionID string    `bun:"auction_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	Username  string    `bun:"username,notnull"`
	Amount    int64     `bun:"amount,notnull"`
	IsBot     bool      `bun:"is_bot,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
