package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BidType (enum_auction_bids_bid_type): market bids accept any clearing delta,
// limit bids carry the lowest delta the investor will accept.
type BidType string

const (
	BidMarket BidType = "market"
	BidLimit  BidType = "limit"
)

// BidState (enum_auction_bids_state). filled and cancelled are terminal.
type BidState string

const (
	BidActive    BidState = "active"
	BidFilled    BidState = "filled"
	BidPartial   BidState = "partial"
	BidCancelled BidState = "cancelled"
)

// SettlementState tracks the post-clearing wallet/certificate work per bid.
type SettlementState string

const (
	SettlementPending SettlementState = "pending"
	SettlementSettled SettlementState = "settled"
	SettlementFailed  SettlementState = "failed"
)

// AuctionBid is one investor order against a round. Rows are append-only:
// cancellation and clearing change state, nothing is ever deleted.
type AuctionBid struct {
	BidID   uuid.UUID `gorm:"column:bid_id;type:uuid;primaryKey" json:"bid_id"`
	RoundID uuid.UUID `gorm:"column:round_id;type:uuid;not null;index" json:"round_id"`
	UserID  uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`

	Amount   int64    `gorm:"column:amount;not null" json:"amount"`
	BidType  BidType  `gorm:"column:bid_type;type:varchar(10);not null" json:"bid_type"`
	MinDelta *float64 `gorm:"column:min_delta;type:decimal(8,4)" json:"min_delta"`

	State        BidState `gorm:"column:state;type:varchar(10);not null;default:'active'" json:"state"`
	AmountFilled int64    `gorm:"column:amount_filled;not null;default:0" json:"amount_filled"`
	ClearRate    *float64 `gorm:"column:clear_rate;type:decimal(8,4)" json:"clear_rate"`

	HoldID       uuid.UUID  `gorm:"column:hold_id;type:uuid;not null" json:"hold_id"`
	ReceiptDocID *uuid.UUID `gorm:"column:receipt_doc_id;type:uuid" json:"receipt_doc_id"`

	// Seq is the round-scoped submission sequence; together with CreatedAt it
	// gives clearing a total, reproducible acceptance order.
	Seq int64 `gorm:"column:seq;not null" json:"seq"`

	SettlementState    SettlementState `gorm:"column:settlement_state;type:varchar(10);not null;default:'pending'" json:"settlement_state"`
	SettlementAttempts int             `gorm:"column:settlement_attempts;not null;default:0" json:"settlement_attempts"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (AuctionBid) TableName() string {
	return "auction_bids"
}

func (b *AuctionBid) BeforeCreate(tx *gorm.DB) error {
	if b.BidID == uuid.Nil {
		b.BidID = uuid.New()
	}
	return nil
}
