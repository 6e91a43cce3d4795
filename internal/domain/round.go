package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionStatus is the round lifecycle state (enum_auction_rounds_status).
type AuctionStatus string

const (
	RoundDraft     AuctionStatus = "draft"
	RoundActive    AuctionStatus = "active"
	RoundClearing  AuctionStatus = "clearing"
	RoundCleared   AuctionStatus = "cleared"
	RoundCancelled AuctionStatus = "cancelled"
)

// AntiSnipingMode controls what happens when bids land inside the sniping window.
type AntiSnipingMode string

const (
	SnipingExtend   AntiSnipingMode = "extend"
	SnipingSnapshot AntiSnipingMode = "snapshot"
	SnipingDisabled AntiSnipingMode = "disabled"
)

// AuctionRound is one fundraising round for a company. Amounts are integer VND;
// rates and deltas are annual percentages. Status only moves forward:
// draft -> active -> clearing -> cleared, with cancel allowed from draft/active.
type AuctionRound struct {
	RoundID    uuid.UUID     `gorm:"column:round_id;type:uuid;primaryKey" json:"round_id"`
	CompanyID  uuid.UUID     `gorm:"column:company_id;type:uuid;not null" json:"company_id"`
	Title      string        `gorm:"column:title;not null" json:"title"`
	RoundIndex int           `gorm:"column:round_index;not null;default:1" json:"round_index"`
	Status     AuctionStatus `gorm:"column:status;type:varchar(20);not null;default:'draft'" json:"status"`

	StartAt time.Time `gorm:"column:start_at;not null" json:"start_at"`
	EndAt   time.Time `gorm:"column:end_at;not null" json:"end_at"`
	// InitialEndAt is the close time as configured. Anti-sniping extensions move
	// EndAt only; the decay curve is anchored here so an extension can never
	// push delta_now back up.
	InitialEndAt time.Time `gorm:"column:initial_end_at;not null" json:"initial_end_at"`

	BaseRate   float64 `gorm:"column:base_rate;type:decimal(8,4);not null" json:"base_rate"`
	DeltaMax   float64 `gorm:"column:delta_max;type:decimal(8,4);not null" json:"delta_max"`
	DeltaFloor float64 `gorm:"column:delta_floor;type:decimal(8,4);not null" json:"delta_floor"`
	DecayA     float64 `gorm:"column:decay_a;type:decimal(8,4);not null;default:0" json:"decay_a"`
	DecayB     float64 `gorm:"column:decay_b;type:decimal(8,4);not null;default:0" json:"decay_b"`
	DeltaNow   float64 `gorm:"column:delta_now;type:decimal(8,4);not null" json:"delta_now"`

	LotSize        int64   `gorm:"column:lot_size;not null" json:"lot_size"`
	TargetAmount   int64   `gorm:"column:target_amount;not null" json:"target_amount"`
	RaisedAmount   int64   `gorm:"column:raised_amount;not null;default:0" json:"raised_amount"`
	CoverRatio     float64 `gorm:"column:cover_ratio;type:decimal(10,4);not null;default:0" json:"cover_ratio"`
	InvestorCapPct float64 `gorm:"column:investor_cap_pct;type:decimal(6,4);not null;default:0" json:"investor_cap_pct"`

	AntiSnipingMode      AntiSnipingMode `gorm:"column:anti_sniping_mode;type:varchar(20);not null;default:'disabled'" json:"anti_sniping_mode"`
	AntiSnipingWindowSec int             `gorm:"column:anti_sniping_window_sec;not null;default:0" json:"anti_sniping_window_sec"`
	AntiSnipingExtendSec int             `gorm:"column:anti_sniping_extend_sec;not null;default:0" json:"anti_sniping_extend_sec"`
	MaxExtensions        int             `gorm:"column:max_extensions;not null;default:0" json:"max_extensions"`
	ExtensionsUsed       int             `gorm:"column:extensions_used;not null;default:0" json:"extensions_used"`
	SnipingSnapshotAt    *time.Time      `gorm:"column:sniping_snapshot_at" json:"sniping_snapshot_at"`

	// NextBidSeq hands out the per-round tiebreaking sequence; bumped under the
	// same version check as the round aggregates so it is strictly monotonic.
	NextBidSeq int64 `gorm:"column:next_bid_seq;not null;default:0" json:"-"`

	// Version backs the optimistic lock: every writer of the mutable fields
	// (raised_amount, delta_now, status, end_at) must match-and-increment it.
	Version int64 `gorm:"column:version;not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (AuctionRound) TableName() string {
	return "auction_rounds"
}

func (r *AuctionRound) BeforeCreate(tx *gorm.DB) error {
	if r.RoundID == uuid.Nil {
		r.RoundID = uuid.New()
	}
	return nil
}

// Duration returns the originally configured round length (ignores extensions
// so the decay curve does not stretch when the close time moves).
func (r *AuctionRound) Duration() time.Duration {
	return r.InitialEndAt.Sub(r.StartAt)
}
