package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuctionClearResult is written exactly once per round, when status moves to
// cleared. Immutable afterwards; the unique index on round_id backs the
// only-once guarantee at the storage level.
type AuctionClearResult struct {
	ResultID        uuid.UUID `gorm:"column:result_id;type:uuid;primaryKey" json:"result_id"`
	RoundID         uuid.UUID `gorm:"column:round_id;type:uuid;not null;uniqueIndex" json:"round_id"`
	RClear          float64   `gorm:"column:r_clear;type:decimal(8,4);not null" json:"r_clear"`
	DeltaGClear     float64   `gorm:"column:delta_g_clear;type:decimal(8,4);not null" json:"delta_g_clear"`
	TotalFilled     int64     `gorm:"column:total_filled;not null" json:"total_filled"`
	AllocationDocID uuid.UUID `gorm:"column:allocation_doc_id;type:uuid;not null" json:"allocation_doc_id"`
	AllocationHash  string    `gorm:"column:allocation_hash;not null" json:"allocation_hash"`
	CreatedAt       time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (AuctionClearResult) TableName() string {
	return "auction_clear_results"
}

func (r *AuctionClearResult) BeforeCreate(tx *gorm.DB) error {
	if r.ResultID == uuid.Nil {
		r.ResultID = uuid.New()
	}
	return nil
}
