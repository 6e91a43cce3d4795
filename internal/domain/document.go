package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document kinds.
const (
	DocAllocation = "allocation"
	DocReceipt    = "receipt"
)

// AuctionDocument is a content-addressed JSON document (allocation tables,
// bid receipts). Hash is the sha256 of the canonical payload; writing the
// same payload twice yields the same row.
type AuctionDocument struct {
	DocID     uuid.UUID      `gorm:"column:doc_id;type:uuid;primaryKey" json:"doc_id"`
	Kind      string         `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Hash      string         `gorm:"column:hash;not null;uniqueIndex" json:"hash"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	CreatedAt time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (AuctionDocument) TableName() string {
	return "auction_documents"
}

func (d *AuctionDocument) BeforeCreate(tx *gorm.DB) error {
	if d.DocID == uuid.Nil {
		d.DocID = uuid.New()
	}
	return nil
}
