package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Certificate records an investor's capital contribution right for a filled
// bid. One certificate per bid; the unique index makes reissue idempotent.
type Certificate struct {
	CertificateID     uuid.UUID `gorm:"column:certificate_id;type:uuid;primaryKey" json:"certificate_id"`
	UserID            uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	RoundID           uuid.UUID `gorm:"column:round_id;type:uuid;not null" json:"round_id"`
	BidID             uuid.UUID `gorm:"column:bid_id;type:uuid;not null;uniqueIndex" json:"bid_id"`
	Amount            int64     `gorm:"column:amount;not null" json:"amount"`
	Rate              float64   `gorm:"column:rate;type:decimal(8,4);not null" json:"rate"`
	CertificateNumber string    `gorm:"column:certificate_number;not null" json:"certificate_number"`
	Status            string    `gorm:"column:status;type:varchar(10);not null;default:'issued'" json:"status"`
	IssuedAt          time.Time `gorm:"column:issued_at;not null" json:"issued_at"`
	CreatedAt         time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Certificate) TableName() string {
	return "certificates"
}

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.CertificateID == uuid.Nil {
		c.CertificateID = uuid.New()
	}
	return nil
}
