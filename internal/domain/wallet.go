package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldState for wallet holds. A hold is single-use: it moves from active to
// released or captured and never back.
type HoldState string

const (
	HoldActive   HoldState = "active"
	HoldReleased HoldState = "released"
	HoldCaptured HoldState = "captured"
)

// Wallet ledger entry types.
const (
	WalletTxDeposit = "deposit"
	WalletTxHold    = "hold"
	WalletTxRelease = "release"
	WalletTxCapture = "capture"
)

// Wallet holds an investor's balances in integer VND. Available moves to held
// when a bid is submitted; clearing/settlement captures or releases held funds.
type Wallet struct {
	WalletID    uuid.UUID `gorm:"column:wallet_id;type:uuid;primaryKey" json:"wallet_id"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Available   int64     `gorm:"column:available;not null;default:0" json:"available"`
	Held        int64     `gorm:"column:held;not null;default:0" json:"held"`
	Reconciling int64     `gorm:"column:reconciling;not null;default:0" json:"reconciling"`
	CreatedAt   time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Wallet) TableName() string {
	return "wallets"
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.WalletID == uuid.Nil {
		w.WalletID = uuid.New()
	}
	return nil
}

// WalletHold reserves part of a wallet's balance for a single bid.
type WalletHold struct {
	HoldID    uuid.UUID `gorm:"column:hold_id;type:uuid;primaryKey" json:"hold_id"`
	WalletID  uuid.UUID `gorm:"column:wallet_id;type:uuid;not null;index" json:"wallet_id"`
	Amount    int64     `gorm:"column:amount;not null" json:"amount"`
	State     HoldState `gorm:"column:state;type:varchar(10);not null;default:'active'" json:"state"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (WalletHold) TableName() string {
	return "wallet_holds"
}

func (h *WalletHold) BeforeCreate(tx *gorm.DB) error {
	if h.HoldID == uuid.Nil {
		h.HoldID = uuid.New()
	}
	return nil
}

// WalletTransaction is the append-only audit trail of balance moves.
// BalanceAfter is the available balance after the move.
type WalletTransaction struct {
	TxID         uuid.UUID  `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	WalletID     uuid.UUID  `gorm:"column:wallet_id;type:uuid;not null;index" json:"wallet_id"`
	Type         string     `gorm:"column:type;type:varchar(10);not null" json:"type"`
	Amount       int64      `gorm:"column:amount;not null" json:"amount"`
	BalanceAfter int64      `gorm:"column:balance_after;not null" json:"balance_after"`
	HoldID       *uuid.UUID `gorm:"column:hold_id;type:uuid" json:"hold_id"`
	CreatedAt    time.Time  `gorm:"column:createdAt" json:"createdAt"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.TxID == uuid.Nil {
		t.TxID = uuid.New()
	}
	return nil
}
