package wallet

import (
	"context"

	"goldenbook-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service implements the wallet collaborator: deposits plus the
// hold/release/capture contract consumed by the bid ledger and the
// settlement bridge. All moves are transactional and leave an
// append-only ledger row with the available balance after the move.
type Service struct {
	DB *gorm.DB
}

// Balance returns the user's wallet, or a zero-balance wallet if none exists yet.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return &domain.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Deposit credits the user's available balance, creating the wallet on first use.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount int64) (*domain.Wallet, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var out domain.Wallet
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := getOrCreateWallet(tx, userID)
		if err != nil {
			return err
		}
		w.Available += amount
		if err := tx.Save(w).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.WalletTransaction{
			WalletID:     w.WalletID,
			Type:         domain.WalletTxDeposit,
			Amount:       amount,
			BalanceAfter: w.Available,
		}).Error; err != nil {
			return err
		}
		out = *w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Hold reserves amount from the user's available balance in its own transaction.
func (s *Service) Hold(ctx context.Context, userID uuid.UUID, amount int64) (uuid.UUID, error) {
	var holdID uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		holdID, err = s.HoldTx(tx, userID, amount)
		return err
	})
	return holdID, err
}

// HoldTx reserves amount from available into held inside the caller's
// transaction (the bid ledger places the hold atomically with the bid row).
// No hold is placed when the balance is insufficient.
func (s *Service) HoldTx(tx *gorm.DB, userID uuid.UUID, amount int64) (uuid.UUID, error) {
	if amount <= 0 {
		return uuid.Nil, ErrInvalidAmount
	}
	var w domain.Wallet
	if err := tx.Where("user_id = ?", userID).First(&w).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, ErrInsufficientBalance
		}
		return uuid.Nil, err
	}
	if w.Available < amount {
		return uuid.Nil, ErrInsufficientBalance
	}
	w.Available -= amount
	w.Held += amount
	if err := tx.Save(&w).Error; err != nil {
		return uuid.Nil, err
	}
	hold := domain.WalletHold{
		WalletID: w.WalletID,
		Amount:   amount,
		State:    domain.HoldActive,
	}
	if err := tx.Create(&hold).Error; err != nil {
		return uuid.Nil, err
	}
	if err := tx.Create(&domain.WalletTransaction{
		WalletID:     w.WalletID,
		Type:         domain.WalletTxHold,
		Amount:       amount,
		BalanceAfter: w.Available,
		HoldID:       &hold.HoldID,
	}).Error; err != nil {
		return uuid.Nil, err
	}
	return hold.HoldID, nil
}

// Release returns a full active hold to the available balance.
func (s *Service) Release(ctx context.Context, holdID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ReleaseTx(tx, holdID)
	})
}

// ReleaseTx releases an active hold inside the caller's transaction.
func (s *Service) ReleaseTx(tx *gorm.DB, holdID uuid.UUID) error {
	hold, w, err := activeHold(tx, holdID)
	if err != nil {
		return err
	}
	w.Held -= hold.Amount
	w.Available += hold.Amount
	if err := tx.Save(w).Error; err != nil {
		return err
	}
	hold.State = domain.HoldReleased
	if err := tx.Save(hold).Error; err != nil {
		return err
	}
	return tx.Create(&domain.WalletTransaction{
		WalletID:     w.WalletID,
		Type:         domain.WalletTxRelease,
		Amount:       hold.Amount,
		BalanceAfter: w.Available,
		HoldID:       &hold.HoldID,
	}).Error
}

// Capture settles amount of an active hold (funds leave the wallet) and
// releases any remainder back to available in the same transaction.
func (s *Service) Capture(ctx context.Context, holdID uuid.UUID, amount int64) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.CaptureTx(tx, holdID, amount)
	})
}

// CaptureTx is Capture inside the caller's transaction.
func (s *Service) CaptureTx(tx *gorm.DB, holdID uuid.UUID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	hold, w, err := activeHold(tx, holdID)
	if err != nil {
		return err
	}
	if amount > hold.Amount {
		return ErrCaptureExceedsHold
	}
	remainder := hold.Amount - amount
	w.Held -= hold.Amount
	w.Available += remainder
	if err := tx.Save(w).Error; err != nil {
		return err
	}
	hold.State = domain.HoldCaptured
	if err := tx.Save(hold).Error; err != nil {
		return err
	}
	if err := tx.Create(&domain.WalletTransaction{
		WalletID:     w.WalletID,
		Type:         domain.WalletTxCapture,
		Amount:       amount,
		BalanceAfter: w.Available,
		HoldID:       &hold.HoldID,
	}).Error; err != nil {
		return err
	}
	if remainder > 0 {
		if err := tx.Create(&domain.WalletTransaction{
			WalletID:     w.WalletID,
			Type:         domain.WalletTxRelease,
			Amount:       remainder,
			BalanceAfter: w.Available,
			HoldID:       &hold.HoldID,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}

// Transactions returns the user's wallet ledger, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID) ([]domain.WalletTransaction, error) {
	var w domain.Wallet
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return []domain.WalletTransaction{}, nil
	}
	if err != nil {
		return nil, err
	}
	var txs []domain.WalletTransaction
	if err := s.DB.WithContext(ctx).
		Where("wallet_id = ?", w.WalletID).
		Order(`"createdAt" DESC`).
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func getOrCreateWallet(tx *gorm.DB, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := tx.Where("user_id = ?", userID).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		w = domain.Wallet{UserID: userID}
		if err := tx.Create(&w).Error; err != nil {
			return nil, err
		}
		return &w, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func activeHold(tx *gorm.DB, holdID uuid.UUID) (*domain.WalletHold, *domain.Wallet, error) {
	var hold domain.WalletHold
	if err := tx.Where("hold_id = ?", holdID).First(&hold).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, ErrHoldNotFound
		}
		return nil, nil, err
	}
	if hold.State != domain.HoldActive {
		return nil, nil, ErrHoldNotActive
	}
	var w domain.Wallet
	if err := tx.Where("wallet_id = ?", hold.WalletID).First(&w).Error; err != nil {
		return nil, nil, err
	}
	return &hold, &w, nil
}
