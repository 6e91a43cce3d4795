package wallet

import (
	"context"
	"testing"

	"goldenbook-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupWalletTest(t *testing.T) *Service {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Wallet{}, &domain.WalletHold{}, &domain.WalletTransaction{}))
	return &Service{DB: db}
}

func TestDeposit_CreatesWalletAndLedgerRow(t *testing.T) {
	svc := setupWalletTest(t)
	userID := uuid.New()

	w, err := svc.Deposit(context.Background(), userID, 500_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000_000), w.Available)

	txs, err := svc.Transactions(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.WalletTxDeposit, txs[0].Type)
	assert.Equal(t, int64(500_000_000), txs[0].BalanceAfter)
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	svc := setupWalletTest(t)
	_, err := svc.Deposit(context.Background(), uuid.New(), -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestHold_MovesAvailableToHeld(t *testing.T) {
	svc := setupWalletTest(t)
	userID := uuid.New()
	_, err := svc.Deposit(context.Background(), userID, 100)
	require.NoError(t, err)

	holdID, err := svc.Hold(context.Background(), userID, 60)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, holdID)

	w, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), w.Available)
	assert.Equal(t, int64(60), w.Held)
}

func TestHold_InsufficientBalanceLeavesNoHold(t *testing.T) {
	svc := setupWalletTest(t)
	userID := uuid.New()
	_, err := svc.Deposit(context.Background(), userID, 100)
	require.NoError(t, err)

	_, err = svc.Hold(context.Background(), userID, 200)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	var count int64
	svc.DB.Model(&domain.WalletHold{}).Count(&count)
	assert.Equal(t, int64(0), count)

	w, _ := svc.Balance(context.Background(), userID)
	assert.Equal(t, int64(100), w.Available)
}

func TestHold_NoWalletIsInsufficient(t *testing.T) {
	svc := setupWalletTest(t)
	_, err := svc.Hold(context.Background(), uuid.New(), 10)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestRelease_ReturnsFundsOnce(t *testing.T) {
	svc := setupWalletTest(t)
	userID := uuid.New()
	_, err := svc.Deposit(context.Background(), userID, 100)
	require.NoError(t, err)
	holdID, err := svc.Hold(context.Background(), userID, 60)
	require.NoError(t, err)

	require.NoError(t, svc.Release(context.Background(), holdID))
	w, _ := svc.Balance(context.Background(), userID)
	assert.Equal(t, int64(100), w.Available)
	assert.Equal(t, int64(0), w.Held)

	// Holds are single-use.
	assert.ErrorIs(t, svc.Release(context.Background(), holdID), ErrHoldNotActive)
}

func TestCapture_PartialReleasesRemainder(t *testing.T) {
	svc := setupWalletTest(t)
	userID := uuid.New()
	_, err := svc.Deposit(context.Background(), userID, 1000)
	require.NoError(t, err)
	holdID, err := svc.Hold(context.Background(), userID, 400)
	require.NoError(t, err)

	require.NoError(t, svc.Capture(context.Background(), holdID, 300))

	w, _ := svc.Balance(context.Background(), userID)
	assert.Equal(t, int64(700), w.Available) // 600 untouched + 100 remainder
	assert.Equal(t, int64(0), w.Held)

	txs, err := svc.Transactions(context.Background(), userID)
	require.NoError(t, err)
	// deposit + hold + capture + release-of-remainder
	require.Len(t, txs, 4)

	assert.ErrorIs(t, svc.Capture(context.Background(), holdID, 100), ErrHoldNotActive)
}

func TestCapture_ExceedingHoldFails(t *testing.T) {
	svc := setupWalletTest(t)
	userID := uuid.New()
	_, err := svc.Deposit(context.Background(), userID, 1000)
	require.NoError(t, err)
	holdID, err := svc.Hold(context.Background(), userID, 400)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Capture(context.Background(), holdID, 500), ErrCaptureExceedsHold)

	// Hold untouched after the failed capture.
	w, _ := svc.Balance(context.Background(), userID)
	assert.Equal(t, int64(400), w.Held)
}

func TestRelease_UnknownHold(t *testing.T) {
	svc := setupWalletTest(t)
	assert.ErrorIs(t, svc.Release(context.Background(), uuid.New()), ErrHoldNotFound)
}
