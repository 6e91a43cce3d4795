package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"goldenbook-backend/internal/bids"
	"goldenbook-backend/internal/certificates"
	"goldenbook-backend/internal/clearing"
	"goldenbook-backend/internal/documents"
	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/rounds"
	"goldenbook-backend/internal/wallet"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// flakyCaptor fails the first n captures per hold before delegating.
type flakyCaptor struct {
	*wallet.Service
	failFirst int
	seen      map[uuid.UUID]int
}

func (f *flakyCaptor) CaptureTx(tx *gorm.DB, holdID uuid.UUID, amount int64) error {
	if f.seen == nil {
		f.seen = map[uuid.UUID]int{}
	}
	if f.seen[holdID] < f.failFirst {
		f.seen[holdID]++
		return errors.New("wallet backend unavailable")
	}
	return f.Service.CaptureTx(tx, holdID, amount)
}

type settleFixture struct {
	db     *gorm.DB
	bridge *Bridge
	wallet *wallet.Service
	round  *domain.AuctionRound
	bids   []*domain.AuctionBid
}

// setupSettleTest builds a cleared round: 400M market fully filled and a
// 400M limit bid partially filled at 200M against a 600M target.
func setupSettleTest(t *testing.T) *settleFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.AuctionRound{}, &domain.AuctionBid{}, &domain.AuctionClearResult{},
		&domain.AuctionDocument{}, &domain.Certificate{},
		&domain.Wallet{}, &domain.WalletHold{}, &domain.WalletTransaction{},
	))

	ws := &wallet.Service{DB: db}
	rs := &rounds.Service{DB: db, Wallet: ws}
	docs := &documents.Store{DB: db}

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	round, err := rs.OpenRound(context.Background(), rounds.RoundConfig{
		CompanyID:    uuid.New(),
		Title:        "Bridge round",
		StartAt:      start,
		EndAt:        start.Add(72 * time.Hour),
		BaseRate:     8.0,
		DeltaMax:     2.0,
		DeltaFloor:   0.5,
		DecayA:       1.0,
		DecayB:       2.0,
		LotSize:      100_000_000,
		TargetAmount: 600_000_000,
	})
	require.NoError(t, err)
	round, err = rs.ActivateRound(context.Background(), round.RoundID)
	require.NoError(t, err)

	bs := &bids.Service{DB: db, Wallet: ws, Now: func() time.Time { return start.Add(time.Hour) }}
	f := &settleFixture{db: db, wallet: ws, round: round}
	minDelta := 1.2
	for _, in := range []bids.SubmitBidInput{
		{RoundID: round.RoundID, Amount: 400_000_000, BidType: domain.BidMarket},
		{RoundID: round.RoundID, Amount: 400_000_000, BidType: domain.BidLimit, MinDelta: &minDelta},
	} {
		in.UserID = uuid.New()
		_, err := ws.Deposit(context.Background(), in.UserID, in.Amount)
		require.NoError(t, err)
		bid, err := bs.SubmitBid(context.Background(), in)
		require.NoError(t, err)
		f.bids = append(f.bids, bid)
	}

	_, err = rs.CloseRound(context.Background(), round.RoundID)
	require.NoError(t, err)
	engine := &clearing.Engine{DB: db, Wallet: ws, Docs: docs}
	_, err = engine.ClearRound(context.Background(), round.RoundID)
	require.NoError(t, err)

	f.bridge = &Bridge{
		DB:     db,
		Wallet: ws,
		Certs:  &certificates.Service{DB: db},
		Docs:   docs,
	}
	return f
}

func (f *settleFixture) bid(t *testing.T, bidID uuid.UUID) *domain.AuctionBid {
	t.Helper()
	var bid domain.AuctionBid
	require.NoError(t, f.db.Where("bid_id = ?", bidID).First(&bid).Error)
	return &bid
}

func TestSettleRound_CapturesIssuesAndReceipts(t *testing.T) {
	f := setupSettleTest(t)

	report, err := f.bridge.SettleRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Settled)
	assert.Equal(t, 0, report.Failed)

	// Fully filled market bid: whole hold captured, nothing back.
	full := f.bid(t, f.bids[0].BidID)
	assert.Equal(t, domain.SettlementSettled, full.SettlementState)
	require.NotNil(t, full.ReceiptDocID)
	w, _ := f.wallet.Balance(context.Background(), full.UserID)
	assert.Equal(t, int64(0), w.Available)
	assert.Equal(t, int64(0), w.Held)

	// Partial bid: 200M captured, 200M remainder released.
	partial := f.bid(t, f.bids[1].BidID)
	assert.Equal(t, int64(200_000_000), partial.AmountFilled)
	assert.Equal(t, domain.SettlementSettled, partial.SettlementState)
	w, _ = f.wallet.Balance(context.Background(), partial.UserID)
	assert.Equal(t, int64(200_000_000), w.Available)
	assert.Equal(t, int64(0), w.Held)

	var certCount int64
	f.db.Model(&domain.Certificate{}).Where("round_id = ?", f.round.RoundID).Count(&certCount)
	assert.Equal(t, int64(2), certCount)
}

func TestSettleRound_Rerunnable(t *testing.T) {
	f := setupSettleTest(t)

	_, err := f.bridge.SettleRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)

	report, err := f.bridge.SettleRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Settled)
	assert.Equal(t, 0, report.Failed)

	var certCount int64
	f.db.Model(&domain.Certificate{}).Where("round_id = ?", f.round.RoundID).Count(&certCount)
	assert.Equal(t, int64(2), certCount)
}

func TestSettleRound_RetriesTransientCaptureFailure(t *testing.T) {
	f := setupSettleTest(t)
	f.bridge.Wallet = &flakyCaptor{Service: f.wallet, failFirst: 2}
	f.bridge.MaxAttempts = 3
	f.bridge.Backoff = time.Millisecond

	report, err := f.bridge.SettleRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Settled)
	assert.Equal(t, 0, report.Failed)
}

func TestSettleRound_ExhaustionIsolatedPerBid(t *testing.T) {
	f := setupSettleTest(t)
	// Only the partial bid's hold keeps failing.
	captor := &flakyCaptor{Service: f.wallet, failFirst: 100, seen: map[uuid.UUID]int{
		f.bids[0].HoldID: 100, // already past its failures
	}}
	f.bridge.Wallet = captor
	f.bridge.MaxAttempts = 2
	f.bridge.Backoff = time.Millisecond

	report, err := f.bridge.SettleRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.FailedBids, 1)
	assert.Equal(t, f.bids[1].BidID, report.FailedBids[0])

	failed := f.bid(t, f.bids[1].BidID)
	assert.Equal(t, domain.SettlementFailed, failed.SettlementState)
	assert.Equal(t, 2, failed.SettlementAttempts)

	// The healthy bid settled regardless of its neighbour.
	assert.Equal(t, domain.SettlementSettled, f.bid(t, f.bids[0].BidID).SettlementState)

	// A later pass picks the failed bid back up once the backend recovers.
	captor.failFirst = 0
	report, err = f.bridge.SettleRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 0, report.Failed)
}

func TestSettleRound_NotClearedRejected(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.AuctionRound{}, &domain.AuctionBid{}))

	rs := &rounds.Service{DB: db}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	round, err := rs.OpenRound(context.Background(), rounds.RoundConfig{
		CompanyID:    uuid.New(),
		Title:        "Unfinished",
		StartAt:      start,
		EndAt:        start.Add(time.Hour),
		BaseRate:     8.0,
		DeltaMax:     2.0,
		DeltaFloor:   0.5,
		LotSize:      100_000_000,
		TargetAmount: 600_000_000,
	})
	require.NoError(t, err)

	bridge := &Bridge{DB: db}
	_, err = bridge.SettleRound(context.Background(), round.RoundID)
	assert.ErrorIs(t, err, ErrRoundNotCleared)

	_, err = bridge.SettleRound(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRoundNotFound)
}
