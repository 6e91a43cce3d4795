package clearing

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"goldenbook-backend/internal/bids"
	"goldenbook-backend/internal/decay"
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

type clearFixture struct {
	db     *gorm.DB
	engine *Engine
	rounds *rounds.Service
	bids   *bids.Service
	wallet *wallet.Service
	round  *domain.AuctionRound
}

func setupClearTest(t *testing.T, mutate func(*rounds.RoundConfig)) *clearFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.AuctionRound{}, &domain.AuctionBid{}, &domain.AuctionClearResult{},
		&domain.AuctionDocument{},
		&domain.Wallet{}, &domain.WalletHold{}, &domain.WalletTransaction{},
	))

	ws := &wallet.Service{DB: db}
	rs := &rounds.Service{DB: db, Wallet: ws}

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := rounds.RoundConfig{
		CompanyID:    uuid.New(),
		Title:        "Series C",
		StartAt:      start,
		EndAt:        start.Add(72 * time.Hour),
		BaseRate:     8.0,
		DeltaMax:     2.0,
		DeltaFloor:   0.5,
		DecayA:       1.0,
		DecayB:       2.0,
		LotSize:      100_000_000,
		TargetAmount: 1_000_000_000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	round, err := rs.OpenRound(context.Background(), cfg)
	require.NoError(t, err)
	round, err = rs.ActivateRound(context.Background(), round.RoundID)
	require.NoError(t, err)

	bs := &bids.Service{DB: db, Wallet: ws, Now: func() time.Time { return start.Add(time.Hour) }}
	return &clearFixture{
		db:     db,
		engine: &Engine{DB: db, Wallet: ws, Docs: &documents.Store{DB: db}},
		rounds: rs,
		bids:   bs,
		wallet: ws,
		round:  round,
	}
}

func (f *clearFixture) submit(t *testing.T, amount int64, bidType domain.BidType, minDelta *float64) *domain.AuctionBid {
	t.Helper()
	userID := uuid.New()
	_, err := f.wallet.Deposit(context.Background(), userID, amount)
	require.NoError(t, err)
	bid, err := f.bids.SubmitBid(context.Background(), bids.SubmitBidInput{
		RoundID:  f.round.RoundID,
		UserID:   userID,
		Amount:   amount,
		BidType:  bidType,
		MinDelta: minDelta,
	})
	require.NoError(t, err)
	return bid
}

func (f *clearFixture) close(t *testing.T) {
	t.Helper()
	_, err := f.rounds.CloseRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
}

func (f *clearFixture) bid(t *testing.T, bidID uuid.UUID) *domain.AuctionBid {
	t.Helper()
	var bid domain.AuctionBid
	require.NoError(t, f.db.Where("bid_id = ?", bidID).First(&bid).Error)
	return &bid
}

func ptr(v float64) *float64 { return &v }

func TestClearRound_OversubscribedStraddlingLimitBid(t *testing.T) {
	f := setupClearTest(t, nil)
	market := f.submit(t, 400_000_000, domain.BidMarket, nil)
	// Higher-delta limit bid submitted first; acceptance order must still
	// serve the lower delta first.
	high := f.submit(t, 400_000_000, domain.BidLimit, ptr(1.5))
	low := f.submit(t, 400_000_000, domain.BidLimit, ptr(1.0))
	f.close(t)

	result, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, result.DeltaGClear, 1e-9)
	assert.InDelta(t, 9.5, result.RClear, 1e-9)
	assert.Equal(t, int64(1_000_000_000), result.TotalFilled)
	assert.NotEmpty(t, result.AllocationHash)

	assert.Equal(t, domain.BidFilled, f.bid(t, market.BidID).State)
	assert.Equal(t, domain.BidFilled, f.bid(t, low.BidID).State)

	straddler := f.bid(t, high.BidID)
	assert.Equal(t, domain.BidPartial, straddler.State)
	assert.Equal(t, int64(200_000_000), straddler.AmountFilled)
	require.NotNil(t, straddler.ClearRate)
	assert.InDelta(t, 9.5, *straddler.ClearRate, 1e-9)

	fresh, err := f.rounds.GetRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundCleared, fresh.Status)
	assert.InDelta(t, 1.5, fresh.DeltaNow, 1e-9)
}

func TestClearRound_MarketDemandAloneClearsAtFloor(t *testing.T) {
	f := setupClearTest(t, nil)
	f.submit(t, 600_000_000, domain.BidMarket, nil)
	f.submit(t, 400_000_000, domain.BidMarket, nil)
	f.close(t)

	result, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.InDelta(t, f.round.DeltaFloor, result.DeltaGClear, 1e-9)
	assert.Equal(t, int64(1_000_000_000), result.TotalFilled)
}

func TestClearRound_UnfilledBidCancelledAndHoldReleased(t *testing.T) {
	f := setupClearTest(t, nil)
	f.submit(t, 1_000_000_000, domain.BidMarket, nil)
	loser := f.submit(t, 200_000_000, domain.BidLimit, ptr(1.8))
	f.close(t)

	_, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)

	got := f.bid(t, loser.BidID)
	assert.Equal(t, domain.BidCancelled, got.State)
	assert.Equal(t, int64(0), got.AmountFilled)
	assert.Equal(t, domain.SettlementSettled, got.SettlementState)

	w, err := f.wallet.Balance(context.Background(), loser.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000_000), w.Available)
	assert.Equal(t, int64(0), w.Held)
}

func TestClearRound_UndersubscribedSettlesAtDecayedDelta(t *testing.T) {
	f := setupClearTest(t, nil)
	f.submit(t, 300_000_000, domain.BidMarket, nil)
	f.close(t)

	result, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)

	fresh, err := f.rounds.GetRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	want := decay.DeltaNow(fresh, fresh.InitialEndAt)
	assert.InDelta(t, want, result.DeltaGClear, 1e-9)
	assert.Equal(t, int64(300_000_000), result.TotalFilled)
}

func TestClearRound_UndersubscribedSkipsLimitAboveClosingDelta(t *testing.T) {
	f := setupClearTest(t, nil)
	market := f.submit(t, 300_000_000, domain.BidMarket, nil)
	steep := f.submit(t, 300_000_000, domain.BidLimit, ptr(1.5))
	f.close(t)

	closed, err := f.rounds.GetRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	want := decay.DeltaNow(closed, closed.InitialEndAt)
	require.Less(t, want, 1.5) // the closing offer is below the bid's minimum

	result, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.InDelta(t, want, result.DeltaGClear, 1e-9)
	assert.Equal(t, int64(300_000_000), result.TotalFilled)

	assert.Equal(t, domain.BidFilled, f.bid(t, market.BidID).State)

	// A limit bid above the clearing delta must never fill below its minimum.
	got := f.bid(t, steep.BidID)
	assert.Equal(t, domain.BidCancelled, got.State)
	assert.Equal(t, int64(0), got.AmountFilled)
	assert.Nil(t, got.ClearRate)
	assert.Equal(t, domain.SettlementSettled, got.SettlementState)

	w, err := f.wallet.Balance(context.Background(), steep.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000_000), w.Available)
	assert.Equal(t, int64(0), w.Held)
}

func TestClearRound_InvestorCapLimitsFill(t *testing.T) {
	f := setupClearTest(t, func(cfg *rounds.RoundConfig) {
		cfg.InvestorCapPct = 0.2 // 200M of the 1B target
	})
	whale := f.submit(t, 400_000_000, domain.BidMarket, nil)
	f.close(t)

	result, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000_000), result.TotalFilled)

	got := f.bid(t, whale.BidID)
	assert.Equal(t, domain.BidPartial, got.State)
	assert.Equal(t, int64(200_000_000), got.AmountFilled)
}

func TestClearRound_Idempotent(t *testing.T) {
	f := setupClearTest(t, nil)
	f.submit(t, 500_000_000, domain.BidMarket, nil)
	f.close(t)

	first, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)

	_, err = f.engine.ClearRound(context.Background(), f.round.RoundID)
	assert.ErrorIs(t, err, ErrAlreadyCleared)

	var count int64
	f.db.Model(&domain.AuctionClearResult{}).Where("round_id = ?", f.round.RoundID).Count(&count)
	assert.Equal(t, int64(1), count)

	got, err := f.engine.GetResult(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, first.ResultID, got.ResultID)
}

func TestClearRound_ActiveRoundRejected(t *testing.T) {
	f := setupClearTest(t, nil)
	f.submit(t, 500_000_000, domain.BidMarket, nil)

	_, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	assert.ErrorIs(t, err, ErrRoundNotClearing)
}

func TestClearRound_AllocationDocMatchesResult(t *testing.T) {
	f := setupClearTest(t, nil)
	f.submit(t, 400_000_000, domain.BidMarket, nil)
	f.submit(t, 400_000_000, domain.BidLimit, ptr(1.5))
	f.submit(t, 400_000_000, domain.BidLimit, ptr(1.0))
	f.close(t)

	result, err := f.engine.ClearRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)

	stored, err := f.engine.Docs.Get(context.Background(), result.AllocationDocID)
	require.NoError(t, err)
	assert.Equal(t, result.AllocationHash, stored.Hash)
	assert.Equal(t, domain.DocAllocation, stored.Kind)

	var doc AllocationDoc
	require.NoError(t, json.Unmarshal(stored.Payload, &doc))
	assert.Equal(t, f.round.RoundID, doc.RoundID)
	assert.InDelta(t, result.DeltaGClear, doc.DeltaGClear, 1e-9)
	assert.Equal(t, result.TotalFilled, doc.TotalFilled)
	require.Len(t, doc.Entries, 3)
	// Entries come in acceptance order: market, then limit by ascending delta.
	assert.Equal(t, domain.BidMarket, doc.Entries[0].BidType)
	assert.InDelta(t, 1.0, *doc.Entries[1].MinDelta, 1e-9)
	assert.InDelta(t, 1.5, *doc.Entries[2].MinDelta, 1e-9)
}
