package scheduler

import (
	"context"
	"testing"
	"time"

	"goldenbook-backend/internal/bids"
	"goldenbook-backend/internal/certificates"
	"goldenbook-backend/internal/clearing"
	"goldenbook-backend/internal/documents"
	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/rounds"
	"goldenbook-backend/internal/settlement"
	"goldenbook-backend/internal/wallet"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type schedFixture struct {
	db    *gorm.DB
	sched *Scheduler
	rdb   *redis.Client
	round *domain.AuctionRound
	bids  *bids.Service
	now   time.Time
}

func setupSchedulerTest(t *testing.T) *schedFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.AuctionRound{}, &domain.AuctionBid{}, &domain.AuctionClearResult{},
		&domain.AuctionDocument{}, &domain.Certificate{},
		&domain.Wallet{}, &domain.WalletHold{}, &domain.WalletTransaction{},
	))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ws := &wallet.Service{DB: db}
	rs := &rounds.Service{DB: db, Wallet: ws}
	docs := &documents.Store{DB: db}

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	round, err := rs.OpenRound(context.Background(), rounds.RoundConfig{
		CompanyID:    uuid.New(),
		Title:        "Scheduled round",
		StartAt:      start,
		EndAt:        start.Add(time.Hour),
		BaseRate:     8.0,
		DeltaMax:     2.0,
		DeltaFloor:   0.5,
		DecayA:       1.0,
		DecayB:       2.0,
		LotSize:      10_000_000,
		TargetAmount: 100_000_000,
	})
	require.NoError(t, err)
	round, err = rs.ActivateRound(context.Background(), round.RoundID)
	require.NoError(t, err)

	f := &schedFixture{db: db, rdb: rdb, round: round, now: start.Add(10 * time.Minute)}
	f.bids = &bids.Service{DB: db, Wallet: ws, Now: func() time.Time { return f.now }}
	f.sched = &Scheduler{
		Rounds:   rs,
		Engine:   &clearing.Engine{DB: db, Wallet: ws, Docs: docs},
		Bridge:   &settlement.Bridge{DB: db, Wallet: ws, Certs: &certificates.Service{DB: db}, Docs: docs},
		Redis:    rdb,
		Interval: 5 * time.Second,
		Now:      func() time.Time { return f.now },
	}
	return f
}

func TestTick_PersistsDecayedDeltaAndSnapshot(t *testing.T) {
	f := setupSchedulerTest(t)

	require.NoError(t, f.sched.Tick(context.Background()))

	var round domain.AuctionRound
	require.NoError(t, f.db.Where("round_id = ?", f.round.RoundID).First(&round).Error)
	assert.Less(t, round.DeltaNow, round.DeltaMax)
	assert.GreaterOrEqual(t, round.DeltaNow, round.DeltaFloor)

	snap, err := GetSnapshot(context.Background(), f.rdb, f.round.RoundID)
	require.NoError(t, err)
	assert.Equal(t, f.round.RoundID, snap.RoundID)
	assert.InDelta(t, round.DeltaNow, snap.DeltaNow, 1e-9)
	assert.InDelta(t, round.BaseRate+round.DeltaNow, snap.RNow, 1e-9)

	ttl := f.rdb.TTL(context.Background(), "round:snapshot:"+f.round.RoundID.String()).Val()
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 2*f.sched.Interval)
}

func TestTick_DeltaDecreasesAcrossTicks(t *testing.T) {
	f := setupSchedulerTest(t)

	require.NoError(t, f.sched.Tick(context.Background()))
	var first domain.AuctionRound
	require.NoError(t, f.db.Where("round_id = ?", f.round.RoundID).First(&first).Error)

	f.now = f.now.Add(20 * time.Minute)
	require.NoError(t, f.sched.Tick(context.Background()))
	var second domain.AuctionRound
	require.NoError(t, f.db.Where("round_id = ?", f.round.RoundID).First(&second).Error)

	assert.Less(t, second.DeltaNow, first.DeltaNow)
}

func TestTick_FinalizesExpiredRound(t *testing.T) {
	f := setupSchedulerTest(t)

	userID := uuid.New()
	ws := &wallet.Service{DB: f.db}
	_, err := ws.Deposit(context.Background(), userID, 50_000_000)
	require.NoError(t, err)
	bid, err := f.bids.SubmitBid(context.Background(), bids.SubmitBidInput{
		RoundID: f.round.RoundID,
		UserID:  userID,
		Amount:  50_000_000,
		BidType: domain.BidMarket,
	})
	require.NoError(t, err)

	f.now = f.round.EndAt.Add(time.Second)
	require.NoError(t, f.sched.Tick(context.Background()))

	var round domain.AuctionRound
	require.NoError(t, f.db.Where("round_id = ?", f.round.RoundID).First(&round).Error)
	assert.Equal(t, domain.RoundCleared, round.Status)

	var result domain.AuctionClearResult
	require.NoError(t, f.db.Where("round_id = ?", f.round.RoundID).First(&result).Error)
	assert.Equal(t, int64(50_000_000), result.TotalFilled)

	var settled domain.AuctionBid
	require.NoError(t, f.db.Where("bid_id = ?", bid.BidID).First(&settled).Error)
	assert.Equal(t, domain.SettlementSettled, settled.SettlementState)

	// Snapshot for a finalized round is dropped.
	_, err = GetSnapshot(context.Background(), f.rdb, f.round.RoundID)
	assert.ErrorIs(t, err, redis.Nil)

	// Subsequent ticks are no-ops for the finalized round.
	require.NoError(t, f.sched.Tick(context.Background()))
}

func TestTick_RecoversRoundStuckInClearing(t *testing.T) {
	f := setupSchedulerTest(t)

	userID := uuid.New()
	ws := &wallet.Service{DB: f.db}
	_, err := ws.Deposit(context.Background(), userID, 50_000_000)
	require.NoError(t, err)
	bid, err := f.bids.SubmitBid(context.Background(), bids.SubmitBidInput{
		RoundID: f.round.RoundID,
		UserID:  userID,
		Amount:  50_000_000,
		BidType: domain.BidMarket,
	})
	require.NoError(t, err)

	// Close the round but stop before clearing, as a crash between the two
	// steps would.
	f.now = f.round.EndAt.Add(time.Second)
	closed, err := f.sched.Rounds.CloseRound(context.Background(), f.round.RoundID)
	require.NoError(t, err)
	require.Equal(t, domain.RoundClearing, closed.Status)

	require.NoError(t, f.sched.Tick(context.Background()))

	var round domain.AuctionRound
	require.NoError(t, f.db.Where("round_id = ?", f.round.RoundID).First(&round).Error)
	assert.Equal(t, domain.RoundCleared, round.Status)

	var settled domain.AuctionBid
	require.NoError(t, f.db.Where("bid_id = ?", bid.BidID).First(&settled).Error)
	assert.Equal(t, domain.SettlementSettled, settled.SettlementState)
}

func TestTick_RetriesFailedSettlement(t *testing.T) {
	f := setupSchedulerTest(t)

	userID := uuid.New()
	ws := &wallet.Service{DB: f.db}
	_, err := ws.Deposit(context.Background(), userID, 50_000_000)
	require.NoError(t, err)
	bid, err := f.bids.SubmitBid(context.Background(), bids.SubmitBidInput{
		RoundID: f.round.RoundID,
		UserID:  userID,
		Amount:  50_000_000,
		BidType: domain.BidMarket,
	})
	require.NoError(t, err)

	f.now = f.round.EndAt.Add(time.Second)
	require.NoError(t, f.sched.Tick(context.Background()))

	// A filled bid whose settlement exhausted its retries earlier.
	require.NoError(t, f.db.Model(&domain.AuctionBid{}).
		Where("bid_id = ?", bid.BidID).
		Update("settlement_state", domain.SettlementFailed).Error)

	require.NoError(t, f.sched.Tick(context.Background()))

	var settled domain.AuctionBid
	require.NoError(t, f.db.Where("bid_id = ?", bid.BidID).First(&settled).Error)
	assert.Equal(t, domain.SettlementSettled, settled.SettlementState)
}
