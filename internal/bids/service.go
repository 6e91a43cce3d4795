package bids

import (
	"context"
	"time"

	"goldenbook-backend/internal/decay"
	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/pkg/validation"
	"goldenbook-backend/internal/rounds"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// maxSubmitRetries bounds retries when the round row was updated concurrently
// between our read and our versioned write.
const maxSubmitRetries = 3

// HoldPlacer is the slice of the wallet contract the bid ledger consumes.
type HoldPlacer interface {
	HoldTx(tx *gorm.DB, userID uuid.UUID, amount int64) (uuid.UUID, error)
	ReleaseTx(tx *gorm.DB, holdID uuid.UUID) error
}

// Service is the append-only bid ledger. Submissions place a wallet hold and
// update the round aggregates in one transaction; cancellations release the
// hold. Bid rows are never deleted.
type Service struct {
	DB     *gorm.DB
	Wallet HoldPlacer

	// Now is the clock; tests override it to drive anti-sniping windows.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// SubmitBidInput carries a submission. MinDelta must be set for limit bids
// and nil for market bids.
type SubmitBidInput struct {
	RoundID  uuid.UUID
	UserID   uuid.UUID
	Amount   int64
	BidType  domain.BidType
	MinDelta *float64
}

// SubmitBid validates the order against the round, places the wallet hold and
// appends the bid. Retried on round version conflicts; any validation or
// balance failure rolls the whole transaction back, so a rejected bid leaves
// no hold behind.
func (s *Service) SubmitBid(ctx context.Context, in SubmitBidInput) (*domain.AuctionBid, error) {
	var bid *domain.AuctionBid
	var err error
	for attempt := 0; attempt < maxSubmitRetries; attempt++ {
		bid, err = s.trySubmit(ctx, in)
		if err != rounds.ErrVersionConflict {
			return bid, err
		}
		log.Warn().Str("round_id", in.RoundID.String()).Int("attempt", attempt+1).Msg("Bid submit hit round version conflict, retrying")
	}
	return nil, err
}

func (s *Service) trySubmit(ctx context.Context, in SubmitBidInput) (*domain.AuctionBid, error) {
	var out domain.AuctionBid
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var round domain.AuctionRound
		if err := tx.Where("round_id = ?", in.RoundID).First(&round).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrRoundNotFound
			}
			return err
		}

		now := s.now()
		if round.Status != domain.RoundActive || now.After(round.EndAt) {
			return ErrRoundClosed
		}
		if !validation.IsLotMultiple(in.Amount, round.LotSize) {
			return ErrBelowLotSize
		}
		switch in.BidType {
		case domain.BidMarket:
			if in.MinDelta != nil {
				return ErrMarketHasMinDelta
			}
		case domain.BidLimit:
			if in.MinDelta == nil {
				return ErrMinDeltaRequired
			}
			if !validation.DeltaInBounds(*in.MinDelta, round.DeltaFloor, round.DeltaMax) {
				return ErrMinDeltaOutOfRange
			}
		default:
			return ErrInvalidBidType
		}

		holdID, err := s.Wallet.HoldTx(tx, in.UserID, in.Amount)
		if err != nil {
			return err
		}

		seq := round.NextBidSeq + 1
		bid := domain.AuctionBid{
			RoundID:         in.RoundID,
			UserID:          in.UserID,
			Amount:          in.Amount,
			BidType:         in.BidType,
			MinDelta:        in.MinDelta,
			State:           domain.BidActive,
			HoldID:          holdID,
			Seq:             seq,
			SettlementState: domain.SettlementPending,
		}
		if err := tx.Create(&bid).Error; err != nil {
			return err
		}

		raised := round.RaisedAmount + in.Amount
		updates := map[string]interface{}{
			"raised_amount": raised,
			"cover_ratio":   coverRatio(raised, round.TargetAmount),
			"next_bid_seq":  seq,
		}
		applyAntiSniping(&round, now, updates)

		if err := rounds.ApplyVersioned(tx, round.RoundID, round.Version, updates); err != nil {
			return err
		}
		out = bid
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// applyAntiSniping mutates updates when the bid lands inside the window.
// extend: push end_at out by the configured increment, up to max_extensions —
// after that the round closes strictly at end_at. snapshot: record the first
// in-window bid time; the close time does not move.
func applyAntiSniping(round *domain.AuctionRound, now time.Time, updates map[string]interface{}) {
	if !decay.InSnipingWindow(round, now) {
		return
	}
	switch round.AntiSnipingMode {
	case domain.SnipingExtend:
		if round.ExtensionsUsed >= round.MaxExtensions {
			return
		}
		updates["end_at"] = round.EndAt.Add(time.Duration(round.AntiSnipingExtendSec) * time.Second)
		updates["extensions_used"] = round.ExtensionsUsed + 1
	case domain.SnipingSnapshot:
		if round.SnipingSnapshotAt == nil {
			updates["sniping_snapshot_at"] = now
		}
	}
}

// CancelBid cancels the caller's active bid and releases its hold. Rejected
// with ErrRoundClosed once clearing has started, so in-flight cancellations
// are never silently ignored.
func (s *Service) CancelBid(ctx context.Context, bidID, userID uuid.UUID) error {
	for attempt := 0; ; attempt++ {
		err := s.tryCancel(ctx, bidID, userID)
		if err != rounds.ErrVersionConflict || attempt >= maxSubmitRetries-1 {
			return err
		}
	}
}

func (s *Service) tryCancel(ctx context.Context, bidID, userID uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bid domain.AuctionBid
		if err := tx.Where("bid_id = ?", bidID).First(&bid).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrBidNotFound
			}
			return err
		}
		if bid.UserID != userID {
			return ErrBidNotFound
		}
		if bid.State != domain.BidActive {
			return ErrBidNotActive
		}

		var round domain.AuctionRound
		if err := tx.Where("round_id = ?", bid.RoundID).First(&round).Error; err != nil {
			return err
		}
		if round.Status != domain.RoundActive {
			return ErrRoundClosed
		}

		if err := s.Wallet.ReleaseTx(tx, bid.HoldID); err != nil {
			return err
		}
		bid.State = domain.BidCancelled
		bid.SettlementState = domain.SettlementSettled
		if err := tx.Save(&bid).Error; err != nil {
			return err
		}

		raised := round.RaisedAmount - bid.Amount
		if raised < 0 {
			raised = 0
		}
		return rounds.ApplyVersioned(tx, round.RoundID, round.Version, map[string]interface{}{
			"raised_amount": raised,
			"cover_ratio":   coverRatio(raised, round.TargetAmount),
		})
	})
}

// ListUserBids returns the caller's bids, newest first.
func (s *Service) ListUserBids(ctx context.Context, userID uuid.UUID) ([]domain.AuctionBid, error) {
	var out []domain.AuctionBid
	if err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(`"createdAt" DESC`).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListRoundBids returns all bids for a round in submission order.
func (s *Service) ListRoundBids(ctx context.Context, roundID uuid.UUID) ([]domain.AuctionBid, error) {
	var out []domain.AuctionBid
	if err := s.DB.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func coverRatio(raised, target int64) float64 {
	if target <= 0 {
		return 0
	}
	return float64(raised) / float64(target)
}
