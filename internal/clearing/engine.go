// Package clearing finalizes a round: it computes the single clearing rate,
// allocates capacity across the bid ledger and writes the immutable clear
// result. The whole pass runs in one transaction guarded by the clearing ->
// cleared status transition, so exactly one caller can win it.
package clearing

import (
	"context"
	"sort"

	"goldenbook-backend/internal/decay"
	"goldenbook-backend/internal/documents"
	"goldenbook-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// HoldReleaser releases the holds of bids that end up unfilled.
type HoldReleaser interface {
	ReleaseTx(tx *gorm.DB, holdID uuid.UUID) error
}

type Engine struct {
	DB     *gorm.DB
	Wallet HoldReleaser
	Docs   *documents.Store
}

// AllocationEntry is one line of the allocation document, in acceptance order.
type AllocationEntry struct {
	BidID        uuid.UUID       `json:"bid_id"`
	UserID       uuid.UUID       `json:"user_id"`
	BidType      domain.BidType  `json:"bid_type"`
	MinDelta     *float64        `json:"min_delta,omitempty"`
	Amount       int64           `json:"amount"`
	AmountFilled int64           `json:"amount_filled"`
	State        domain.BidState `json:"state"`
	Seq          int64           `json:"seq"`
}

// AllocationDoc is the persisted, content-addressed clearing allocation table.
// Its JSON encoding is deterministic, so re-running clearing over the same
// ledger snapshot produces the same hash.
type AllocationDoc struct {
	RoundID     uuid.UUID         `json:"round_id"`
	RClear      float64           `json:"r_clear"`
	DeltaGClear float64           `json:"delta_g_clear"`
	TotalFilled int64             `json:"total_filled"`
	Entries     []AllocationEntry `json:"entries"`
}

// ClearRound runs the clearing pass for a round in clearing state.
//
// Acceptance order is market bids first, then limit bids by ascending
// min_delta, ties broken by submission order. Bids are filled in full while
// capacity remains, the straddling bid is filled partially, and everything
// after it is cancelled with its hold released. delta_g_clear is the
// straddling limit bid's min_delta (the smallest delta at which demand covers
// the target); if market demand alone covers the target it is delta_floor.
// If the round closes undersubscribed it is the decayed delta at the
// configured close time, which keeps the result reproducible, and limit bids
// whose min_delta exceeds that delta are unfilled like any other loser.
func (e *Engine) ClearRound(ctx context.Context, roundID uuid.UUID) (*domain.AuctionClearResult, error) {
	var result domain.AuctionClearResult
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var round domain.AuctionRound
		if err := tx.Where("round_id = ?", roundID).First(&round).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrRoundNotFound
			}
			return err
		}
		switch round.Status {
		case domain.RoundClearing:
		case domain.RoundCleared:
			return ErrAlreadyCleared
		default:
			return ErrRoundNotClearing
		}

		var bids []domain.AuctionBid
		if err := tx.Where("round_id = ? AND state = ?", roundID, domain.BidActive).
			Order("seq ASC").
			Find(&bids).Error; err != nil {
			return err
		}
		sortAcceptanceOrder(bids)

		deltaG, fills := allocate(&round, bids)
		rClear := round.BaseRate + deltaG

		doc := AllocationDoc{
			RoundID:     roundID,
			RClear:      rClear,
			DeltaGClear: deltaG,
		}
		for i := range bids {
			bid := &bids[i]
			filled := fills[i]
			switch {
			case filled == bid.Amount:
				bid.State = domain.BidFilled
			case filled > 0:
				bid.State = domain.BidPartial
			default:
				// Unfilled bids are done: release the hold now, nothing left
				// for settlement to do.
				bid.State = domain.BidCancelled
				bid.SettlementState = domain.SettlementSettled
				if err := e.Wallet.ReleaseTx(tx, bid.HoldID); err != nil {
					return err
				}
			}
			bid.AmountFilled = filled
			if filled > 0 {
				rate := rClear
				bid.ClearRate = &rate
			}
			if err := tx.Save(bid).Error; err != nil {
				return err
			}
			doc.TotalFilled += filled
			doc.Entries = append(doc.Entries, AllocationEntry{
				BidID:        bid.BidID,
				UserID:       bid.UserID,
				BidType:      bid.BidType,
				MinDelta:     bid.MinDelta,
				Amount:       bid.Amount,
				AmountFilled: filled,
				State:        bid.State,
				Seq:          bid.Seq,
			})
		}

		stored, err := e.Docs.PutTx(tx, domain.DocAllocation, doc)
		if err != nil {
			return err
		}

		result = domain.AuctionClearResult{
			RoundID:         roundID,
			RClear:          rClear,
			DeltaGClear:     deltaG,
			TotalFilled:     doc.TotalFilled,
			AllocationDocID: stored.DocID,
			AllocationHash:  stored.Hash,
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}

		cover := 0.0
		if round.TargetAmount > 0 {
			cover = float64(doc.TotalFilled) / float64(round.TargetAmount)
		}
		res := tx.Model(&domain.AuctionRound{}).
			Where("round_id = ? AND status = ?", roundID, domain.RoundClearing).
			Updates(map[string]interface{}{
				"status":        domain.RoundCleared,
				"delta_now":     deltaG,
				"raised_amount": doc.TotalFilled,
				"cover_ratio":   cover,
				"version":       gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent clearing pass won the transition; roll back ours.
			return ErrAlreadyCleared
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("round_id", roundID.String()).
		Float64("r_clear", result.RClear).
		Float64("delta_g_clear", result.DeltaGClear).
		Int64("total_filled", result.TotalFilled).
		Msg("Round cleared")
	return &result, nil
}

// sortAcceptanceOrder sorts bids in place: market before limit, limit by
// ascending min_delta, ties by submission order. The input must already be
// seq-ordered, so the stable sort preserves first-come-first-served within
// each class.
func sortAcceptanceOrder(bids []domain.AuctionBid) {
	sort.SliceStable(bids, func(i, j int) bool {
		a, b := &bids[i], &bids[j]
		if a.BidType != b.BidType {
			return a.BidType == domain.BidMarket
		}
		if a.BidType == domain.BidLimit && *a.MinDelta != *b.MinDelta {
			return *a.MinDelta < *b.MinDelta
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})
}

// allocate walks the acceptance-ordered bids and returns the clearing delta
// plus the fill amount per bid (indexed like the input).
func allocate(round *domain.AuctionRound, bids []domain.AuctionBid) (float64, []int64) {
	deltaG, fills, reached := fillWalk(round, bids, nil)
	if reached {
		return deltaG, fills
	}

	// Undersubscribed: everyone clears at the decayed delta at the configured
	// close, not at the wall clock, so repeated runs agree. Limit bids asking
	// for more than that delta are not eligible and must stay unfilled.
	deltaClose := decay.DeltaNow(round, round.InitialEndAt)
	_, fills, _ = fillWalk(round, bids, func(b *domain.AuctionBid) bool {
		return b.BidType != domain.BidLimit || *b.MinDelta <= deltaClose
	})
	return deltaClose, fills
}

// fillWalk fills eligible bids in order until the target is reached. The
// returned delta is the straddling limit bid's min_delta, or delta_floor when
// market demand alone covers the target; it is only meaningful when reached
// is true. A nil eligible accepts every bid.
func fillWalk(round *domain.AuctionRound, bids []domain.AuctionBid, eligible func(*domain.AuctionBid) bool) (float64, []int64, bool) {
	fills := make([]int64, len(bids))
	capacity := round.TargetAmount
	perInvestorCap := investorCap(round)
	capUsed := make(map[uuid.UUID]int64)

	deltaG := round.DeltaFloor
	reached := false
	var filled int64

	for i := range bids {
		bid := &bids[i]
		if filled >= capacity {
			break
		}
		if eligible != nil && !eligible(bid) {
			continue
		}
		take := bid.Amount
		if room := capacity - filled; take > room {
			take = room
		}
		if perInvestorCap > 0 {
			if room := perInvestorCap - capUsed[bid.UserID]; take > room {
				take = room
			}
		}
		if take <= 0 {
			continue
		}
		fills[i] = take
		filled += take
		capUsed[bid.UserID] += take
		if filled >= capacity {
			reached = true
			if bid.BidType == domain.BidLimit {
				deltaG = *bid.MinDelta
			}
		}
	}
	return deltaG, fills, reached
}

// investorCap returns the per-investor fill ceiling, rounded down to a lot
// multiple. Zero means uncapped.
func investorCap(round *domain.AuctionRound) int64 {
	if round.InvestorCapPct <= 0 {
		return 0
	}
	raw := int64(round.InvestorCapPct * float64(round.TargetAmount))
	if round.LotSize > 0 {
		raw -= raw % round.LotSize
	}
	return raw
}

// GetResult returns the clear result for a round.
func (e *Engine) GetResult(ctx context.Context, roundID uuid.UUID) (*domain.AuctionClearResult, error) {
	var result domain.AuctionClearResult
	err := e.DB.WithContext(ctx).Where("round_id = ?", roundID).First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
