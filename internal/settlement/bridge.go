// Package settlement turns a clear result into wallet captures and
// certificates. Each bid settles independently: one investor's capture
// failing must never block the rest of the round, the clear result is
// already immutable truth by the time settlement runs.
package settlement

import (
	"context"
	"time"

	"goldenbook-backend/internal/certificates"
	"goldenbook-backend/internal/documents"
	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/wallet"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// FundsCaptor is the slice of the wallet contract settlement consumes.
type FundsCaptor interface {
	CaptureTx(tx *gorm.DB, holdID uuid.UUID, amount int64) error
}

type Bridge struct {
	DB     *gorm.DB
	Wallet FundsCaptor
	Certs  *certificates.Service
	Docs   *documents.Store

	// MaxAttempts bounds per-bid capture retries; Backoff is the initial
	// retry delay, doubled per attempt. Concurrency caps parallel workers.
	MaxAttempts int
	Backoff     time.Duration
	Concurrency int
}

// Report summarizes one settlement pass over a round.
type Report struct {
	RoundID    uuid.UUID   `json:"round_id"`
	Settled    int         `json:"settled"`
	Failed     int         `json:"failed"`
	FailedBids []uuid.UUID `json:"failed_bids,omitempty"`
}

// SettleRound settles every filled or partial bid of a cleared round:
// capture the held funds for the filled amount (the capture releases any
// remainder), write a receipt document and issue the certificate. Safe to
// re-run: settled bids are skipped and an already-captured hold is treated
// as done. Bids whose capture keeps failing are marked failed and reported
// for manual reconciliation, never silently dropped.
func (b *Bridge) SettleRound(ctx context.Context, roundID uuid.UUID) (*Report, error) {
	var round domain.AuctionRound
	if err := b.DB.WithContext(ctx).Where("round_id = ?", roundID).First(&round).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRoundNotFound
		}
		return nil, err
	}
	if round.Status != domain.RoundCleared {
		return nil, ErrRoundNotCleared
	}

	var pending []domain.AuctionBid
	if err := b.DB.WithContext(ctx).
		Where("round_id = ? AND state IN ? AND settlement_state <> ?",
			roundID,
			[]domain.BidState{domain.BidFilled, domain.BidPartial},
			domain.SettlementSettled).
		Order("seq ASC").
		Find(&pending).Error; err != nil {
		return nil, err
	}

	report := &Report{RoundID: roundID}
	results := make([]error, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency())
	for i := range pending {
		i := i
		g.Go(func() error {
			results[i] = b.settleBid(gctx, &pending[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range pending {
		if results[i] == nil {
			report.Settled++
			continue
		}
		report.Failed++
		report.FailedBids = append(report.FailedBids, pending[i].BidID)
		log.Error().Err(results[i]).
			Str("round_id", roundID.String()).
			Str("bid_id", pending[i].BidID.String()).
			Msg("Bid settlement failed, needs reconciliation")
	}
	return report, nil
}

// settleBid captures and issues for one bid with bounded retries. Each
// attempt is one transaction, so a failed capture leaves no partial state.
func (b *Bridge) settleBid(ctx context.Context, bid *domain.AuctionBid) error {
	var lastErr error
	for attempt := 0; attempt < b.maxAttempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Backoff << (attempt - 1)):
			}
		}
		lastErr = b.trySettle(ctx, bid)
		if lastErr == nil {
			return nil
		}
		log.Warn().Err(lastErr).
			Str("bid_id", bid.BidID.String()).
			Int("attempt", attempt+1).
			Msg("Bid settlement attempt failed")
	}

	err := b.DB.WithContext(ctx).Model(&domain.AuctionBid{}).
		Where("bid_id = ?", bid.BidID).
		Updates(map[string]interface{}{
			"settlement_state":    domain.SettlementFailed,
			"settlement_attempts": gorm.Expr("settlement_attempts + ?", b.maxAttempts()),
		}).Error
	if err != nil {
		return err
	}
	return ErrSettlementRetryExhausted
}

func (b *Bridge) trySettle(ctx context.Context, bid *domain.AuctionBid) error {
	return b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := b.Wallet.CaptureTx(tx, bid.HoldID, bid.AmountFilled); err != nil {
			// A non-active hold means a previous pass already captured it;
			// finish the bookkeeping instead of failing the bid.
			if err != wallet.ErrHoldNotActive {
				return err
			}
		}

		rate := float64(0)
		if bid.ClearRate != nil {
			rate = *bid.ClearRate
		}
		cert, err := b.Certs.IssueTx(tx, bid.UserID, bid.RoundID, bid.BidID, bid.AmountFilled, rate)
		if err != nil {
			return err
		}

		receipt, err := b.Docs.PutTx(tx, domain.DocReceipt, map[string]interface{}{
			"bid_id":             bid.BidID,
			"round_id":           bid.RoundID,
			"user_id":            bid.UserID,
			"amount_filled":      bid.AmountFilled,
			"rate":               rate,
			"certificate_number": cert.CertificateNumber,
		})
		if err != nil {
			return err
		}

		return tx.Model(&domain.AuctionBid{}).
			Where("bid_id = ?", bid.BidID).
			Updates(map[string]interface{}{
				"settlement_state":    domain.SettlementSettled,
				"settlement_attempts": gorm.Expr("settlement_attempts + 1"),
				"receipt_doc_id":      receipt.DocID,
			}).Error
	})
}

func (b *Bridge) maxAttempts() int {
	if b.MaxAttempts > 0 {
		return b.MaxAttempts
	}
	return 3
}

func (b *Bridge) concurrency() int {
	if b.Concurrency > 0 {
		return b.Concurrency
	}
	return 4
}
