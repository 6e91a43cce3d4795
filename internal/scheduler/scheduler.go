// Package scheduler drives the periodic auction tick: it recomputes the
// offered delta for every active round, publishes a snapshot for fast reads,
// and finalizes rounds whose close time has passed (close, clear, settle).
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"goldenbook-backend/internal/clearing"
	"goldenbook-backend/internal/decay"
	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/rounds"
	"goldenbook-backend/internal/settlement"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const snapshotPrefix = "round:snapshot:"

// Snapshot is the per-round state published to Redis on every tick, so the
// read path can serve the current offer without touching Postgres.
type Snapshot struct {
	RoundID      uuid.UUID            `json:"round_id"`
	Status       domain.AuctionStatus `json:"status"`
	DeltaNow     float64              `json:"delta_now"`
	RNow         float64              `json:"r_now"`
	RaisedAmount int64                `json:"raised_amount"`
	CoverRatio   float64              `json:"cover_ratio"`
	EndAt        time.Time            `json:"end_at"`
	AsOf         time.Time            `json:"as_of"`
}

type Scheduler struct {
	Rounds   *rounds.Service
	Engine   *clearing.Engine
	Bridge   *settlement.Bridge
	Redis    *redis.Client // nil disables snapshot publishing
	Interval time.Duration

	// Now is the clock; tests override it to step through a round's life.
	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	log.Info().Dur("interval", s.Interval).Msg("Decay scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Decay scheduler stopped")
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduler tick failed")
			}
		}
	}
}

// Tick processes every active round once. Rounds past their close time are
// finalized; the rest get a fresh delta and a published snapshot. A version
// conflict with a concurrent bid is skipped, the next tick catches up.
// Rounds left mid-finalization by an earlier crash (frozen in clearing, or
// cleared with unsettled fills) are re-driven through the same sequence.
func (s *Scheduler) Tick(ctx context.Context) error {
	active, err := s.Rounds.ListActive(ctx)
	if err != nil {
		return err
	}
	now := s.now()
	for i := range active {
		round := &active[i]
		if now.After(round.EndAt) {
			s.finalize(ctx, round.RoundID)
			continue
		}
		d := decay.DeltaNow(round, now)
		err := rounds.ApplyVersioned(s.Rounds.DB.WithContext(ctx), round.RoundID, round.Version, map[string]interface{}{
			"delta_now": d,
		})
		if err == rounds.ErrVersionConflict {
			continue
		}
		if err != nil {
			return err
		}
		round.DeltaNow = d
		s.publishSnapshot(ctx, round, now)
	}

	stuck, err := s.Rounds.ListUnfinalized(ctx)
	if err != nil {
		return err
	}
	for i := range stuck {
		s.finalize(ctx, stuck[i].RoundID)
	}
	return nil
}

// finalize runs the close -> clear -> settle sequence for one round. Every
// step is idempotent, so a crash between steps is repaired on the next tick.
func (s *Scheduler) finalize(ctx context.Context, roundID uuid.UUID) {
	if _, err := s.Rounds.CloseRound(ctx, roundID); err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("Round close failed")
		return
	}
	if _, err := s.Engine.ClearRound(ctx, roundID); err != nil && err != clearing.ErrAlreadyCleared {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("Round clearing failed")
		return
	}
	report, err := s.Bridge.SettleRound(ctx, roundID)
	if err != nil {
		log.Error().Err(err).Str("round_id", roundID.String()).Msg("Round settlement failed")
		return
	}
	log.Info().
		Str("round_id", roundID.String()).
		Int("settled", report.Settled).
		Int("failed", report.Failed).
		Msg("Round finalized")
	if s.Redis != nil {
		s.Redis.Del(ctx, snapshotPrefix+roundID.String())
	}
}

func (s *Scheduler) publishSnapshot(ctx context.Context, round *domain.AuctionRound, now time.Time) {
	if s.Redis == nil {
		return
	}
	b, err := json.Marshal(Snapshot{
		RoundID:      round.RoundID,
		Status:       round.Status,
		DeltaNow:     round.DeltaNow,
		RNow:         round.BaseRate + round.DeltaNow,
		RaisedAmount: round.RaisedAmount,
		CoverRatio:   round.CoverRatio,
		EndAt:        round.EndAt,
		AsOf:         now,
	})
	if err != nil {
		return
	}
	// TTL of two intervals: a stalled scheduler reads as a missing snapshot,
	// not a stale offer.
	if err := s.Redis.Set(ctx, snapshotPrefix+round.RoundID.String(), b, 2*s.Interval).Err(); err != nil {
		log.Warn().Err(err).Str("round_id", round.RoundID.String()).Msg("Snapshot publish failed")
	}
}

// GetSnapshot reads a published round snapshot. Returns redis.Nil when no
// snapshot exists (round inactive or scheduler stalled).
func GetSnapshot(ctx context.Context, rdb *redis.Client, roundID uuid.UUID) (*Snapshot, error) {
	b, err := rdb.Get(ctx, snapshotPrefix+roundID.String()).Bytes()
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
