package rounds

import (
	"context"
	"time"

	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldReleaser releases wallet holds when an active round is cancelled.
type HoldReleaser interface {
	ReleaseTx(tx *gorm.DB, holdID uuid.UUID) error
}

// Service is the round registry: it owns round configuration and is the only
// legal writer of round status. All status changes are conditional updates so
// concurrent callers cannot skip a state or reopen a finished round.
type Service struct {
	DB     *gorm.DB
	Wallet HoldReleaser
}

// RoundConfig is the administrative input for opening a round.
type RoundConfig struct {
	CompanyID      uuid.UUID
	Title          string
	RoundIndex     int
	StartAt        time.Time
	EndAt          time.Time
	BaseRate       float64
	DeltaMax       float64
	DeltaFloor     float64
	DecayA         float64
	DecayB         float64
	LotSize        int64
	TargetAmount   int64
	InvestorCapPct float64

	AntiSnipingMode      domain.AntiSnipingMode
	AntiSnipingWindowSec int
	AntiSnipingExtendSec int
	MaxExtensions        int
}

// OpenRound validates the configuration and creates a draft round.
// delta_now starts at delta_max; decay only lowers it from there.
func (s *Service) OpenRound(ctx context.Context, cfg RoundConfig) (*domain.AuctionRound, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	round := domain.AuctionRound{
		CompanyID:            cfg.CompanyID,
		Title:                cfg.Title,
		RoundIndex:           cfg.RoundIndex,
		Status:               domain.RoundDraft,
		StartAt:              cfg.StartAt,
		EndAt:                cfg.EndAt,
		InitialEndAt:         cfg.EndAt,
		BaseRate:             cfg.BaseRate,
		DeltaMax:             cfg.DeltaMax,
		DeltaFloor:           cfg.DeltaFloor,
		DecayA:               cfg.DecayA,
		DecayB:               cfg.DecayB,
		DeltaNow:             cfg.DeltaMax,
		LotSize:              cfg.LotSize,
		TargetAmount:         cfg.TargetAmount,
		InvestorCapPct:       cfg.InvestorCapPct,
		AntiSnipingMode:      cfg.AntiSnipingMode,
		AntiSnipingWindowSec: cfg.AntiSnipingWindowSec,
		AntiSnipingExtendSec: cfg.AntiSnipingExtendSec,
		MaxExtensions:        cfg.MaxExtensions,
	}
	if round.RoundIndex == 0 {
		round.RoundIndex = 1
	}
	if err := s.DB.WithContext(ctx).Create(&round).Error; err != nil {
		return nil, err
	}
	return &round, nil
}

func validateConfig(cfg RoundConfig) error {
	if cfg.CompanyID == uuid.Nil || cfg.Title == "" {
		return ErrInvalidConfig
	}
	if cfg.BaseRate <= 0 {
		return ErrInvalidConfig
	}
	if !validation.ValidDeltaBounds(cfg.DeltaFloor, cfg.DeltaMax) {
		return ErrInvalidConfig
	}
	if !cfg.StartAt.Before(cfg.EndAt) {
		return ErrInvalidConfig
	}
	if cfg.LotSize <= 0 || !validation.IsLotMultiple(cfg.TargetAmount, cfg.LotSize) {
		return ErrInvalidConfig
	}
	if cfg.DecayA < 0 || cfg.DecayB < 0 {
		return ErrInvalidConfig
	}
	if !validation.ValidCapPct(cfg.InvestorCapPct) {
		return ErrInvalidConfig
	}
	switch cfg.AntiSnipingMode {
	case domain.SnipingExtend:
		if cfg.AntiSnipingWindowSec <= 0 || cfg.AntiSnipingExtendSec <= 0 || cfg.MaxExtensions <= 0 {
			return ErrInvalidConfig
		}
	case domain.SnipingSnapshot:
		if cfg.AntiSnipingWindowSec <= 0 {
			return ErrInvalidConfig
		}
	case domain.SnipingDisabled, "":
	default:
		return ErrInvalidConfig
	}
	return nil
}

// GetRound returns a round by id.
func (s *Service) GetRound(ctx context.Context, roundID uuid.UUID) (*domain.AuctionRound, error) {
	var round domain.AuctionRound
	err := s.DB.WithContext(ctx).Where("round_id = ?", roundID).First(&round).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// ListActive returns rounds currently accepting bids.
func (s *Service) ListActive(ctx context.Context) ([]domain.AuctionRound, error) {
	var out []domain.AuctionRound
	if err := s.DB.WithContext(ctx).
		Where("status = ?", domain.RoundActive).
		Order("end_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListUnfinalized returns rounds stuck mid-finalization: rounds frozen in
// clearing, and cleared rounds still carrying unsettled fills. The scheduler
// re-drives these, so a crash between close, clear and settle heals on a
// later tick.
func (s *Service) ListUnfinalized(ctx context.Context) ([]domain.AuctionRound, error) {
	unsettled := s.DB.Model(&domain.AuctionBid{}).
		Select("round_id").
		Where("state IN ? AND settlement_state <> ?",
			[]domain.BidState{domain.BidFilled, domain.BidPartial},
			domain.SettlementSettled)
	var out []domain.AuctionRound
	if err := s.DB.WithContext(ctx).
		Where("status = ?", domain.RoundClearing).
		Or("status = ? AND round_id IN (?)", domain.RoundCleared, unsettled).
		Order("end_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ActivateRound moves draft -> active. Only one caller can win the transition.
func (s *Service) ActivateRound(ctx context.Context, roundID uuid.UUID) (*domain.AuctionRound, error) {
	res := s.DB.WithContext(ctx).Model(&domain.AuctionRound{}).
		Where("round_id = ? AND status = ?", roundID, domain.RoundDraft).
		Updates(map[string]interface{}{
			"status":  domain.RoundActive,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	round, err := s.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && round.Status != domain.RoundActive {
		return nil, ErrInvalidTransition
	}
	return round, nil
}

// CloseRound moves active -> clearing, freezing further bid acceptance.
// Idempotent: calling it on a round already clearing or cleared is a no-op
// returning the frozen state.
func (s *Service) CloseRound(ctx context.Context, roundID uuid.UUID) (*domain.AuctionRound, error) {
	res := s.DB.WithContext(ctx).Model(&domain.AuctionRound{}).
		Where("round_id = ? AND status = ?", roundID, domain.RoundActive).
		Updates(map[string]interface{}{
			"status":  domain.RoundClearing,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	round, err := s.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	switch round.Status {
	case domain.RoundClearing, domain.RoundCleared:
		return round, nil
	default:
		return nil, ErrInvalidTransition
	}
}

// CancelRound cancels a draft or active round. Active bids are marked
// cancelled and their holds released in the same transaction.
func (s *Service) CancelRound(ctx context.Context, roundID uuid.UUID) (*domain.AuctionRound, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.AuctionRound{}).
			Where("round_id = ? AND status IN ?", roundID, []domain.AuctionStatus{domain.RoundDraft, domain.RoundActive}).
			Updates(map[string]interface{}{
				"status":  domain.RoundCancelled,
				"version": gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var round domain.AuctionRound
			if err := tx.Where("round_id = ?", roundID).First(&round).Error; err != nil {
				if err == gorm.ErrRecordNotFound {
					return ErrRoundNotFound
				}
				return err
			}
			if round.Status == domain.RoundCancelled {
				return nil // idempotent
			}
			return ErrInvalidTransition
		}

		var bids []domain.AuctionBid
		if err := tx.Where("round_id = ? AND state = ?", roundID, domain.BidActive).Find(&bids).Error; err != nil {
			return err
		}
		for i := range bids {
			if s.Wallet != nil {
				if err := s.Wallet.ReleaseTx(tx, bids[i].HoldID); err != nil {
					return err
				}
			}
			bids[i].State = domain.BidCancelled
			bids[i].SettlementState = domain.SettlementSettled
			if err := tx.Save(&bids[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetRound(ctx, roundID)
}

// ApplyVersioned applies updates to a round's mutable fields under the
// optimistic version check. Returns ErrVersionConflict when another writer
// got there first; callers re-read and retry.
func ApplyVersioned(tx *gorm.DB, roundID uuid.UUID, version int64, updates map[string]interface{}) error {
	updates["version"] = version + 1
	res := tx.Model(&domain.AuctionRound{}).
		Where("round_id = ? AND version = ?", roundID, version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
