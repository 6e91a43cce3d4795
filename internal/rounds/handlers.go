package rounds

import (
	"context"
	"time"

	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

type createRoundBody struct {
	CompanyID      string  `json:"company_id"`
	Title          string  `json:"title"`
	RoundIndex     int     `json:"round_index"`
	StartAt        string  `json:"start_at"`
	EndAt          string  `json:"end_at"`
	BaseRate       float64 `json:"base_rate"`
	DeltaMax       float64 `json:"delta_max"`
	DeltaFloor     float64 `json:"delta_floor"`
	DecayA         float64 `json:"decay_a"`
	DecayB         float64 `json:"decay_b"`
	LotSize        int64   `json:"lot_size"`
	TargetAmount   int64   `json:"target_amount"`
	InvestorCapPct float64 `json:"investor_cap_pct"`

	AntiSnipingMode      string `json:"anti_sniping_mode"`
	AntiSnipingWindowSec int    `json:"anti_sniping_window_sec"`
	AntiSnipingExtendSec int    `json:"anti_sniping_extend_sec"`
	MaxExtensions        int    `json:"max_extensions"`
}

// CreateRound POST /api/v1/rounds/create-round (admin)
func (h *Handlers) CreateRound(c *fiber.Ctx) error {
	var body createRoundBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.CompanyID == "" || body.Title == "" || body.StartAt == "" || body.EndAt == "" {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	companyID, err := uuid.Parse(body.CompanyID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for company_id", 400, nil)
	}
	startAt, err := time.Parse(time.RFC3339, body.StartAt)
	if err != nil {
		return response.Error(c, "Invalid start_at, expected RFC3339", 400, nil)
	}
	endAt, err := time.Parse(time.RFC3339, body.EndAt)
	if err != nil {
		return response.Error(c, "Invalid end_at, expected RFC3339", 400, nil)
	}

	round, err := h.Service.OpenRound(c.Context(), RoundConfig{
		CompanyID:            companyID,
		Title:                body.Title,
		RoundIndex:           body.RoundIndex,
		StartAt:              startAt,
		EndAt:                endAt,
		BaseRate:             body.BaseRate,
		DeltaMax:             body.DeltaMax,
		DeltaFloor:           body.DeltaFloor,
		DecayA:               body.DecayA,
		DecayB:               body.DecayB,
		LotSize:              body.LotSize,
		TargetAmount:         body.TargetAmount,
		InvestorCapPct:       body.InvestorCapPct,
		AntiSnipingMode:      domain.AntiSnipingMode(body.AntiSnipingMode),
		AntiSnipingWindowSec: body.AntiSnipingWindowSec,
		AntiSnipingExtendSec: body.AntiSnipingExtendSec,
		MaxExtensions:        body.MaxExtensions,
	})
	if err != nil {
		if err == ErrInvalidConfig {
			return response.Error(c, err.Error(), 400, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.SuccessCreated(c, "Round created", round, nil)
}

// GetRound GET /api/v1/rounds/get-round/:round_id
func (h *Handlers) GetRound(c *fiber.Ctx) error {
	roundID, err := uuid.Parse(c.Params("round_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for round_id", 400, nil)
	}
	round, err := h.Service.GetRound(c.Context(), roundID)
	if err != nil {
		if err == ErrRoundNotFound {
			return response.NotFound(c, err.Error())
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Round", round, nil)
}

// GetActiveRounds GET /api/v1/rounds/get-active-rounds
func (h *Handlers) GetActiveRounds(c *fiber.Ctx) error {
	out, err := h.Service.ListActive(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Active rounds", out, nil)
}

// ActivateRound POST /api/v1/rounds/activate-round/:round_id (admin)
func (h *Handlers) ActivateRound(c *fiber.Ctx) error {
	return h.transition(c, h.Service.ActivateRound, "Round activated")
}

// CloseRound POST /api/v1/rounds/close-round/:round_id (admin)
func (h *Handlers) CloseRound(c *fiber.Ctx) error {
	return h.transition(c, h.Service.CloseRound, "Round closed")
}

// CancelRound POST /api/v1/rounds/cancel-round/:round_id (admin)
func (h *Handlers) CancelRound(c *fiber.Ctx) error {
	return h.transition(c, h.Service.CancelRound, "Round cancelled")
}

func (h *Handlers) transition(c *fiber.Ctx, fn func(ctx context.Context, id uuid.UUID) (*domain.AuctionRound, error), msg string) error {
	roundID, err := uuid.Parse(c.Params("round_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for round_id", 400, nil)
	}
	round, err := fn(c.Context(), roundID)
	if err != nil {
		switch err {
		case ErrRoundNotFound:
			return response.NotFound(c, err.Error())
		case ErrInvalidTransition:
			return response.Conflict(c, err.Error())
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, msg, round, nil)
}
