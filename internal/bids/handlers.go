package bids

import (
	"goldenbook-backend/internal/domain"
	"goldenbook-backend/internal/middleware"
	"goldenbook-backend/internal/pkg/response"
	"goldenbook-backend/internal/wallet"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// SubmitBid POST /api/v1/bids/submit-bid
func (h *Handlers) SubmitBid(c *fiber.Ctx) error {
	var body struct {
		RoundID  string   `json:"round_id"`
		Amount   int64    `json:"amount"`
		BidType  string   `json:"bid_type"`
		MinDelta *float64 `json:"min_delta"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.RoundID == "" || body.Amount == 0 || body.BidType == "" {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	roundID, err := uuid.Parse(body.RoundID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for round_id", 400, nil)
	}
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Error(c, "Invalid session user", 400, nil)
	}

	bid, err := h.Service.SubmitBid(c.Context(), SubmitBidInput{
		RoundID:  roundID,
		UserID:   userID,
		Amount:   body.Amount,
		BidType:  domain.BidType(body.BidType),
		MinDelta: body.MinDelta,
	})
	if err != nil {
		switch err {
		case ErrRoundNotFound:
			return response.NotFound(c, err.Error())
		case ErrRoundClosed, ErrBelowLotSize, ErrMinDeltaOutOfRange,
			ErrMinDeltaRequired, ErrMarketHasMinDelta, ErrInvalidBidType,
			wallet.ErrInsufficientBalance:
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Bid submitted", bid, nil)
}

// CancelBid POST /api/v1/bids/cancel-bid
func (h *Handlers) CancelBid(c *fiber.Ctx) error {
	var body struct {
		BidID string `json:"bid_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	bidID, err := uuid.Parse(body.BidID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for bid_id", 400, nil)
	}
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Error(c, "Invalid session user", 400, nil)
	}

	if err := h.Service.CancelBid(c.Context(), bidID, userID); err != nil {
		switch err {
		case ErrBidNotFound:
			return response.NotFound(c, err.Error())
		case ErrBidNotActive, ErrRoundClosed:
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Bid cancelled", fiber.Map{"bid_id": bidID}, nil)
}

// MyBids GET /api/v1/bids/my-bids
func (h *Handlers) MyBids(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Error(c, "Invalid session user", 400, nil)
	}
	out, err := h.Service.ListUserBids(c.Context(), userID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Bids", out, nil)
}

// RoundBids GET /api/v1/bids/round-bids/:round_id (admin)
func (h *Handlers) RoundBids(c *fiber.Ctx) error {
	roundID, err := uuid.Parse(c.Params("round_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for round_id", 400, nil)
	}
	out, err := h.Service.ListRoundBids(c.Context(), roundID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Round bids", out, nil)
}

func sessionUserID(c *fiber.Ctx) (uuid.UUID, error) {
	u := middleware.GetUser(c)
	m, ok := u.(map[string]interface{})
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	raw, _ := m["user_id"].(string)
	return uuid.Parse(raw)
}
