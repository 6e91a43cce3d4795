package settlement

import (
	"goldenbook-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Bridge *Bridge
}

// SettleRound POST /api/v1/clearing/settle-round/:round_id (admin)
func (h *Handlers) SettleRound(c *fiber.Ctx) error {
	roundID, err := uuid.Parse(c.Params("round_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for round_id", 400, nil)
	}
	report, err := h.Bridge.SettleRound(c.Context(), roundID)
	if err != nil {
		switch err {
		case ErrRoundNotFound:
			return response.NotFound(c, err.Error())
		case ErrRoundNotCleared:
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Settlement pass finished", report, nil)
}
