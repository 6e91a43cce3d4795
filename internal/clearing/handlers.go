package clearing

import (
	"goldenbook-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Engine *Engine
}

// ClearRound POST /api/v1/clearing/clear-round/:round_id (admin)
func (h *Handlers) ClearRound(c *fiber.Ctx) error {
	roundID, err := uuid.Parse(c.Params("round_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for round_id", 400, nil)
	}
	result, err := h.Engine.ClearRound(c.Context(), roundID)
	if err != nil {
		switch err {
		case ErrRoundNotFound:
			return response.NotFound(c, err.Error())
		case ErrAlreadyCleared:
			return response.Conflict(c, err.Error())
		case ErrRoundNotClearing:
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Round cleared", result, nil)
}

// GetClearResult GET /api/v1/clearing/clear-result/:round_id
func (h *Handlers) GetClearResult(c *fiber.Ctx) error {
	roundID, err := uuid.Parse(c.Params("round_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for round_id", 400, nil)
	}
	result, err := h.Engine.GetResult(c.Context(), roundID)
	if err != nil {
		if err == ErrResultNotFound {
			return response.NotFound(c, err.Error())
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Clear result", result, nil)
}
