package wallet

import (
	"goldenbook-backend/internal/middleware"
	"goldenbook-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// Balance GET /api/v1/wallet/balance
func (h *Handlers) Balance(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Error(c, "Invalid session user", 400, nil)
	}
	w, err := h.Service.Balance(c.Context(), userID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Wallet balance", w, nil)
}

// Deposit POST /api/v1/wallet/deposit
func (h *Handlers) Deposit(c *fiber.Ctx) error {
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	if body.Amount == 0 {
		return response.Error(c, "Missing required fields", 400, nil)
	}
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Error(c, "Invalid session user", 400, nil)
	}

	w, err := h.Service.Deposit(c.Context(), userID, body.Amount)
	if err != nil {
		if err == ErrInvalidAmount {
			return response.Error(c, err.Error(), 400, nil)
		}
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Deposit successful", w, nil)
}

// Transactions GET /api/v1/wallet/transactions
func (h *Handlers) Transactions(c *fiber.Ctx) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return response.Error(c, "Invalid session user", 400, nil)
	}
	txs, err := h.Service.Transactions(c.Context(), userID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Wallet transactions", txs, nil)
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
