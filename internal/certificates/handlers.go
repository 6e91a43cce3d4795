package certificates

import (
	"goldenbook-backend/internal/middleware"
	"goldenbook-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *Service
}

// MyCertificates GET /api/v1/certificates/my-certificates
func (h *Handlers) MyCertificates(c *fiber.Ctx) error {
	u := middleware.GetUser(c)
	m, ok := u.(map[string]interface{})
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	raw, _ := m["user_id"].(string)
	userID, err := uuid.Parse(raw)
	if err != nil {
		return response.Error(c, "Invalid session user", 400, nil)
	}
	certs, err := h.Service.ListUserCertificates(c.Context(), userID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Certificates", certs, nil)
}
