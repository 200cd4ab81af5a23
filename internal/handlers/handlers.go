package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "campreg/internal/errors"
	"campreg/internal/models"
	"campreg/internal/service"
)

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{services: services}
}

// respondError maps a classified error to its HTTP status; anything
// unclassified becomes a plain 500.
func respondError(c *gin.Context, err error, fallback string) {
	if se, ok := apperrors.AsService(err); ok {
		c.JSON(apperrors.HTTPStatus(se.Code), models.ErrorResponse{
			Error: se.Message,
			Code:  string(se.Code),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fallback})
}

// userID returns the authenticated user's id set by the auth middleware.
func userID(c *gin.Context) (int64, bool) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// HealthCheck - GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := h.services.Registrations.GetHealthStatus(c.Request.Context())
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
