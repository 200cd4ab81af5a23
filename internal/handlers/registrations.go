package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campreg/internal/logger"
	"campreg/internal/models"
)

// Registration handlers

// SubmitRegistration - POST /api/registrations
// Creates a durable retry record and runs the first attempt inline. The
// response always carries the retry id; on an immediate success it also
// carries the order code.
func (h *Handlers) SubmitRegistration(c *gin.Context) {
	var req models.SubmitRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	intent := models.RegistrationIntent{
		EventSlug: req.EventSlug,
		Identity:  models.IdentityTag(req.Identity),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Transport: req.Transport,
		UserID:    uid,
		Metadata:  req.Metadata,
	}

	rec, err := h.services.Retries.Submit(c.Request.Context(), intent)
	if err != nil {
		logger.Get().Error("Failed to submit registration", "error", err)
		respondError(c, err, "Failed to submit registration")
		return
	}

	resp := models.SubmitRegistrationResponse{
		RetryID:   rec.ID,
		Status:    string(rec.Status),
		OrderCode: rec.OrderCode,
	}
	status := http.StatusAccepted
	switch rec.Status {
	case models.RetrySuccess:
		status = http.StatusCreated
	case models.RetryFailed:
		status = http.StatusOK
		if last := rec.LastAttempt(); last != nil {
			resp.Message = last.Error
		}
	default:
		resp.Message = "registration is being retried in the background"
	}
	c.JSON(status, resp)
}

// GetRetryStatus - GET /api/registrations/retries/:id
func (h *Handlers) GetRetryStatus(c *gin.Context) {
	rec, err := h.services.Retries.GetRetryRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Failed to load retry record")
		return
	}

	resp := models.RetryStatusResponse{
		RetryID:   rec.ID,
		Status:    string(rec.Status),
		Attempts:  rec.Attempts,
		OrderCode: rec.OrderCode,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Status == models.RetryFailed {
		if last := rec.LastAttempt(); last != nil {
			resp.Message = last.Error
		}
	}
	c.JSON(http.StatusOK, resp)
}

// AbandonRetry - DELETE /api/registrations/retries/:id
// Gives up on a pending record. Abandoning an already-terminal record
// succeeds without changing it.
func (h *Handlers) AbandonRetry(c *gin.Context) {
	found, err := h.services.Retries.AbandonRetry(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.Get().Error("Failed to abandon retry", "error", err)
		respondError(c, err, "Failed to abandon retry")
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "retry record not found"})
		return
	}
	c.Status(http.StatusOK)
}

// ListRegistrations - GET /api/registrations
// Returns the caller's confirmed registrations and retry records.
func (h *Handlers) ListRegistrations(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
		return
	}

	regs, err := h.services.Retries.GetUserRetryRecords(c.Request.Context(), uid)
	if err != nil {
		logger.Get().Error("Failed to list retry records", "error", err)
		respondError(c, err, "Failed to list registrations")
		return
	}
	if regs == nil {
		regs = []models.RetryRecord{}
	}
	c.JSON(http.StatusOK, regs)
}

// CancelRegistration - PATCH /api/registrations/cancel
func (h *Handlers) CancelRegistration(c *gin.Context) {
	var req models.CancelRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	err := h.services.Registrations.CancelRegistration(c.Request.Context(), req.EventSlug, req.OrderCode)
	if err != nil {
		logger.Get().Error("Failed to cancel registration", "error", err)
		respondError(c, err, "Failed to cancel registration")
		return
	}
	c.Status(http.StatusOK)
}

// GetAvailability - GET /api/events/:slug/availability
func (h *Handlers) GetAvailability(c *gin.Context) {
	identity := models.IdentityTag(c.DefaultQuery("identity", string(models.IdentityPrimary)))
	if !models.KnownIdentity(identity) {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unknown identity tag"})
		return
	}

	resp, err := h.services.Registrations.CheckEventAvailability(c.Request.Context(), c.Param("slug"), identity)
	if err != nil {
		respondError(c, err, "Failed to check availability")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetRegistrationStatus - GET /api/events/:slug/orders/:code
func (h *Handlers) GetRegistrationStatus(c *gin.Context) {
	resp, err := h.services.Registrations.GetRegistrationStatus(c.Request.Context(), c.Param("slug"), c.Param("code"))
	if err != nil {
		respondError(c, err, "Failed to load registration status")
		return
	}
	c.JSON(http.StatusOK, resp)
}
