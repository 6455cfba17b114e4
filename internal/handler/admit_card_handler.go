package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type admitCardIssuer interface {
	Issue(ctx context.Context, applicationID string, req dto.AdmitCardRequest, actor *models.Actor) (*models.Attachment, []string, error)
}

// AdmitCardHandler issues admit cards for approved test registrations.
type AdmitCardHandler struct {
	service admitCardIssuer
}

// NewAdmitCardHandler constructs the handler.
func NewAdmitCardHandler(service admitCardIssuer) *AdmitCardHandler {
	return &AdmitCardHandler{service: service}
}

// Issue godoc
// @Summary Render and attach an admit card
// @Tags Attachments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.AdmitCardRequest true "Exam details"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /applications/{id}/admit-card [post]
func (h *AdmitCardHandler) Issue(c *gin.Context) {
	var req dto.AdmitCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid admit card payload"))
		return
	}
	att, warnings, err := h.service.Issue(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusCreated, att, nil, warnings)
}
