package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type intakeService interface {
	Submit(ctx context.Context, category models.ApplicationCategory, req dto.SubmitApplicationRequest, actor *models.Actor) (*models.Application, error)
	Verify(ctx context.Context, code string) (*models.Verification, error)
}

// PublicHandler serves the unauthenticated intake and verification endpoints.
type PublicHandler struct {
	service intakeService
}

// NewPublicHandler constructs the handler.
func NewPublicHandler(service intakeService) *PublicHandler {
	return &PublicHandler{service: service}
}

// Submit godoc
// @Summary Submit an enquiry, admission or test registration
// @Tags Public
// @Accept json
// @Produce json
// @Param category path string true "enquiry, admission or registration"
// @Param payload body dto.SubmitApplicationRequest true "Application"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /public/{category} [post]
func (h *PublicHandler) Submit(c *gin.Context) {
	category := models.ApplicationCategory(strings.ToLower(c.Param("category")))
	if !category.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "unknown application category"))
		return
	}
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	actor := actorFromContext(c)
	app, err := h.service.Submit(c.Request.Context(), category, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if actor.UserID != "" {
		middleware.AddMeta(c, "submittedBy", actor.UserID)
	}
	respond(c, http.StatusCreated, dto.SubmitApplicationResponse{
		ID:       app.ID,
		Category: app.Category,
		Status:   app.Status,
	}, nil, nil)
}

// Verify godoc
// @Summary Verify an issued identifier
// @Tags Public
// @Produce json
// @Param externalId path string true "Identifier such as ADM000001"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /public/verify/{externalId} [get]
func (h *PublicHandler) Verify(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("externalId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, result, nil, nil)
}
