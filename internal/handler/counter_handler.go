package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type counterReader interface {
	Counter(ctx context.Context, category models.ApplicationCategory) (*dto.CounterResponse, error)
}

// CounterHandler reports identifier sequences.
type CounterHandler struct {
	service counterReader
}

// NewCounterHandler constructs the handler.
func NewCounterHandler(service counterReader) *CounterHandler {
	return &CounterHandler{service: service}
}

// Get godoc
// @Summary Current counter value for a category
// @Tags Counters
// @Produce json
// @Security BearerAuth
// @Param category path string true "enquiry, admission or registration"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /counters/{category} [get]
func (h *CounterHandler) Get(c *gin.Context) {
	category := models.ApplicationCategory(strings.ToLower(c.Param("category")))
	if !category.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown application category"))
		return
	}
	res, err := h.service.Counter(c.Request.Context(), category)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, res, nil, nil)
}
