package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type auditReader interface {
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// AuditHandler exposes the review history of an application.
type AuditHandler struct {
	reader auditReader
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(reader auditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// History godoc
// @Summary Audit trail of an application
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param limit query int false "Maximum entries (default 50)"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/history [get]
func (h *AuditHandler) History(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		response.Error(c, err)
		return
	}
	logs, err := h.reader.ListByResource(c.Request.Context(), models.AuditResourceApplication, c.Param("id"), limit)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history"))
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	respond(c, http.StatusOK, logs, nil, nil)
}
