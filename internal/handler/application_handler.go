package handler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type applicationService interface {
	Get(ctx context.Context, id string) (*dto.ApplicationDetail, error)
	List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error)
	UpdateFields(ctx context.Context, id string, req dto.UpdateApplicationRequest, actor *models.Actor) (*models.Application, error)
	Transition(ctx context.Context, id string, req dto.TransitionRequest, actor *models.Actor) (*models.Application, []string, error)
	Delete(ctx context.Context, id string, actor *models.Actor) ([]string, error)
	Export(ctx context.Context, query dto.ApplicationQuery, w io.Writer) (int, error)
}

// ApplicationHandler exposes back-office review endpoints.
type ApplicationHandler struct {
	service applicationService
	now     func() time.Time
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(service applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service, now: time.Now}
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param category query string false "enquiry, admission or registration"
// @Param status query string false "Comma separated statuses"
// @Param search query string false "Name, email, phone or identifier"
// @Param grade query string false "Grade applying"
// @Param from query string false "Created from (YYYY-MM-DD)"
// @Param to query string false "Created to (YYYY-MM-DD)"
// @Param sort query string false "created_at, applicant_name, status or external_id"
// @Param order query string false "asc or desc"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	query, err := parseApplicationQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, items, pagination, nil)
}

// Get godoc
// @Summary Get application with its attachments
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, detail, nil, nil)
}

// Update godoc
// @Summary Edit applicant fields
// @Description Status is never changed by this endpoint.
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.UpdateApplicationRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [patch]
func (h *ApplicationHandler) Update(c *gin.Context) {
	var req dto.UpdateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	app, err := h.service.UpdateFields(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, app, nil, nil)
}

// Transition godoc
// @Summary Approve or reject an application
// @Description Approval mints the external identifier. Terminal states are final.
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body dto.TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /applications/{id}/transition [post]
func (h *ApplicationHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid transition payload"))
		return
	}
	app, warnings, err := h.service.Transition(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, app, nil, warnings)
}

// Delete godoc
// @Summary Delete an application and release its attachments
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [delete]
func (h *ApplicationHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	warnings, err := h.service.Delete(c.Request.Context(), id, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, dto.DeleteApplicationResponse{ID: id, Deleted: true, Warnings: warnings}, nil, warnings)
}

// Export godoc
// @Summary Export applications as CSV
// @Tags Applications
// @Produce text/csv
// @Security BearerAuth
// @Param category query string false "Category filter"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "Created from (YYYY-MM-DD)"
// @Param to query string false "Created to (YYYY-MM-DD)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /applications/export [get]
func (h *ApplicationHandler) Export(c *gin.Context) {
	query, err := parseApplicationQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var buf bytes.Buffer
	rows, err := h.service.Export(c.Request.Context(), query, &buf)
	if err != nil {
		response.Error(c, err)
		return
	}
	name := "applications"
	if query.Category != "" {
		name = string(query.Category)
	}
	filename := fmt.Sprintf("%s-%s.csv", name, h.now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Total-Count", strconv.Itoa(rows))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func parseApplicationQuery(c *gin.Context) (dto.ApplicationQuery, error) {
	query := dto.ApplicationQuery{
		Category:      models.ApplicationCategory(strings.ToLower(strings.TrimSpace(c.Query("category")))),
		Search:        strings.TrimSpace(c.Query("search")),
		GradeApplying: strings.TrimSpace(c.Query("grade")),
		CreatedFrom:   strings.TrimSpace(c.Query("from")),
		CreatedTo:     strings.TrimSpace(c.Query("to")),
		SortBy:        c.Query("sort"),
		SortOrder:     c.Query("order"),
	}
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				query.Status = append(query.Status, models.ApplicationStatus(part))
			}
		}
	}
	var err error
	if query.Page, err = intQuery(c, "page"); err != nil {
		return query, err
	}
	if query.PageSize, err = intQuery(c, "pageSize"); err != nil {
		return query, err
	}
	return query, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a positive integer")
	}
	return value, nil
}
