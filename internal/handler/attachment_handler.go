package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type attachmentService interface {
	List(ctx context.Context, applicationID string) ([]models.Attachment, error)
	Attach(ctx context.Context, applicationID, role string, upload dto.Upload, actor *models.Actor) (*models.Attachment, []string, error)
	Release(ctx context.Context, applicationID, role string, actor *models.Actor) ([]string, error)
	SignedURL(ctx context.Context, applicationID, role string) (*dto.AttachmentDownloadResponse, error)
	Download(ctx context.Context, token string) (*service.AttachmentDownload, error)
}

// AttachmentHandler exposes attachment binding and download endpoints.
type AttachmentHandler struct {
	service     attachmentService
	maxFileSize int64
}

// NewAttachmentHandler constructs the handler. maxFileSize bounds the
// multipart body; the service enforces the exact limit.
func NewAttachmentHandler(service attachmentService, maxFileSize int64) *AttachmentHandler {
	return &AttachmentHandler{service: service, maxFileSize: maxFileSize}
}

// List godoc
// @Summary List attachments of an application
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/attachments [get]
func (h *AttachmentHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, items, nil, nil)
}

// Put godoc
// @Summary Bind or replace the file for a role
// @Tags Attachments
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param role path string true "Attachment role"
// @Param file formData file true "Document"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /applications/{id}/attachments/{role} [put]
func (h *AttachmentHandler) Put(c *gin.Context) {
	if h.maxFileSize > 0 {
		// leave headroom for the multipart envelope
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+1<<20)
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	upload := dto.Upload{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Reader:      src,
	}
	att, warnings, err := h.service.Attach(c.Request.Context(), c.Param("id"), c.Param("role"), upload, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, att, nil, warnings)
}

// Release godoc
// @Summary Release the file bound to a role
// @Description Use * as role to release every attachment. Remote delete failures are reported as warnings.
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param role path string true "Attachment role or *"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/attachments/{role} [delete]
func (h *AttachmentHandler) Release(c *gin.Context) {
	id, role := c.Param("id"), c.Param("role")
	warnings, err := h.service.Release(c.Request.Context(), id, role, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"applicationId": id, "role": role, "released": true}, nil, warnings)
}

// URL godoc
// @Summary Issue a signed download URL
// @Tags Attachments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param role path string true "Attachment role"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/attachments/{role}/url [get]
func (h *AttachmentHandler) URL(c *gin.Context) {
	res, err := h.service.SignedURL(c.Request.Context(), c.Param("id"), c.Param("role"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, res, nil, nil)
}

// Download godoc
// @Summary Stream a file using a signed token
// @Tags Attachments
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files/download [get]
func (h *AttachmentHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	result, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.Body.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", result.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, result.SizeBytes, result.ContentType, result.Body, nil)
}
