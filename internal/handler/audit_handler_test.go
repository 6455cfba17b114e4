package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

type fakeAuditReader struct {
	logs     []models.AuditLog
	err      error
	resource string
	id       string
	limit    int
}

func (f *fakeAuditReader) ListByResource(_ context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	f.resource, f.id, f.limit = resource, resourceID, limit
	return f.logs, f.err
}

func TestAuditHandlerHistory(t *testing.T) {
	reader := &fakeAuditReader{logs: []models.AuditLog{{ID: "a1", Action: models.AuditActionApprove}}}
	handler := NewAuditHandler(reader)

	c, rec := newTestContext(http.MethodGet, "/applications/app-1/history?limit=5", nil)
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	handler.History(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AuditResourceApplication, reader.resource)
	assert.Equal(t, "app-1", reader.id)
	assert.Equal(t, 5, reader.limit)
	assert.Contains(t, rec.Body.String(), models.AuditActionApprove)
}

func TestAuditHandlerHistoryFailure(t *testing.T) {
	handler := NewAuditHandler(&fakeAuditReader{err: errors.New("db down")})

	c, rec := newTestContext(http.MethodGet, "/applications/app-1/history", nil)
	handler.History(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}
