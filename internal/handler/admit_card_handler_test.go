package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

func TestAdmitCardHandlerIssue(t *testing.T) {
	svc := &fakeAdmitCards{att: &models.Attachment{ID: "att-1", Role: "admit-card"}}
	handler := NewAdmitCardHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/applications/app-1/admit-card", jsonBody(`{"examDate":"12 May 2025, 09:00","examVenue":"Main Hall","notify":true}`))
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	handler.Issue(c)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Main Hall", svc.req.ExamVenue)
	assert.True(t, svc.req.Notify)
}

func TestAdmitCardHandlerRequiresApproval(t *testing.T) {
	handler := NewAdmitCardHandler(&fakeAdmitCards{err: appErrors.Clone(appErrors.ErrInvalidTransition, "registration is pending")})

	c, rec := newTestContext(http.MethodPost, "/applications/app-1/admit-card", jsonBody(`{"examDate":"x","examVenue":"y"}`))
	handler.Issue(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
