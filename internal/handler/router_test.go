package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
)

func buildRouter(apps *fakeApplicationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	Routes{
		Prefix:       "/api/v1",
		Tokens:       roleTokens{},
		Auth:         NewAuthHandler(&fakeAuthService{user: &models.UserInfo{ID: "u2"}}),
		Public:       NewPublicHandler(apps),
		Applications: NewApplicationHandler(apps),
		Attachments:  NewAttachmentHandler(&fakeAttachmentService{}, 0),
		AdmitCards:   NewAdmitCardHandler(&fakeAdmitCards{}),
		Counters:     NewCounterHandler(apps),
		Metrics:      NewMetricsHandler(nil, nil),
	}.Register(engine)
	return engine
}

func TestRoutesEnforceRoleLadder(t *testing.T) {
	apps := &fakeApplicationService{
		app:     &models.Application{ID: "app-1", Status: models.StatusRejected},
		detail:  &dto.ApplicationDetail{},
		counter: &dto.CounterResponse{Category: models.CategoryEnquiry},
		csv:     "ID\n",
	}
	router := buildRouter(apps)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"list needs token", http.MethodGet, "/api/v1/applications", "", "", http.StatusUnauthorized},
		{"staff lists", http.MethodGet, "/api/v1/applications", "", "STAFF", http.StatusOK},
		{"staff reads", http.MethodGet, "/api/v1/applications/app-1", "", "STAFF", http.StatusOK},
		{"staff cannot transition", http.MethodPost, "/api/v1/applications/app-1/transition", `{"status":"rejected"}`, "STAFF", http.StatusForbidden},
		{"admin transitions", http.MethodPost, "/api/v1/applications/app-1/transition", `{"status":"rejected"}`, "ADMIN", http.StatusOK},
		{"staff cannot export", http.MethodGet, "/api/v1/applications/export", "", "STAFF", http.StatusForbidden},
		{"superadmin exports", http.MethodGet, "/api/v1/applications/export", "", "SUPERADMIN", http.StatusOK},
		{"staff cannot read counters", http.MethodGet, "/api/v1/counters/enquiry", "", "STAFF", http.StatusForbidden},
		{"admin reads counters", http.MethodGet, "/api/v1/counters/enquiry", "", "ADMIN", http.StatusOK},
		{"staff cannot read ops summary", http.MethodGet, "/api/v1/ops/summary", "", "STAFF", http.StatusForbidden},
		{"ops summary without metrics", http.MethodGet, "/api/v1/ops/summary", "", "ADMIN", http.StatusNotFound},
		{"admin cannot create users", http.MethodPost, "/api/v1/users", `{}`, "ADMIN", http.StatusForbidden},
		{"invalid token", http.MethodGet, "/api/v1/applications", "", "GUEST", http.StatusUnauthorized},
		{"public verify", http.MethodGet, "/api/v1/public/verify/ENQ000001", "", "", http.StatusOK},
		{"public submit", http.MethodPost, "/api/v1/public/enquiry", `{"applicantName":"Asha"}`, "", http.StatusCreated},
		{"health", http.MethodGet, "/health", "", "", http.StatusOK},
		{"ready without checks", http.MethodGet, "/ready", "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req *http.Request
			if tc.body != "" {
				req = httptest.NewRequest(tc.method, tc.path, jsonBody(tc.body))
				req.Header.Set("Content-Type", "application/json")
			} else {
				req = httptest.NewRequest(tc.method, tc.path, nil)
			}
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			rec := performRequest(router, req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRoutesAttachProcessingTime(t *testing.T) {
	apps := &fakeApplicationService{detail: &dto.ApplicationDetail{}}
	router := buildRouter(apps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/app-1", nil)
	req.Header.Set("Authorization", "Bearer ADMIN")
	rec := performRequest(router, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"processing_time_ms"`)
	assert.Equal(t, "app-1", apps.lastID)
}

func TestRoutesPublicSubmitRecordsStaffActor(t *testing.T) {
	apps := &fakeApplicationService{app: &models.Application{ID: "app-9", Category: models.CategoryEnquiry, Status: models.StatusPending}}
	router := buildRouter(apps)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/enquiry", jsonBody(`{"applicantName":"Walk In","email":"walkin@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer STAFF")
	rec := performRequest(router, req)

	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "user-staff", apps.lastActor.UserID)
	assert.Contains(t, rec.Body.String(), `"submittedBy":"user-staff"`)
}
