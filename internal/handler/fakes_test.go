package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type responseEnvelope struct {
	Data       map[string]interface{} `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type fakeApplicationService struct {
	detail     *dto.ApplicationDetail
	items      []models.Application
	pagination *models.Pagination
	app        *models.Application
	verify     *models.Verification
	counter    *dto.CounterResponse
	warnings   []string
	err        error
	csv        string
	lastQuery  dto.ApplicationQuery
	lastActor  *models.Actor
	lastID     string
	lastCode   string
	transition dto.TransitionRequest
	submitted  dto.SubmitApplicationRequest
	category   models.ApplicationCategory
}

func (f *fakeApplicationService) Get(_ context.Context, id string) (*dto.ApplicationDetail, error) {
	f.lastID = id
	return f.detail, f.err
}

func (f *fakeApplicationService) List(_ context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	f.lastQuery = query
	return f.items, f.pagination, f.err
}

func (f *fakeApplicationService) UpdateFields(_ context.Context, id string, _ dto.UpdateApplicationRequest, actor *models.Actor) (*models.Application, error) {
	f.lastID, f.lastActor = id, actor
	return f.app, f.err
}

func (f *fakeApplicationService) Transition(_ context.Context, id string, req dto.TransitionRequest, actor *models.Actor) (*models.Application, []string, error) {
	f.lastID, f.lastActor, f.transition = id, actor, req
	return f.app, f.warnings, f.err
}

func (f *fakeApplicationService) Delete(_ context.Context, id string, actor *models.Actor) ([]string, error) {
	f.lastID, f.lastActor = id, actor
	return f.warnings, f.err
}

func (f *fakeApplicationService) Export(_ context.Context, query dto.ApplicationQuery, w io.Writer) (int, error) {
	f.lastQuery = query
	if f.err != nil {
		return 0, f.err
	}
	_, _ = io.WriteString(w, f.csv)
	return strings.Count(f.csv, "\n") - 1, nil
}

func (f *fakeApplicationService) Submit(_ context.Context, category models.ApplicationCategory, req dto.SubmitApplicationRequest, actor *models.Actor) (*models.Application, error) {
	f.category, f.submitted, f.lastActor = category, req, actor
	return f.app, f.err
}

func (f *fakeApplicationService) Verify(_ context.Context, code string) (*models.Verification, error) {
	f.lastCode = code
	return f.verify, f.err
}

func (f *fakeApplicationService) Counter(_ context.Context, category models.ApplicationCategory) (*dto.CounterResponse, error) {
	f.category = category
	return f.counter, f.err
}

type fakeAttachmentService struct {
	items     []models.Attachment
	att       *models.Attachment
	warnings  []string
	err       error
	url       *dto.AttachmentDownloadResponse
	download  *service.AttachmentDownload
	role      string
	content   string
	upload    dto.Upload
	lastToken string
}

func (f *fakeAttachmentService) List(context.Context, string) ([]models.Attachment, error) {
	return f.items, f.err
}

func (f *fakeAttachmentService) Attach(_ context.Context, _ string, role string, upload dto.Upload, _ *models.Actor) (*models.Attachment, []string, error) {
	f.role, f.upload = role, upload
	if upload.Reader != nil {
		body, _ := io.ReadAll(upload.Reader)
		f.content = string(body)
	}
	return f.att, f.warnings, f.err
}

func (f *fakeAttachmentService) Release(_ context.Context, _ string, role string, _ *models.Actor) ([]string, error) {
	f.role = role
	return f.warnings, f.err
}

func (f *fakeAttachmentService) SignedURL(_ context.Context, _ string, role string) (*dto.AttachmentDownloadResponse, error) {
	f.role = role
	return f.url, f.err
}

func (f *fakeAttachmentService) Download(_ context.Context, token string) (*service.AttachmentDownload, error) {
	f.lastToken = token
	return f.download, f.err
}

type fakeAuthService struct {
	login   *models.LoginResponse
	user    *models.UserInfo
	err     error
	lastReq models.LoginRequest
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastReq = req
	return f.login, f.err
}

func (f *fakeAuthService) CreateUser(context.Context, models.CreateUserRequest, *models.Actor) (*models.UserInfo, error) {
	return f.user, f.err
}

type fakeAdmitCards struct {
	att      *models.Attachment
	warnings []string
	err      error
	req      dto.AdmitCardRequest
}

func (f *fakeAdmitCards) Issue(_ context.Context, _ string, req dto.AdmitCardRequest, _ *models.Actor) (*models.Attachment, []string, error) {
	f.req = req
	return f.att, f.warnings, f.err
}

// roleTokens treats the bearer token as the role name.
type roleTokens struct{}

func (roleTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	role := models.UserRole(token)
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return &models.JWTClaims{UserID: "user-" + strings.ToLower(token), Role: role}, nil
}

func newTestContext(method, target string, body io.Reader) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, rec
}

func jsonBody(s string) io.Reader {
	return bytes.NewBufferString(s)
}

func performRequest(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string {
	return &s
}
