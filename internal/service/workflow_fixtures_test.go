package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/pkg/config"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
)

// --- Transactions ---

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// --- Applications ---

// applicationStoreStub behaves like the SQL repository: LockPending blocks
// while another caller holds the row, as SELECT ... FOR UPDATE does, and
// Review only updates pending rows.
type applicationStoreStub struct {
	mu        sync.Mutex
	released  *sync.Cond
	apps      map[string]*models.Application
	locked    map[string]bool
	listErr   error
	reviewErr error
	deleteErr error
	lockCalls int
	deleted   []string

	// beforeLock runs under the stub mutex ahead of the pending check.
	beforeLock func(apps map[string]*models.Application)
	// beforeUpdate runs under the stub mutex ahead of an UpdateFields write.
	beforeUpdate func(current *models.Application)
}

func newApplicationStoreStub(apps ...*models.Application) *applicationStoreStub {
	s := &applicationStoreStub{apps: make(map[string]*models.Application), locked: make(map[string]bool)}
	s.released = sync.NewCond(&s.mu)
	for _, app := range apps {
		s.apps[app.ID] = app
	}
	return s
}

func (s *applicationStoreStub) Create(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.ID == "" {
		app.ID = fmt.Sprintf("app-%d", len(s.apps)+1)
	}
	app.Status = models.StatusPending
	app.CreatedAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	app.UpdatedAt = app.CreatedAt
	copied := *app
	s.apps[app.ID] = &copied
	return nil
}

func (s *applicationStoreStub) FindByID(ctx context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (s *applicationStoreStub) FindByExternalID(ctx context.Context, externalID string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.apps {
		if app.ExternalID != nil && *app.ExternalID == externalID {
			copied := *app
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *applicationStoreStub) LockPending(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockCalls++
	if s.beforeLock != nil {
		s.beforeLock(s.apps)
	}
	for s.locked[id] {
		s.released.Wait()
	}
	app, ok := s.apps[id]
	if !ok || app.Status != models.StatusPending {
		return nil, sql.ErrNoRows
	}
	s.locked[id] = true
	copied := *app
	return &copied, nil
}

func (s *applicationStoreStub) Review(ctx context.Context, exec sqlx.ExtContext, review models.ApplicationReview) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.unlock(review.ID)
	if s.reviewErr != nil {
		return nil, s.reviewErr
	}
	app, ok := s.apps[review.ID]
	if !ok || app.Status != models.StatusPending {
		return nil, sql.ErrNoRows
	}
	app.Status = review.Status
	app.ExternalID = review.ExternalID
	app.Notes = review.Notes
	if review.ReviewedBy != "" {
		by := review.ReviewedBy
		app.ReviewedBy = &by
	}
	at := review.ReviewedAt
	app.ReviewedAt = &at
	copied := *app
	return &copied, nil
}

// unlock must be called with mu held.
func (s *applicationStoreStub) unlock(id string) {
	delete(s.locked, id)
	s.released.Broadcast()
}

func (s *applicationStoreStub) UpdateFields(ctx context.Context, id string, patch models.ApplicationPatch) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if s.beforeUpdate != nil {
		s.beforeUpdate(current)
	}
	if patch.ApplicantName != nil {
		current.ApplicantName = *patch.ApplicantName
	}
	if patch.Email != nil {
		current.Email = *patch.Email
	}
	if patch.Phone != nil {
		current.Phone = *patch.Phone
	}
	if patch.GradeApplying != nil {
		current.GradeApplying = *patch.GradeApplying
	}
	if len(patch.Fields) > 0 {
		current.Fields = patch.Fields
	}
	if patch.SetNotes {
		current.Notes = patch.Notes
	}
	copied := *current
	return &copied, nil
}

func (s *applicationStoreStub) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.apps[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.apps, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *applicationStoreStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, 0, s.listErr
	}
	var all []models.Application
	for _, app := range s.apps {
		if filter.Category != "" && app.Category != filter.Category {
			continue
		}
		all = append(all, *app)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if filter.Offset >= total {
		return []models.Application{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return all[filter.Offset:end], total, nil
}

func (s *applicationStoreStub) get(id string) *models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps[id]
}

func pendingApplication(id string, category models.ApplicationCategory) *models.Application {
	return &models.Application{
		ID:            id,
		Category:      category,
		Status:        models.StatusPending,
		ApplicantName: "Asha Verma",
		Email:         "asha@example.com",
		Phone:         "9800000000",
		GradeApplying: "XI",
		Fields:        []byte(`{"parentName":"Ravi Verma"}`),
		CreatedAt:     time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC),
	}
}

// --- Counters ---

type counterStoreStub struct {
	mu       sync.Mutex
	values   map[string]int64
	incErr   error
	incCalls int
}

func newCounterStoreStub() *counterStoreStub {
	return &counterStoreStub{values: make(map[string]int64)}
}

func (c *counterStoreStub) Increment(ctx context.Context, exec sqlx.ExtContext, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incCalls++
	if c.incErr != nil {
		return 0, c.incErr
	}
	c.values[key]++
	return c.values[key], nil
}

func (c *counterStoreStub) Current(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key], nil
}

func testIdentifierConfig() config.IdentifierConfig {
	return config.IdentifierConfig{
		Width:              6,
		EnquiryPrefix:      "ENQ",
		AdmissionPrefix:    "ADM",
		RegistrationPrefix: "ATAT",
	}
}

func newTestFormatter(t *testing.T, cfg config.IdentifierConfig) *IdentifierFormatter {
	f, err := NewIdentifierFormatter(cfg)
	require.NoError(t, err)
	return f
}

// --- Attachments ---

type attachmentRepoStub struct {
	mu        sync.Mutex
	items     map[string]*models.Attachment
	seq       int
	createErr error
	swapErr   error
	deleteErr error
	calls     []string
}

func newAttachmentRepoStub(items ...models.Attachment) *attachmentRepoStub {
	s := &attachmentRepoStub{items: make(map[string]*models.Attachment)}
	for i := range items {
		item := items[i]
		s.items[item.ID] = &item
	}
	return s
}

func (s *attachmentRepoStub) Create(ctx context.Context, att *models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "create")
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.items {
		if existing.ApplicationID == att.ApplicationID && existing.Role == att.Role {
			return repository.ErrDuplicate
		}
	}
	s.seq++
	att.ID = fmt.Sprintf("att-%d", s.seq)
	copied := *att
	s.items[att.ID] = &copied
	return nil
}

func (s *attachmentRepoStub) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	att, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *att
	return &copied, nil
}

func (s *attachmentRepoStub) FindByRole(ctx context.Context, applicationID, role string) (*models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, att := range s.items {
		if att.ApplicationID == applicationID && att.Role == role {
			copied := *att
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *attachmentRepoStub) ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Attachment
	for _, att := range s.items {
		if att.ApplicationID == applicationID {
			out = append(out, *att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (s *attachmentRepoStub) Swap(ctx context.Context, att *models.Attachment, oldBlobKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "swap")
	if s.swapErr != nil {
		return s.swapErr
	}
	current, ok := s.items[att.ID]
	if !ok || current.BlobKey != oldBlobKey {
		return sql.ErrNoRows
	}
	copied := *att
	s.items[att.ID] = &copied
	return nil
}

func (s *attachmentRepoStub) Delete(ctx context.Context, id, blobKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete:"+id)
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	current, ok := s.items[id]
	if !ok || current.BlobKey != blobKey {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *attachmentRepoStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type orphanRecorderStub struct {
	mu      sync.Mutex
	orphans []models.OrphanedBlob
}

func (o *orphanRecorderStub) Create(ctx context.Context, orphan *models.OrphanedBlob) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orphans = append(o.orphans, *orphan)
	return nil
}

func (o *orphanRecorderStub) recorded() []models.OrphanedBlob {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.OrphanedBlob(nil), o.orphans...)
}

// objectStoreStub is an in-memory object store. Keys listed in failDelete
// refuse deletion; failPut makes every upload fail.
type objectStoreStub struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failDelete map[string]bool
	failPut    error
	ops        []string
}

func newObjectStoreStub() *objectStoreStub {
	return &objectStoreStub{objects: make(map[string][]byte), failDelete: make(map[string]bool)}
}

func (s *objectStoreStub) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "put:"+key)
	if s.failPut != nil {
		return "", s.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.objects[key] = data
	return "https://files.example.com/" + key, nil
}

func (s *objectStoreStub) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "delete:"+key)
	if s.failDelete[key] {
		return errors.New("remote store unavailable")
	}
	delete(s.objects, key)
	return nil
}

func (s *objectStoreStub) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *objectStoreStub) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *objectStoreStub) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for key := range s.objects {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (s *objectStoreStub) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

// --- Audit and notifications ---

type auditStub struct {
	mu   sync.Mutex
	logs []models.AuditLog
	err  error
}

func (a *auditStub) Create(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, *log)
	return nil
}

func (a *auditStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, log := range a.logs {
		out = append(out, log.Action)
	}
	return out
}

type notifierStub struct {
	mu          sync.Mutex
	submitted   []string
	transitions []string
	admitCards  []string
	err         error
}

func (n *notifierStub) NotifySubmitted(app *models.Application) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submitted = append(n.submitted, app.ID)
	return n.err
}

func (n *notifierStub) NotifyTransition(app *models.Application) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, fmt.Sprintf("%s:%s", app.ID, app.Status))
	return n.err
}

func (n *notifierStub) NotifyAdmitCard(app *models.Application, pdf []byte, details string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admitCards = append(n.admitCards, app.ID)
	return n.err
}

func uploadOf(content, filename, contentType string) dto.Upload {
	return dto.Upload{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(content)),
		Reader:      strings.NewReader(content),
	}
}

var pdfContent = "%PDF-1.4\n" + strings.Repeat("x", 64)
