package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siap-dev/siap-atk-api/internal/dto"
	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/internal/repository"
	appErrors "github.com/siap-dev/siap-atk-api/pkg/errors"
	"github.com/siap-dev/siap-atk-api/pkg/jobs"
	"github.com/siap-dev/siap-atk-api/pkg/storage"
)

type memReportStore struct {
	jobs map[string]*models.ReportJob
}

func newMemReportStore() *memReportStore {
	return &memReportStore{jobs: make(map[string]*models.ReportJob)}
}

func (s *memReportStore) Create(_ context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.CreatedAt = time.Now().UTC()
	s.jobs[job.ID] = job
	return nil
}

func (s *memReportStore) GetByID(_ context.Context, id string) (*models.ReportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *job
	return &copied, nil
}

func (s *memReportStore) Update(_ context.Context, id string, params repository.UpdateReportJobParams) error {
	job, ok := s.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	return nil
}

func (s *memReportStore) ListQueued(_ context.Context, limit int) ([]models.ReportJob, error) {
	queued := make([]models.ReportJob, 0)
	for _, job := range s.jobs {
		if job.Status == models.ReportStatusQueued && len(queued) < limit {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (s *memReportStore) ListFinishedBefore(context.Context, time.Time, int) ([]models.ReportJob, error) {
	return nil, nil
}

type memQueue struct {
	enqueued []jobs.Job
	err      error
}

func (q *memQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

type stubExportSupplies struct {
	supplies []models.Supply
}

func (s *stubExportSupplies) List(context.Context, models.SupplyFilter) ([]models.Supply, int, error) {
	return s.supplies, len(s.supplies), nil
}

func (s *stubExportSupplies) GetByID(context.Context, string) (*models.Supply, error) {
	return nil, errors.New("not used")
}

type stubExportMutations struct{}

func (stubExportMutations) List(context.Context, models.MutationFilter) ([]models.StockMutation, error) {
	return nil, nil
}

type stubExportRequests struct{}

func (stubExportRequests) List(context.Context, models.RequestFilter) ([]models.SupplyRequest, error) {
	return nil, nil
}

func newTestExportService(t *testing.T) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	supplies := &stubExportSupplies{supplies: []models.Supply{
		{ID: "supply-1", Name: "Kertas A4", Unit: "rim", StockQty: 20, UpdatedAt: time.Now().UTC()},
	}}
	return NewExportService(supplies, stubExportMutations{}, stubExportRequests{}, files, signer, ExportConfig{
		APIPrefix: "/api/v1",
	}, nil)
}

func TestReportServiceGenerateAndDownload(t *testing.T) {
	store := newMemReportStore()
	queue := &memQueue{}
	exporter := newTestExportService(t)
	worker := NewReportWorker(store, exporter, 3, nil)
	svc := NewReportService(store, queue, exporter, nil, ReportServiceConfig{ResultTTL: time.Hour})

	created, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   models.ReportTypeStockRecap,
		Format: models.ReportFormatCSV,
	}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, created.Status)
	require.Len(t, queue.enqueued, 1)

	err = worker.Handle(context.Background(), jobs.Job{ID: created.ID, Attempt: 1})
	require.NoError(t, err)

	status, err := svc.GetStatus(context.Background(), created.ID, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, status.Status)
	assert.Equal(t, 100, status.Progress)
	require.NotNil(t, status.ResultURL)

	token := extractToken(*status.ResultURL)
	require.NotEmpty(t, token)

	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Kertas A4")
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	svc := NewReportService(newMemReportStore(), &memQueue{}, newTestExportService(t), nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   "unknown",
		Format: models.ReportFormatCSV,
	}, adminClaims())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	_, err = svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   models.ReportTypeStockRecap,
		Format: "xlsx",
	}, adminClaims())
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err = svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   models.ReportTypeStockRecap,
		Format: models.ReportFormatCSV,
		From:   &from,
		To:     &to,
	}, adminClaims())
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestReportServiceCreateJobForbiddenForStaff(t *testing.T) {
	svc := NewReportService(newMemReportStore(), &memQueue{}, newTestExportService(t), nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   models.ReportTypeStockRecap,
		Format: models.ReportFormatCSV,
	}, staffClaims())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestReportServiceEnqueueFailureMarksJobFailed(t *testing.T) {
	store := newMemReportStore()
	queue := &memQueue{err: errors.New("queue closed")}
	svc := NewReportService(store, queue, newTestExportService(t), nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   models.ReportTypeStockRecap,
		Format: models.ReportFormatCSV,
	}, adminClaims())
	require.Error(t, err)

	require.Len(t, store.jobs, 1)
	for _, job := range store.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, *models.ReportJob) (*ExportResult, error) {
	return nil, errors.New("render failed")
}

func TestReportWorkerRetriesThenFails(t *testing.T) {
	store := newMemReportStore()
	job := &models.ReportJob{
		Type:   models.ReportTypeStockRecap,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusQueued,
	}
	require.NoError(t, store.Create(context.Background(), job))

	worker := NewReportWorker(store, failingGenerator{}, 2, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, store.jobs[job.ID].Status)

	err = worker.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusFailed, store.jobs[job.ID].Status)
	require.NotNil(t, store.jobs[job.ID].ErrorMessage)
}

func TestReportServiceGetStatusScoped(t *testing.T) {
	store := newMemReportStore()
	job := &models.ReportJob{
		Type:      models.ReportTypeStockRecap,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:    models.ReportStatusQueued,
		CreatedBy: "someone-else",
	}
	require.NoError(t, store.Create(context.Background(), job))
	svc := NewReportService(store, &memQueue{}, newTestExportService(t), nil, ReportServiceConfig{})

	_, err := svc.GetStatus(context.Background(), job.ID, staffClaims())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	status, err := svc.GetStatus(context.Background(), job.ID, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusQueued, status.Status)
}
