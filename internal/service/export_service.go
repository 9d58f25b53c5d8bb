package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siap-dev/siap-atk-api/internal/models"
	"github.com/siap-dev/siap-atk-api/pkg/export"
	"github.com/siap-dev/siap-atk-api/pkg/storage"
)

type exportSupplyStore interface {
	List(ctx context.Context, filter models.SupplyFilter) ([]models.Supply, int, error)
	GetByID(ctx context.Context, id string) (*models.Supply, error)
}

type exportMutationStore interface {
	List(ctx context.Context, filter models.MutationFilter) ([]models.StockMutation, error)
}

type exportRequestStore interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.SupplyRequest, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report tables from the inventory data and persists the
// rendered files behind signed download tokens.
type ExportService struct {
	supplies  exportSupplyStore
	mutations exportMutationStore
	requests  exportRequestStore
	storage   fileStorage
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(supplies exportSupplyStore, mutations exportMutationStore, requests exportRequestStore, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		supplies:  supplies,
		mutations: mutations,
		requests:  requests,
		storage:   files,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the table for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	table, err := s.buildTable(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = export.RenderCSV(table)
	case models.ReportFormatPDF:
		payload, err = export.RenderPDF(table)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/reports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s.%s", strings.ToLower(string(job.Type)), timestamp, job.Params.Format)
}

func (s *ExportService) buildTable(ctx context.Context, job *models.ReportJob) (export.Table, error) {
	switch job.Type {
	case models.ReportTypeStockRecap:
		return s.buildStockRecap(ctx)
	case models.ReportTypeMutationTrail:
		return s.buildMutationTrail(ctx, job.Params)
	case models.ReportTypeRequestRecap:
		return s.buildRequestRecap(ctx, job.Params)
	default:
		return export.Table{}, fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildStockRecap(ctx context.Context) (export.Table, error) {
	supplies, _, err := s.supplies.List(ctx, models.SupplyFilter{PageSize: 200})
	if err != nil {
		return export.Table{}, err
	}
	rows := make([][]string, 0, len(supplies))
	for _, supply := range supplies {
		rows = append(rows, []string{
			supply.ID,
			supply.Name,
			supply.Unit,
			fmt.Sprintf("%d", supply.StockQty),
			supply.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Table{
		Title:   "Stock Recap",
		Columns: []string{"Supply ID", "Name", "Unit", "Stock", "Updated At"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) buildMutationTrail(ctx context.Context, params models.ReportJobParams) (export.Table, error) {
	filter := models.MutationFilter{
		SupplyID: deref(params.SupplyID),
		From:     params.From,
		To:       params.To,
		Limit:    500,
	}
	mutations, err := s.mutations.List(ctx, filter)
	if err != nil {
		return export.Table{}, err
	}
	rows := make([][]string, 0, len(mutations))
	for _, m := range mutations {
		rows = append(rows, []string{
			m.CreatedAt.UTC().Format(time.RFC3339),
			m.SupplyID,
			string(m.Kind),
			fmt.Sprintf("%d", m.Quantity),
			fmt.Sprintf("%d", m.StockBefore),
			fmt.Sprintf("%d", m.StockAfter),
			deref(m.RequestID),
			m.ActorID,
			m.Note,
		})
	}
	return export.Table{
		Title:   "Stock Mutation Trail",
		Columns: []string{"Time", "Supply ID", "Kind", "Qty", "Before", "After", "Request ID", "Actor", "Note"},
		Rows:    rows,
	}, nil
}

func (s *ExportService) buildRequestRecap(ctx context.Context, params models.ReportJobParams) (export.Table, error) {
	requests, err := s.requests.List(ctx, models.RequestFilter{Limit: 200})
	if err != nil {
		return export.Table{}, err
	}
	rows := make([][]string, 0, len(requests))
	for _, req := range requests {
		if params.From != nil && req.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && !req.CreatedAt.Before(*params.To) {
			continue
		}
		rows = append(rows, []string{
			req.ID,
			req.Department,
			string(req.Status),
			req.CreatedAt.UTC().Format(time.RFC3339),
			formatReportTime(req.ReviewedAt),
			deref(req.RejectionReason),
		})
	}
	return export.Table{
		Title:   "Supply Request Recap",
		Columns: []string{"Request ID", "Department", "Status", "Created At", "Reviewed At", "Rejection Reason"},
		Rows:    rows,
	}, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
