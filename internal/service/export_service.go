package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/dto"
	"github.com/noah-isme/content-approval-api/internal/models"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
	"github.com/noah-isme/content-approval-api/pkg/export"
)

type pendingLister interface {
	ListPending(ctx context.Context, org, repo string) ([]models.PublishRequest, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportResult is a rendered pending request report.
type ExportResult struct {
	Filename    string
	ContentType string
	Format      export.Format
	Body        []byte
	Rows        int
}

// ExportService renders the pending request list as CSV or PDF.
type ExportService struct {
	store     pendingLister
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	title     string
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// pkg/export implementations.
func NewExportService(store pendingLister, title string, validate *validator.Validate, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if strings.TrimSpace(title) == "" {
		title = "Pending publish requests"
	}
	return &ExportService{
		store:     store,
		csv:       csv,
		pdf:       pdf,
		validator: validate,
		logger:    logger,
		title:     title,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PendingReport renders every pending request of org/repo, oldest first.
func (s *ExportService) PendingReport(ctx context.Context, org, repo string, query dto.ExportQuery) (*ExportResult, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	format := export.Format(strings.ToLower(query.Format))
	if format == "" {
		format = export.FormatCSV
	}

	requests, err := s.store.ListPending(ctx, org, repo)
	if err != nil {
		return nil, storeError(err, "failed to read publish requests")
	}
	generated := s.now()
	dataset := s.buildDataset(org, repo, requests, generated)

	var body []byte
	switch format {
	case export.FormatPDF:
		body, err = s.pdf.Render(dataset)
	default:
		body, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.logger.Error("render pending report", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	return &ExportResult{
		Filename:    export.Filename("publish-requests", []string{org, repo}, generated, format),
		ContentType: format.ContentType(),
		Format:      format,
		Body:        body,
		Rows:        len(dataset.Rows),
	}, nil
}

func (s *ExportService) buildDataset(org, repo string, requests []models.PublishRequest, generated time.Time) export.Dataset {
	sorted := append([]models.PublishRequest(nil), requests...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created.Before(sorted[j].Created)
	})

	rows := make([][]string, 0, len(sorted))
	for _, r := range sorted {
		rows = append(rows, []string{
			r.Path,
			r.Requester,
			strings.Join(r.ApproverList(), ", "),
			formatReportTime(r.Created),
			waitingFor(generated, r.Created),
		})
	}
	return export.Dataset{
		Title:     fmt.Sprintf("%s: %s/%s", s.title, org, repo),
		Generated: generated,
		Columns:   []string{"Path", "Requester", "Approvers", "Requested At", "Waiting"},
		Rows:      rows,
	}
}

func formatReportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func waitingFor(now, created time.Time) string {
	if created.IsZero() || created.After(now) {
		return ""
	}
	d := now.Sub(created)
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
