package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	"github.com/noah-isme/content-approval-api/pkg/config"
)

// ErrSheetConflict is returned when a conditional sheet write kept losing to
// concurrent writers.
var ErrSheetConflict = errors.New("publish request sheet modified concurrently")

// SourceStore reads and writes admin API source documents.
type SourceStore interface {
	GetSource(ctx context.Context, path string) (*adminapi.Document, error)
	PutSource(ctx context.Context, path string, body []byte, ifMatch string) (string, error)
}

// SheetRepository stores publish requests in the remote sheet document using
// read-modify-write. Writes are conditional when the store hands out ETags.
type SheetRepository struct {
	source  SourceStore
	path    string
	retries int
	logger  *zap.Logger
}

// NewSheetRepository constructs the repository.
func NewSheetRepository(source SourceStore, cfg config.SheetConfig, logger *zap.Logger) *SheetRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := strings.TrimLeft(cfg.Path, "/")
	if path == "" {
		path = ".da/publish-requests.json"
	}
	retries := cfg.WriteRetries
	if retries < 0 {
		retries = 0
	}
	return &SheetRepository{source: source, path: path, retries: retries, logger: logger}
}

// SheetPath returns the document path for an org/repo.
func (r *SheetRepository) SheetPath(org, repo string) string {
	return fmt.Sprintf("/%s/%s/%s", org, repo, r.path)
}

// Load reads the sheet. A missing document is an empty sheet.
func (r *SheetRepository) Load(ctx context.Context, org, repo string) (*models.Sheet, error) {
	doc, err := r.source.GetSource(ctx, r.SheetPath(org, repo))
	if err != nil {
		if adminapi.IsStatus(err, http.StatusNotFound) {
			return models.NewSheet(), nil
		}
		return nil, fmt.Errorf("load sheet %s/%s: %w", org, repo, err)
	}
	var sheet models.Sheet
	if err := json.Unmarshal(doc.Body, &sheet); err != nil {
		return nil, fmt.Errorf("decode sheet %s/%s: %w", org, repo, err)
	}
	sheet.ETag = doc.ETag
	return &sheet, nil
}

// ListPending returns every pending row.
func (r *SheetRepository) ListPending(ctx context.Context, org, repo string) ([]models.PublishRequest, error) {
	sheet, err := r.Load(ctx, org, repo)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublishRequest, 0, len(sheet.Data))
	for _, req := range sheet.Requests() {
		if req.IsPending() {
			out = append(out, req)
		}
	}
	return out, nil
}

// FindPending returns the first pending row for path (and requester, when not
// empty), or nil when there is none.
func (r *SheetRepository) FindPending(ctx context.Context, org, repo, path, requester string) (*models.PublishRequest, error) {
	pending, err := r.ListPending(ctx, org, repo)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		if pending[i].Matches(path, requester) {
			found := pending[i]
			return &found, nil
		}
	}
	return nil, nil
}

// Append adds a row. An empty sheet first gets its schema row.
func (r *SheetRepository) Append(ctx context.Context, org, repo string, req models.PublishRequest) error {
	return r.mutate(ctx, org, repo, func(sheet *models.Sheet) (bool, error) {
		if len(sheet.Data) == 0 {
			sheet.Data = append(sheet.Data, models.NewSheetRow(models.RequestColumns...))
		}
		sheet.Data = append(sheet.Data, req.ToRow())
		return true, nil
	})
}

// RemoveMatching deletes every row after the schema row for which match
// returns true and reports the removed requests. Nothing is written when no
// row matched.
func (r *SheetRepository) RemoveMatching(ctx context.Context, org, repo string, match func(models.PublishRequest) bool) ([]models.PublishRequest, error) {
	var removed []models.PublishRequest
	err := r.mutate(ctx, org, repo, func(sheet *models.Sheet) (bool, error) {
		removed = nil
		if len(sheet.Data) == 0 {
			return false, nil
		}
		schema := sheet.Data[0]
		rows := sheet.Data[1:]
		kept := make([]models.SheetRow, 0, len(rows))
		for _, row := range rows {
			req := models.RequestFromRow(row)
			if match(req) {
				removed = append(removed, req)
				continue
			}
			kept = append(kept, row)
		}
		if len(kept) == len(rows) {
			return false, nil
		}
		sheet.Data = append([]models.SheetRow{schema.EmptyCopy()}, kept...)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *SheetRepository) mutate(ctx context.Context, org, repo string, apply func(*models.Sheet) (bool, error)) error {
	for attempt := 0; ; attempt++ {
		sheet, err := r.Load(ctx, org, repo)
		if err != nil {
			return err
		}
		changed, err := apply(sheet)
		if err != nil || !changed {
			return err
		}
		sheet.Recount()

		err = r.write(ctx, org, repo, sheet)
		if err == nil {
			return nil
		}
		if !adminapi.IsStatus(err, http.StatusPreconditionFailed) {
			return err
		}
		if attempt >= r.retries {
			return fmt.Errorf("%w: %s/%s after %d attempts", ErrSheetConflict, org, repo, attempt+1)
		}
		r.logger.Info("sheet changed during write, retrying",
			zap.String("org", org), zap.String("repo", repo), zap.Int("attempt", attempt+1))
	}
}

func (r *SheetRepository) write(ctx context.Context, org, repo string, sheet *models.Sheet) error {
	if sheet.Type == "" {
		sheet.Type = models.SheetType
	}
	body, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("encode sheet %s/%s: %w", org, repo, err)
	}
	if _, err := r.source.PutSource(ctx, r.SheetPath(org, repo), body, sheet.ETag); err != nil {
		return fmt.Errorf("write sheet %s/%s: %w", org, repo, err)
	}
	return nil
}
