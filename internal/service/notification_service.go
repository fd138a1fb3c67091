package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	"github.com/noah-isme/content-approval-api/pkg/config"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
	"github.com/noah-isme/content-approval-api/pkg/jobs"
	"github.com/noah-isme/content-approval-api/pkg/middleware/requestid"
)

// Notification kinds, also used as retry job types and metric labels.
const (
	NotifyRequestApproval = "request_approval"
	NotifyRejection       = "notify_rejection"
	NotifyPublished       = "notify_published"
)

// Notifier sends workflow emails.
type Notifier interface {
	RequestApproval(ctx context.Context, n models.ApprovalNotification) (*models.NotificationReceipt, error)
	NotifyRejected(ctx context.Context, n models.RejectionNotification) (*models.NotificationReceipt, error)
	NotifyPublished(ctx context.Context, n models.PublishedNotification) (*models.NotificationReceipt, error)
}

// NewNotifier builds the sender selected by cfg.Driver. An unconfigured driver
// yields a notifier that fails every call with NOT_CONFIGURED.
func NewNotifier(cfg config.NotifierConfig, observer adminapi.CallObserver, logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.NotifierSMTP:
		smtpNotifier := NewSMTPNotifier(cfg, logger)
		if smtpNotifier.IsConfigured() {
			return smtpNotifier
		}
	default:
		if cfg.BaseURL != "" {
			return NewHTTPNotifier(cfg, observer, logger)
		}
	}
	logger.Warn("notifier not configured, workflow emails are disabled", zap.String("driver", cfg.Driver))
	return disabledNotifier{}
}

type disabledNotifier struct{}

func (disabledNotifier) RequestApproval(context.Context, models.ApprovalNotification) (*models.NotificationReceipt, error) {
	return nil, appErrors.ErrServiceNotConfigured
}

func (disabledNotifier) NotifyRejected(context.Context, models.RejectionNotification) (*models.NotificationReceipt, error) {
	return nil, appErrors.ErrServiceNotConfigured
}

func (disabledNotifier) NotifyPublished(context.Context, models.PublishedNotification) (*models.NotificationReceipt, error) {
	return nil, appErrors.ErrServiceNotConfigured
}

// HTTPNotifier posts notifications to the email collaborator.
type HTTPNotifier struct {
	baseURL  string
	token    string
	client   *http.Client
	observer adminapi.CallObserver
	logger   *zap.Logger
}

// NewHTTPNotifier constructs an HTTP notifier.
func NewHTTPNotifier(cfg config.NotifierConfig, observer adminapi.CallObserver, logger *zap.Logger) *HTTPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		observer: observer,
		logger:   logger,
	}
}

type notifierResponse struct {
	Message         string   `json:"message"`
	Recipients      []string `json:"recipients"`
	NotifiedAuthors []string `json:"notifiedAuthors"`
	Error           string   `json:"error"`
}

// RequestApproval implements Notifier.
func (n *HTTPNotifier) RequestApproval(ctx context.Context, payload models.ApprovalNotification) (*models.NotificationReceipt, error) {
	return n.post(ctx, NotifyRequestApproval, "/request-approval", payload)
}

// NotifyRejected implements Notifier.
func (n *HTTPNotifier) NotifyRejected(ctx context.Context, payload models.RejectionNotification) (*models.NotificationReceipt, error) {
	return n.post(ctx, NotifyRejection, "/notify-rejection", payload)
}

// NotifyPublished implements Notifier.
func (n *HTTPNotifier) NotifyPublished(ctx context.Context, payload models.PublishedNotification) (*models.NotificationReceipt, error) {
	return n.post(ctx, NotifyPublished, "/notify-published", payload)
}

func (n *HTTPNotifier) post(ctx context.Context, op, endpoint string, payload interface{}) (*models.NotificationReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}

	start := time.Now()
	resp, err := n.client.Do(req)
	if err != nil {
		n.observe(op, 0, start)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	n.observe(op, resp.StatusCode, start)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &adminapi.StatusError{Operation: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var decoded notifierResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			n.logger.Warn("notifier returned non-JSON body", zap.String("operation", op), zap.Error(err))
		}
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("%s: %s", op, decoded.Error)
	}
	recipients := decoded.Recipients
	if len(recipients) == 0 {
		recipients = decoded.NotifiedAuthors
	}
	return &models.NotificationReceipt{Message: decoded.Message, Recipients: recipients}, nil
}

func (n *HTTPNotifier) observe(op string, status int, start time.Time) {
	if n.observer != nil {
		n.observer.ObserveRemoteCall("notifier", op, status, time.Since(start))
	}
}

// NotificationService decorates a Notifier with metrics and a retry queue for
// best-effort sends.
type NotificationService struct {
	notifier Notifier
	metrics  *MetricsService
	queue    *jobs.Queue
	logger   *zap.Logger
}

// NewNotificationService constructs the service without a retry queue.
func NewNotificationService(notifier Notifier, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifier: notifier, metrics: metrics, logger: logger}
}

// NewRetryQueue builds the queue that replays failed best-effort notifications
// and attaches it to the service. The caller starts and stops it.
func (s *NotificationService) NewRetryQueue(cfg config.NotifierConfig) *jobs.Queue {
	router := jobs.NewRouter()
	router.Handle(NotifyRequestApproval, func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(models.ApprovalNotification)
		if !ok {
			return fmt.Errorf("unexpected payload %T", job.Payload)
		}
		_, err := s.RequestApproval(ctx, payload)
		return err
	})
	router.Handle(NotifyPublished, func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(models.PublishedNotification)
		if !ok {
			return fmt.Errorf("unexpected payload %T", job.Payload)
		}
		_, err := s.NotifyPublished(ctx, payload)
		return err
	})

	s.queue = jobs.NewQueue("notification-retry", router.Dispatch, jobs.QueueConfig{
		Workers:    cfg.RetryWorkers,
		MaxRetries: cfg.RetryMax,
		RetryDelay: cfg.RetryDelay,
		Logger:     s.logger,
		OnGiveUp: func(job jobs.Job, err error) {
			s.logger.Error("notification dropped after retries",
				zap.String("kind", job.Type),
				zap.String("job_id", job.ID),
				zap.Int("attempts", job.Attempt),
				zap.Error(err),
			)
		},
	})
	return s.queue
}

// RequestApproval sends an approval request email.
func (s *NotificationService) RequestApproval(ctx context.Context, n models.ApprovalNotification) (*models.NotificationReceipt, error) {
	receipt, err := s.notifier.RequestApproval(ctx, n)
	s.metrics.RecordNotification(NotifyRequestApproval, err)
	return receipt, err
}

// NotifyRejected sends a rejection email.
func (s *NotificationService) NotifyRejected(ctx context.Context, n models.RejectionNotification) (*models.NotificationReceipt, error) {
	receipt, err := s.notifier.NotifyRejected(ctx, n)
	s.metrics.RecordNotification(NotifyRejection, err)
	return receipt, err
}

// NotifyPublished sends the consolidated published email.
func (s *NotificationService) NotifyPublished(ctx context.Context, n models.PublishedNotification) (*models.NotificationReceipt, error) {
	if len(n.Pages) == 0 {
		return &models.NotificationReceipt{Message: "no authors to notify"}, nil
	}
	receipt, err := s.notifier.NotifyPublished(ctx, n)
	s.metrics.RecordNotification(NotifyPublished, err)
	return receipt, err
}

// Retry schedules a failed notification for redelivery. It reports false when
// no retry queue is running or the job could not be queued.
func (s *NotificationService) Retry(kind string, payload interface{}) bool {
	// rejections gate the reject action and are never replayed
	if s.queue == nil || kind == NotifyRejection {
		return false
	}
	// the first delivery already failed
	job := jobs.Job{ID: uuid.NewString(), Type: kind, Payload: payload, Attempt: 1}
	if err := s.queue.EnqueueAfter(job, s.queue.Backoff(1)); err != nil {
		s.logger.Warn("notification retry not scheduled", zap.String("kind", kind), zap.Error(err))
		return false
	}
	return true
}

// describeNotifyError turns a notifier failure into a user facing warning.
func describeNotifyError(kind string, err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) && appErr.Code == appErrors.ErrServiceNotConfigured.Code {
		return fmt.Sprintf("%s skipped: notifier not configured", kind)
	}
	return fmt.Sprintf("%s failed: %v", kind, err)
}
