// Package adminapi talks to the CMS admin API: source documents (sheets and
// configuration) and the publish endpoints.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/config"
	"github.com/noah-isme/content-approval-api/pkg/middleware/requestid"
)

const (
	collaborator     = "admin_api"
	maxResponseBytes = 10 << 20
	// IdempotencyHeader carries a stable key so a retried publish is not applied twice.
	IdempotencyHeader = "X-Idempotency-Key"
)

// CallObserver receives timing for every outbound call.
type CallObserver interface {
	ObserveRemoteCall(collaborator, operation string, status int, duration time.Duration)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Document is a raw source document and its version token.
type Document struct {
	Body []byte
	ETag string
}

// BulkPublishResponse is the immediate answer to a bulk publish call. SelfURL
// is empty when the publish completed synchronously.
type BulkPublishResponse struct {
	SelfURL string
	Status  int
}

// Client is safe for concurrent use.
type Client struct {
	sourceBase  string
	publishBase string
	token       string
	ref         string
	http        *http.Client
	observer    CallObserver
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithObserver records call metrics.
func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a client from explicit configuration.
func New(cfg config.AdminAPIConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ref := cfg.Ref
	if ref == "" {
		ref = "main"
	}
	c := &Client{
		sourceBase:  strings.TrimRight(cfg.SourceBaseURL, "/"),
		publishBase: strings.TrimRight(cfg.PublishBaseURL, "/"),
		token:       cfg.Token,
		ref:         ref,
		http:        &http.Client{Timeout: timeout},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// GetSource reads a source document, e.g. "/org/repo/.da/config.json".
func (c *Client) GetSource(ctx context.Context, sourcePath string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sourceBase+cleanPath(sourcePath), nil)
	if err != nil {
		return nil, err
	}
	body, header, err := c.do(req, "get_source")
	if err != nil {
		return nil, err
	}
	return &Document{Body: body, ETag: header.Get("ETag")}, nil
}

// PutSource overwrites a source document with a multipart "data" part. When
// ifMatch is set the write is conditional and a concurrent change yields 412.
func (c *Client) PutSource(ctx context.Context, sourcePath string, body []byte, ifMatch string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	partHeader := make(textproto.MIMEHeader)
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="data"; filename=%q`, path.Base(sourcePath)))
	partHeader.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(partHeader)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(body); err != nil {
		return "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.sourceBase+cleanPath(sourcePath), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}
	_, header, err := c.do(req, "put_source")
	if err != nil {
		return "", err
	}
	return header.Get("ETag"), nil
}

// Publish pushes a single path live.
func (c *Client) Publish(ctx context.Context, org, repo, contentPath, idempotencyKey string) error {
	endpoint := fmt.Sprintf("%s/live/%s/%s/%s%s", c.publishBase, org, repo, c.ref, cleanPath(contentPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}
	_, _, err = c.do(req, "publish")
	return err
}

type bulkPublishBody struct {
	Paths       []string `json:"paths"`
	ForceUpdate bool     `json:"forceUpdate"`
	Delete      bool     `json:"delete"`
}

type bulkPublishReply struct {
	Links struct {
		Self string `json:"self"`
	} `json:"links"`
	Job *struct {
		Links struct {
			Self string `json:"self"`
		} `json:"links"`
	} `json:"job"`
}

// BulkPublish submits every path in one job.
func (c *Client) BulkPublish(ctx context.Context, org, repo string, paths []string) (*BulkPublishResponse, error) {
	payload, err := json.Marshal(bulkPublishBody{Paths: paths, ForceUpdate: true})
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/live/%s/%s/%s/*", c.publishBase, org, repo, c.ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	status, body, err := c.doStatus(req, "bulk_publish")
	if err != nil {
		return nil, err
	}
	out := &BulkPublishResponse{Status: status}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	var reply bulkPublishReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode bulk publish response: %w", err)
	}
	out.SelfURL = reply.Links.Self
	if out.SelfURL == "" && reply.Job != nil {
		out.SelfURL = reply.Job.Links.Self
	}
	return out, nil
}

type jobDetailsReply struct {
	State string `json:"state"`
	Job   *struct {
		State string `json:"state"`
	} `json:"job"`
	Data struct {
		Resources []models.BulkResource `json:"resources"`
	} `json:"data"`
}

// JobDetails fetches the status of a bulk job from its self link.
func (c *Client) JobDetails(ctx context.Context, selfURL string) (*models.BulkJob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(selfURL, "/")+"/details", nil)
	if err != nil {
		return nil, err
	}
	body, _, err := c.do(req, "job_details")
	if err != nil {
		return nil, err
	}
	var reply jobDetailsReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("decode job details: %w", err)
	}
	state := reply.State
	if state == "" && reply.Job != nil {
		state = reply.Job.State
	}
	return &models.BulkJob{SelfURL: selfURL, State: state, Resources: reply.Data.Resources}, nil
}

func (c *Client) do(req *http.Request, operation string) ([]byte, http.Header, error) {
	resp, body, err := c.send(req, operation)
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Header, nil
}

func (c *Client) doStatus(req *http.Request, operation string) (int, []byte, error) {
	resp, body, err := c.send(req, operation)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) send(req *http.Request, operation string) (*http.Response, []byte, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id := requestid.FromContext(req.Context()); id != "" {
		req.Header.Set(requestid.HeaderKey, id)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.observe(operation, 0, duration)
		return nil, nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()
	c.observe(operation, resp.StatusCode, duration)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read body: %w", operation, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("admin api call failed",
			zap.String("operation", operation),
			zap.String("url", req.URL.Redacted()),
			zap.Int("status", resp.StatusCode))
		return nil, nil, &StatusError{Operation: operation, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, body, nil
}

func (c *Client) observe(operation string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRemoteCall(collaborator, operation, status, duration)
	}
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
