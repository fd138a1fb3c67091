package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type memoryRequestStore struct {
	mu        sync.Mutex
	rows      []models.PublishRequest
	appendErr error
	removeErr error
	appends   int
	removes   int
}

func (m *memoryRequestStore) ListPending(_ context.Context, _, _ string) ([]models.PublishRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PublishRequest, 0, len(m.rows))
	for _, r := range m.rows {
		if r.IsPending() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRequestStore) FindPending(_ context.Context, _, _, path, requester string) (*models.PublishRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.IsPending() && r.Matches(path, requester) {
			found := r
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryRequestStore) Append(_ context.Context, _, _ string, req models.PublishRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appends++
	m.rows = append(m.rows, req)
	return nil
}

func (m *memoryRequestStore) RemoveMatching(_ context.Context, _, _ string, match func(models.PublishRequest) bool) ([]models.PublishRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return nil, m.removeErr
	}
	var kept, removed []models.PublishRequest
	for _, r := range m.rows {
		if match(r) {
			removed = append(removed, r)
		} else {
			kept = append(kept, r)
		}
	}
	if len(removed) > 0 {
		m.removes++
		m.rows = kept
	}
	return removed, nil
}

func (m *memoryRequestStore) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Path)
	}
	return out
}

// approverStub approves everything for approvers except paths under /unruled.
type approverStub struct {
	approvers []string
	cc        []string
}

func (a *approverStub) Resolve(_ context.Context, org, repo, path string) (*models.ApproverResolution, error) {
	if strings.HasPrefix(path, "/unruled") {
		return nil, appErrors.Clone(appErrors.ErrConfigurationMissing, "no approval rule matches "+path+" in "+org+"/"+repo)
	}
	return &models.ApproverResolution{Path: path, Pattern: "/*", Approvers: a.approvers, CC: a.cc}, nil
}

func (a *approverStub) Preview(ctx context.Context, org, repo, path string, _ bool) (*models.ApproverResolution, error) {
	return a.Resolve(ctx, org, repo, path)
}

func (a *approverStub) FilterApprovable(_ context.Context, _, _, email string, requests []models.PublishRequest) ([]models.PublishRequest, error) {
	if !containsFold(a.approvers, email) {
		return []models.PublishRequest{}, nil
	}
	return requests, nil
}

type publisherStub struct {
	mu          sync.Mutex
	published   []string
	keys        []string
	publishErr  error
	entered     chan struct{}
	release     chan struct{}
	bulkCalls   [][]string
	bulkErr     error
	selfURL     string
	jobs        []*models.BulkJob
	detailCalls int
	lastDetail  time.Time
}

func (p *publisherStub) Publish(_ context.Context, _, _, path, key string) error {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, path)
	p.keys = append(p.keys, key)
	return nil
}

func (p *publisherStub) BulkPublish(_ context.Context, _, _ string, paths []string) (*adminapi.BulkPublishResponse, error) {
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bulkErr != nil {
		return nil, p.bulkErr
	}
	p.bulkCalls = append(p.bulkCalls, append([]string(nil), paths...))
	return &adminapi.BulkPublishResponse{SelfURL: p.selfURL, Status: 202}, nil
}

func (p *publisherStub) JobDetails(_ context.Context, selfURL string) (*models.BulkJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.detailCalls
	if idx >= len(p.jobs) {
		idx = len(p.jobs) - 1
	}
	p.detailCalls++
	p.lastDetail = time.Now()
	job := *p.jobs[idx]
	job.SelfURL = selfURL
	return &job, nil
}

func (p *publisherStub) publishCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type decisionStub struct {
	mu      sync.Mutex
	entries []models.Decision
	err     error
}

func (d *decisionStub) Create(_ context.Context, decision *models.Decision) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.entries = append(d.entries, *decision)
	return nil
}

func (d *decisionStub) List(_ context.Context, filter models.DecisionFilter) ([]models.Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Decision
	for _, e := range d.entries {
		if filter.Decision == "" || e.Decision == filter.Decision {
			out = append(out, e)
		}
	}
	return out, nil
}
