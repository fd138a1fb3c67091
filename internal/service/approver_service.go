package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/internal/repository"
	appErrors "github.com/noah-isme/content-approval-api/pkg/errors"
)

type ruleConfigLoader interface {
	Load(ctx context.Context, org, repo string) (*models.ApprovalConfig, error)
}

// ApproverService resolves who must approve a content path.
type ApproverService struct {
	rules    ruleConfigLoader
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewApproverService constructs the service. cache may be nil.
func NewApproverService(rules ruleConfigLoader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *ApproverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApproverService{rules: rules, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func rulesCacheKey(org, repo string) string {
	return fmt.Sprintf("rules:%s/%s", strings.ToLower(org), strings.ToLower(repo))
}

// Config returns the approval config for org/repo, served from cache unless refresh is set.
func (s *ApproverService) Config(ctx context.Context, org, repo string, refresh bool) (*models.ApprovalConfig, error) {
	key := rulesCacheKey(org, repo)
	if !refresh {
		var cached models.ApprovalConfig
		if s.cache.Get(ctx, key, &cached) {
			return &cached, nil
		}
	}

	cfg, err := s.rules.Load(ctx, org, repo)
	if err != nil {
		if errors.Is(err, repository.ErrRulesNotConfigured) {
			return nil, appErrors.WrapAs(appErrors.ErrConfigurationMissing, err,
				fmt.Sprintf("no publish approval rules configured for %s/%s", org, repo))
		}
		return nil, appErrors.WrapAs(appErrors.ErrRemoteCallFailed, err, "failed to load approval rules")
	}
	s.cache.Set(ctx, key, cfg, s.cacheTTL)
	return cfg, nil
}

// Resolve matches path against the rules and expands approvers and CC.
// A path with no matching rule fails closed.
func (s *ApproverService) Resolve(ctx context.Context, org, repo, path string) (*models.ApproverResolution, error) {
	return s.resolve(ctx, org, repo, path, false)
}

// Preview is Resolve with an optional cache bypass.
func (s *ApproverService) Preview(ctx context.Context, org, repo, path string, refresh bool) (*models.ApproverResolution, error) {
	return s.resolve(ctx, org, repo, path, refresh)
}

func (s *ApproverService) resolve(ctx context.Context, org, repo, path string, refresh bool) (*models.ApproverResolution, error) {
	cfg, err := s.Config(ctx, org, repo, refresh)
	if err != nil {
		return nil, err
	}
	return s.resolveWith(cfg, org, repo, path)
}

func (s *ApproverService) resolveWith(cfg *models.ApprovalConfig, org, repo, path string) (*models.ApproverResolution, error) {
	rule := BestMatch(path, cfg.Rules)
	if rule == nil {
		return nil, appErrors.Clone(appErrors.ErrConfigurationMissing,
			fmt.Sprintf("no approval rule matches %s in %s/%s", path, org, repo))
	}

	approvers, unresolvedApprovers := resolveEntries(rule.Approvers, cfg.Groups)
	cc, unresolvedCC := resolveEntries(rule.CC, cfg.Groups)
	if len(approvers) == 0 {
		return nil, appErrors.Clone(appErrors.ErrConfigurationMissing,
			fmt.Sprintf("approval rule %s in %s/%s resolves to no approvers", rule.Pattern, org, repo))
	}

	unresolved := append(unresolvedApprovers, unresolvedCC...)
	if len(unresolved) > 0 {
		s.logger.Warn("approval entries match no group and are not addresses",
			zap.String("org", org),
			zap.String("repo", repo),
			zap.String("pattern", rule.Pattern),
			zap.Strings("entries", unresolved),
		)
	}

	return &models.ApproverResolution{
		Path:       path,
		Pattern:    rule.Pattern,
		Approvers:  approvers,
		CC:         cc,
		Unresolved: unresolved,
		Source:     cfg.Source,
	}, nil
}

// CanApprove reports whether email is among the resolved approvers for path.
func (s *ApproverService) CanApprove(ctx context.Context, org, repo, path, email string) (bool, error) {
	resolution, err := s.Resolve(ctx, org, repo, path)
	if err != nil {
		return false, err
	}
	return containsFold(resolution.Approvers, email), nil
}

// FilterApprovable keeps the requests that email may approve. Paths without a
// matching rule are dropped.
func (s *ApproverService) FilterApprovable(ctx context.Context, org, repo, email string, requests []models.PublishRequest) ([]models.PublishRequest, error) {
	cfg, err := s.Config(ctx, org, repo, false)
	if err != nil {
		return nil, err
	}
	result := make([]models.PublishRequest, 0, len(requests))
	for _, req := range requests {
		resolution, err := s.resolveWith(cfg, org, repo, req.Path)
		if err != nil {
			continue
		}
		if containsFold(resolution.Approvers, email) {
			result = append(result, req)
		}
	}
	return result, nil
}
