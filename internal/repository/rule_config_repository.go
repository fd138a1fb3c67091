package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/content-approval-api/internal/models"
	"github.com/noah-isme/content-approval-api/pkg/adminapi"
	"github.com/noah-isme/content-approval-api/pkg/config"
)

// ErrRulesNotConfigured is returned when neither the repo nor the org config
// document carries a rules section.
var ErrRulesNotConfigured = errors.New("approval rules not configured")

// SourceReader reads admin API source documents.
type SourceReader interface {
	GetSource(ctx context.Context, path string) (*adminapi.Document, error)
}

type configSection struct {
	Data []models.SheetRow `json:"data"`
}

// RuleConfigRepository loads approval rules and groups from the multi-sheet
// config document, preferring the repo scope over the org scope.
type RuleConfigRepository struct {
	source        SourceReader
	configPath    string
	rulesSection  string
	groupsSection string
}

// NewRuleConfigRepository constructs the repository.
func NewRuleConfigRepository(source SourceReader, cfg config.RulesConfig) *RuleConfigRepository {
	configPath := strings.TrimLeft(cfg.ConfigPath, "/")
	if configPath == "" {
		configPath = ".da/config.json"
	}
	rules := cfg.RulesSection
	if rules == "" {
		rules = "publish-approvals"
	}
	groups := cfg.GroupsSection
	if groups == "" {
		groups = "publish-groups"
	}
	return &RuleConfigRepository{source: source, configPath: configPath, rulesSection: rules, groupsSection: groups}
}

// Scopes lists the config documents consulted for org/repo, narrowest first.
func (r *RuleConfigRepository) Scopes(org, repo string) []string {
	return []string{
		fmt.Sprintf("/%s/%s/%s", org, repo, r.configPath),
		fmt.Sprintf("/%s/%s", org, r.configPath),
	}
}

// Load returns the first scope that defines a rules section.
func (r *RuleConfigRepository) Load(ctx context.Context, org, repo string) (*models.ApprovalConfig, error) {
	for _, scope := range r.Scopes(org, repo) {
		doc, err := r.source.GetSource(ctx, scope)
		if err != nil {
			if adminapi.IsStatus(err, http.StatusNotFound) {
				continue
			}
			return nil, fmt.Errorf("load config %s: %w", scope, err)
		}
		cfg, ok, err := r.parse(doc.Body)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", scope, err)
		}
		if !ok {
			continue
		}
		cfg.Source = scope
		return cfg, nil
	}
	return nil, fmt.Errorf("%w for %s/%s", ErrRulesNotConfigured, org, repo)
}

func (r *RuleConfigRepository) parse(body []byte) (*models.ApprovalConfig, bool, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false, err
	}

	rulesRaw, ok := lookupFold(doc, r.rulesSection)
	if !ok {
		return nil, false, nil
	}
	var rules configSection
	if err := json.Unmarshal(rulesRaw, &rules); err != nil {
		return nil, false, fmt.Errorf("section %s: %w", r.rulesSection, err)
	}

	cfg := &models.ApprovalConfig{
		Rules:  make([]models.ApprovalRule, 0, len(rules.Data)),
		Groups: []models.GroupMapping{},
	}
	for _, row := range rules.Data {
		pattern := strings.TrimSpace(row.GetFold("pattern"))
		if pattern == "" {
			continue
		}
		cfg.Rules = append(cfg.Rules, models.ApprovalRule{
			Pattern:   pattern,
			Approvers: row.GetListFold("approvers"),
			CC:        row.GetListFold("cc"),
		})
	}

	if groupsRaw, ok := lookupFold(doc, r.groupsSection); ok {
		var groups configSection
		if err := json.Unmarshal(groupsRaw, &groups); err != nil {
			return nil, false, fmt.Errorf("section %s: %w", r.groupsSection, err)
		}
		for _, row := range groups.Data {
			name := strings.TrimSpace(row.GetFold("group"))
			if name == "" {
				continue
			}
			cfg.Groups = append(cfg.Groups, models.GroupMapping{
				Group: name,
				Email: strings.Join(row.GetListFold("email"), ","),
			})
		}
	}
	return cfg, true, nil
}

func lookupFold(doc map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	if raw, ok := doc[key]; ok {
		return raw, true
	}
	for k, raw := range doc {
		if strings.EqualFold(k, key) {
			return raw, true
		}
	}
	return nil, false
}
