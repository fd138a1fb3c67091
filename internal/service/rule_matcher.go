package service

import (
	"strings"

	"github.com/noah-isme/content-approval-api/internal/models"
)

const (
	noMatch          = -1
	exactSpecificity = 1000
)

// Specificity scores how precisely pattern targets path. It returns -1 when
// the pattern does not apply.
func Specificity(pattern, path string) int {
	switch {
	case pattern == "/*" || pattern == "*":
		return 0
	case pattern == path:
		return exactSpecificity
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		if !strings.HasPrefix(path, prefix) {
			return noMatch
		}
		segments := 0
		for _, part := range strings.Split(prefix, "/") {
			if part != "" {
				segments++
			}
		}
		return segments
	default:
		return noMatch
	}
}

// BestMatch returns the rule with the highest specificity for path. Ties go to
// the earliest rule. Nil means no rule applies.
func BestMatch(path string, rules []models.ApprovalRule) *models.ApprovalRule {
	var best *models.ApprovalRule
	bestScore := noMatch
	for i := range rules {
		score := Specificity(rules[i].Pattern, path)
		if score > bestScore {
			best = &rules[i]
			bestScore = score
		}
	}
	return best
}

// ResolveApprovers expands group names into addresses and removes duplicates
// case-insensitively, keeping first-seen order. Entries that name no group are
// kept as literal addresses.
func ResolveApprovers(entries []string, groups []models.GroupMapping) []string {
	resolved, _ := resolveEntries(entries, groups)
	return resolved
}

// resolveEntries also reports entries that are neither a known group nor an address.
func resolveEntries(entries []string, groups []models.GroupMapping) ([]string, []string) {
	if len(entries) == 0 {
		return []string{}, nil
	}

	byName := make(map[string]string, len(groups))
	for _, g := range groups {
		key := strings.ToLower(strings.TrimSpace(g.Group))
		if _, exists := byName[key]; !exists {
			byName[key] = g.Email
		}
	}

	expanded := make([]string, 0, len(entries))
	var unresolved []string
	for _, entry := range entries {
		if emails, ok := byName[strings.ToLower(strings.TrimSpace(entry))]; ok {
			for _, addr := range strings.Split(emails, ",") {
				if addr = strings.TrimSpace(addr); addr != "" {
					expanded = append(expanded, addr)
				}
			}
			continue
		}
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "@") {
			unresolved = append(unresolved, entry)
		}
		expanded = append(expanded, entry)
	}

	seen := make(map[string]struct{}, len(expanded))
	result := make([]string, 0, len(expanded))
	for _, addr := range expanded {
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, addr)
	}
	return result, unresolved
}

// containsFold reports whether list holds value ignoring case.
func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}
