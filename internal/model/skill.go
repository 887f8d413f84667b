package model

import "strings"

// normalizeSkill canonicalizes a skill name for case-insensitive,
// whitespace-insensitive comparison (spec.md §4.D: "exact name equality
// (case-insensitive, trimmed)").
func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSkill exports the canonicalization for use outside this package
// (scoring, learned-rule evaluation).
func NormalizeSkill(s string) string {
	return normalizeSkill(s)
}
