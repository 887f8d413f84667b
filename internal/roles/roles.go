// Package roles implements the declarative role-compatibility table
// (spec.md §4.A): for each job-role key, the set of candidate-role keys
// permitted to match it, plus a directional rule set for degraded
// matches.
//
// Grounded on original_source/app/services/v5_matching_service.py's
// ROLE_COMPATIBILITY dict, translated to the English role keys
// spec.md's GLOSSARY defines.
package roles

import "github.com/finbuch/matchcore/internal/model"

// degradeRule is one directional, degraded-but-acceptable cross-role
// pairing. Score is the similarity value assigned when this rule (and no
// direct match) applies.
type degradeRule struct {
	CandidateRole model.RoleKey
	JobRole       model.RoleKey
	Score         float64
}

// degradeRules is the directional rule set. Order does not matter: at
// most one rule can match a given (candidateRole, jobRole) pair.
var degradeRules = []degradeRule{
	{CandidateRole: model.RoleTaxClerk, JobRole: model.RoleBookkeeper, Score: 0.6},
	{CandidateRole: model.RoleSeniorBookkeeper, JobRole: model.RoleBookkeeper, Score: 0.8},
	{CandidateRole: model.RoleBookkeeper, JobRole: model.RoleSeniorBookkeeper, Score: 0.8},
	{CandidateRole: model.RoleAPBookkeeper, JobRole: model.RoleBookkeeper, Score: 0.6},
	{CandidateRole: model.RoleARBookkeeper, JobRole: model.RoleBookkeeper, Score: 0.6},
}

// Compatibility returns the role_gated score for a (candidate, job) role
// pair: 1.0 for a direct match, the degraded rule's score if one applies,
// or 0 if the pair is excluded (spec.md §4.A, §4.D role_gated).
func Compatibility(candidateRole, jobRole model.RoleKey) float64 {
	if candidateRole == "" || jobRole == "" {
		return 0
	}
	if candidateRole == jobRole {
		return 1.0
	}
	for _, r := range degradeRules {
		if r.CandidateRole == candidateRole && r.JobRole == jobRole {
			return r.Score
		}
	}
	return 0
}

// Compatible reports whether the pair is permitted to be emitted as a
// match at all (spec.md: "A pair that does not appear in either the
// table or the rule set has role-compatibility score 0 and must not be
// emitted as a match.").
func Compatible(candidateRole, jobRole model.RoleKey) bool {
	return Compatibility(candidateRole, jobRole) > 0
}

// AllowedCandidateRoles returns, for a given job role key, the set of
// candidate role keys that may be considered for it: the job role itself
// plus every candidate role with a degrade rule targeting it. Used by
// §4.F's per-job candidate gate.
func AllowedCandidateRoles(jobRole model.RoleKey) []model.RoleKey {
	if jobRole == "" {
		return nil
	}
	seen := map[model.RoleKey]bool{jobRole: true}
	out := []model.RoleKey{jobRole}
	for _, r := range degradeRules {
		if r.JobRole == jobRole && !seen[r.CandidateRole] {
			seen[r.CandidateRole] = true
			out = append(out, r.CandidateRole)
		}
	}
	return out
}

// AllowedJobRoles returns, for a given candidate role key, the set of job
// role keys that candidate may be considered for: the candidate's own
// role plus every job role a degrade rule targets from it. The mirror
// image of AllowedCandidateRoles, used by §4.F's reverse mode (a fixed
// candidate gated against the job corpus).
func AllowedJobRoles(candidateRole model.RoleKey) []model.RoleKey {
	if candidateRole == "" {
		return nil
	}
	seen := map[model.RoleKey]bool{candidateRole: true}
	out := []model.RoleKey{candidateRole}
	for _, r := range degradeRules {
		if r.CandidateRole == candidateRole && !seen[r.JobRole] {
			seen[r.JobRole] = true
			out = append(out, r.JobRole)
		}
	}
	return out
}

// MatchedLabels intersects a candidate's and job's secondary role lists,
// falling back to the directional degrade rules when the intersection is
// empty (spec.md §4.G phase 2: "intersect candidate's and job's role-label
// lists; if empty, apply the directional compatibility rules"). Returns
// the matched role keys, or nil if no match exists.
func MatchedLabels(candidateRoles, jobRoles []model.RoleKey) []model.RoleKey {
	jobSet := make(map[model.RoleKey]bool, len(jobRoles))
	for _, r := range jobRoles {
		jobSet[r] = true
	}

	var direct []model.RoleKey
	for _, r := range candidateRoles {
		if jobSet[r] {
			direct = append(direct, r)
		}
	}
	if len(direct) > 0 {
		return direct
	}

	var degraded []model.RoleKey
	for _, cr := range candidateRoles {
		for _, rule := range degradeRules {
			if rule.CandidateRole == cr && jobSet[rule.JobRole] {
				degraded = append(degraded, rule.JobRole)
			}
		}
	}
	return degraded
}
