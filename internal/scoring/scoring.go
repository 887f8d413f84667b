// Package scoring implements the structured scoring engine (spec.md
// §4.D): seven 0-1 component sub-scores and their weighted aggregation
// to a 0-100 total.
//
// The component math is spec-defined (it has no direct analogue in the
// teacher repo); the package shape — pure component functions plus a
// weight-store-backed Aggregate step — is grounded on
// _examples/ashita-ai-akashi/internal/conflicts/scorer.go's threshold/
// weight fields and its cosine-similarity usage for embedding_sim.
package scoring

import (
	"strings"

	"github.com/finbuch/matchcore/internal/embedding"
	"github.com/finbuch/matchcore/internal/model"
	"github.com/finbuch/matchcore/internal/roles"
)

// ScoringVersion is stamped into every breakdown (spec.md §6: "Score
// breakdown is a map containing one entry per §4.D component plus a
// scoring_version string").
const ScoringVersion = "v2"

// skillMatchValue returns the [0,1] match strength between a candidate
// skill name and a required skill name: 1.0 for exact (case-insensitive,
// trimmed) equality, 0.8 for a substring match in either direction, 0
// otherwise.
func skillMatchValue(have, want string) float64 {
	h, w := model.NormalizeSkill(have), model.NormalizeSkill(want)
	if h == "" || w == "" {
		return 0
	}
	if h == w {
		return 1.0
	}
	if strings.Contains(h, w) || strings.Contains(w, h) {
		return 0.8
	}
	return 0
}

func recencyScale(r model.SkillRecency) float64 {
	switch r {
	case model.RecencyAktuell:
		return 1.0
	case model.RecencyKuerzlich:
		return 0.7
	case model.RecencyVeraltet:
		return 0.3
	default:
		return 0.7 // unspecified recency treated as "recent enough", a neutral middle value
	}
}

// bestCandidateMatch finds the candidate skill that best matches want,
// scaled by that candidate skill's recency and (if expert) a capped 1.1x
// bonus, per spec.md §4.D skill_overlap rule.
func bestCandidateMatch(candidateSkills []model.StructuredSkill, want string) float64 {
	best := 0.0
	for _, cs := range candidateSkills {
		m := skillMatchValue(cs.Skill, want)
		if m == 0 {
			continue
		}
		scaled := m * recencyScale(cs.Recency)
		if cs.Proficiency == model.ProficiencyExperte {
			scaled *= 1.1
			if scaled > 1.0 {
				scaled = 1.0
			}
		}
		if scaled > best {
			best = scaled
		}
	}
	return best
}

// SkillOverlap implements spec.md §4.D's skill_overlap component.
func SkillOverlap(candidateSkills []model.StructuredSkill, requiredSkills []model.StructuredSkill) float64 {
	var essential, preferred []model.StructuredSkill
	for _, rs := range requiredSkills {
		switch rs.Importance {
		case model.ImportanceEssential:
			essential = append(essential, rs)
		case model.ImportancePreferred:
			preferred = append(preferred, rs)
		}
	}

	ratio := func(bucket []model.StructuredSkill) float64 {
		if len(bucket) == 0 {
			return 0.5 // missing side defaults to 0.5
		}
		var sum float64
		for _, rs := range bucket {
			sum += bestCandidateMatch(candidateSkills, rs.Skill)
		}
		return sum / float64(len(bucket))
	}

	return 0.7*ratio(essential) + 0.3*ratio(preferred)
}

// SeniorityFit implements spec.md §4.D's seniority_fit component.
func SeniorityFit(candidateLevel, jobLevel int) float64 {
	gap := candidateLevel - jobLevel
	abs := gap
	if abs < 0 {
		abs = -abs
	}
	switch abs {
	case 0:
		return 1.0
	case 1:
		if gap < 0 {
			return 0.75 // candidate below job level
		}
		return 0.65 // candidate above job level
	case 2:
		return 0.3
	default:
		return 0
	}
}

// EmbeddingSim implements spec.md §4.D's embedding_sim component. A
// missing vector on either side yields the documented neutral 0.3.
func EmbeddingSim(candidateVec, jobVec []float32) float64 {
	if len(candidateVec) == 0 || len(jobVec) == 0 {
		return 0.3
	}
	return embedding.Normalize(embedding.Similarity(candidateVec, jobVec))
}

// CareerFit implements spec.md §4.D's career_fit component.
func CareerFit(trajectory model.Trajectory, candidateLevel, jobLevel int) float64 {
	gap := jobLevel - candidateLevel
	switch trajectory {
	case model.TrajectoryAufsteigend:
		switch {
		case gap == 1:
			return 1.0
		case gap == 0:
			return 0.8
		case gap == -1:
			return 0.4
		case gap >= 2:
			return 0.3
		default:
			return 0.2
		}
	case model.TrajectoryLateral:
		switch {
		case gap == 0:
			return 0.9
		case gap == 1 || gap == -1:
			return 0.6
		default:
			return 0.3
		}
	case model.TrajectoryAbsteigend:
		if gap <= 0 {
			return 0.5
		}
		return 0.2
	case model.TrajectoryEinstieg:
		if jobLevel <= 2 {
			return 0.8
		}
		return 0.2
	default:
		return 0.2
	}
}

// datevKeywords and sapKeywords detect the two finance ERP ecosystems by
// keyword substring (spec.md §4.D software_match).
var datevKeywords = []string{"datev"}
var sapKeywords = []string{"sap"}

func detectEcosystem(skills []string) (datev, sap bool) {
	for _, s := range skills {
		low := strings.ToLower(s)
		for _, k := range datevKeywords {
			if strings.Contains(low, k) {
				datev = true
			}
		}
		for _, k := range sapKeywords {
			if strings.Contains(low, k) {
				sap = true
			}
		}
	}
	return
}

// SoftwareMatch implements spec.md §4.D's software_match component.
func SoftwareMatch(candidateSkills, candidateERP, jobSkills []string) float64 {
	candAll := append(append([]string{}, candidateSkills...), candidateERP...)
	candDatev, candSAP := detectEcosystem(candAll)
	jobDatev, jobSAP := detectEcosystem(jobSkills)

	if !jobDatev && !jobSAP {
		return 0.5 // job has no ecosystem requirement
	}
	if !candDatev && !candSAP {
		return 0.3 // candidate lacks any ecosystem
	}
	sameEcosystem := (jobDatev && candDatev) || (jobSAP && candSAP)
	if sameEcosystem {
		return 1.0
	}
	return 0.3 // cross-ecosystem
}

// metroAreas groups cities that fall back to a 0.5 "same metro" bonus
// when precise distance is unavailable (spec.md §4.D location_bonus).
var metroAreas = map[string]string{
	"hamburg":   "hamburg-metro",
	"norderstedt": "hamburg-metro",
	"pinneberg": "hamburg-metro",
	"berlin":    "berlin-metro",
	"potsdam":   "berlin-metro",
	"munich":    "munich-metro",
	"muenchen":  "munich-metro",
	"münchen":   "munich-metro",
}

// LocationBonus implements spec.md §4.D's location_bonus component.
func LocationBonus(candidateCity, jobCity string, distanceKM *float64) float64 {
	if distanceKM != nil {
		d := *distanceKM
		switch {
		case d <= 15:
			return 1.0
		case d <= 30:
			return 0.7
		case d <= 60:
			return 0.4
		default:
			return 0
		}
	}

	if candidateCity == "" || jobCity == "" {
		return 0.3
	}
	cc, jc := strings.ToLower(strings.TrimSpace(candidateCity)), strings.ToLower(strings.TrimSpace(jobCity))
	if cc == jc {
		return 1.0
	}
	if metroAreas[cc] != "" && metroAreas[cc] == metroAreas[jc] {
		return 0.5
	}
	return 0
}

// RoleGated implements spec.md §4.D's role_gated component: delegates to
// internal/roles.Compatibility.
func RoleGated(candidateRole, jobRole model.RoleKey) float64 {
	return roles.Compatibility(candidateRole, jobRole)
}

// Inputs bundles everything ComputeBreakdown needs from a (candidate,
// job) pair plus an optionally pre-computed distance.
type Inputs struct {
	Candidate  model.Candidate
	Job        model.Job
	DistanceKM *float64
}

// ComputeBreakdown computes all seven component scores for one pair.
func ComputeBreakdown(in Inputs) model.ScoreBreakdown {
	c, j := in.Candidate, in.Job
	return model.ScoreBreakdown{
		SkillOverlap:   SkillOverlap(c.StructuredSkills, j.RequiredSkills),
		SeniorityFit:   SeniorityFit(c.SeniorityLevel, j.SeniorityLevel),
		EmbeddingSim:   EmbeddingSim(c.CurrentEmbeddingVector(), j.RoleEmbeddingVector()),
		CareerFit:      CareerFit(c.Trajectory, c.SeniorityLevel, j.SeniorityLevel),
		SoftwareMatch:  SoftwareMatch(append(c.Skills, c.ITSkills...), c.ERPSystems, j.RequiredSkillNames()),
		LocationBonus:  LocationBonus(c.City, j.City, in.DistanceKM),
		RoleGated:      RoleGated(c.RoleKey, j.RoleKey),
		ScoringVersion: ScoringVersion,
	}
}

// Aggregate implements spec.md §4.D's aggregation rule:
// total = (Σ score_i · weight_i) / (Σ weight_i) · 100.
func Aggregate(b model.ScoreBreakdown, weights map[string]float64) float64 {
	values := b.ToMap()
	var weightedSum, weightSum float64
	for _, component := range model.ScoringComponents {
		w, ok := weights[component]
		if !ok || w <= 0 {
			continue
		}
		weightedSum += values[component] * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return (weightedSum / weightSum) * 100
}
