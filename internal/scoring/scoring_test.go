package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuch/matchcore/internal/model"
)

// TestHamburgBookkeeperScenario reproduces spec.md §8 scenario 1.
func TestHamburgBookkeeperScenario(t *testing.T) {
	candidate := model.Candidate{
		SeniorityLevel: 3,
		Trajectory:     model.TrajectoryLateral,
		City:           "Hamburg",
		StructuredSkills: []model.StructuredSkill{
			{Skill: "DATEV", Recency: model.RecencyAktuell, Proficiency: model.ProficiencyFortgeschritten},
			{Skill: "HGB", Recency: model.RecencyAktuell, Proficiency: model.ProficiencyExperte},
		},
		ERPSystems: []string{"DATEV"},
	}
	job := model.Job{
		SeniorityLevel: 3,
		City:           "Hamburg",
		RequiredSkills: []model.StructuredSkill{
			{Skill: "DATEV", Importance: model.ImportanceEssential},
			{Skill: "SAP FI", Importance: model.ImportancePreferred},
		},
	}
	distance := 12.0

	b := ComputeBreakdown(Inputs{Candidate: candidate, Job: job, DistanceKM: &distance})

	assert.Equal(t, 1.0, b.LocationBonus, "12km is within the <=15km bucket")
	assert.Equal(t, 1.0, b.SoftwareMatch, "DATEV intersection is not penalized by SAP being preferred-only")

	weights := map[string]float64{
		"skill_overlap":  35,
		"seniority_fit":  20,
		"embedding_sim":  20,
		"career_fit":     10,
		"software_match": 10,
		"location_bonus": 5,
	}
	total := Aggregate(b, weights)
	require.InDelta(t, 72, total, 2)
}

func TestSeniorityFitGapBoundaries(t *testing.T) {
	assert.Equal(t, 1.0, SeniorityFit(3, 3))
	assert.Equal(t, 0.75, SeniorityFit(2, 3)) // candidate below job level, gap 1
	assert.Equal(t, 0.65, SeniorityFit(4, 3)) // candidate above job level, gap 1
	assert.Equal(t, 0.3, SeniorityFit(1, 3))  // gap 2
	assert.Equal(t, 0.0, SeniorityFit(6, 3))  // gap 3, no candidate retained by the hard filter
}

func TestLocationBonusDistanceBuckets(t *testing.T) {
	d15, d30, d60, d61 := 15.0, 30.0, 60.0, 60.01
	assert.Equal(t, 1.0, LocationBonus("", "", &d15))
	assert.Equal(t, 0.7, LocationBonus("", "", &d30))
	assert.Equal(t, 0.4, LocationBonus("", "", &d60))
	assert.Equal(t, 0.0, LocationBonus("", "", &d61))
}

func TestRoleGatedExcludedPairScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, RoleGated(model.RolePayrollClerk, model.RoleGeneralAccountant))
}

func TestEmbeddingSimMissingVectorNeutral(t *testing.T) {
	assert.Equal(t, 0.3, EmbeddingSim(nil, []float32{1, 2, 3}))
}
