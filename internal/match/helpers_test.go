package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbuch/matchcore/internal/model"
)

func TestHaversineKMZeroForIdenticalPoints(t *testing.T) {
	p := model.GeoPoint{Lat: 53.55, Lon: 9.99}
	assert.InDelta(t, 0.0, haversineKM(p, p), 0.001)
}

func TestHaversineKMHamburgToBerlin(t *testing.T) {
	hamburg := model.GeoPoint{Lat: 53.5511, Lon: 9.9937}
	berlin := model.GeoPoint{Lat: 52.5200, Lon: 13.4050}
	d := haversineKM(hamburg, berlin)
	require.InDelta(t, 255, d, 15)
}

func TestApplyRuleBoostsSumsMatchingRulesWeightedByConfidence(t *testing.T) {
	sc := scoredCandidate{
		candidate: model.Candidate{Skills: []string{"DATEV"}, SeniorityLevel: 3, YearsExperience: 5},
		total:     50,
	}
	minLevel := 2
	rules := []model.LearnedRule{
		{Condition: model.RuleCondition{HasSkills: []string{"DATEV"}, MinLevel: &minLevel}, Boost: 10, Confidence: 0.5, Active: true},
		{Condition: model.RuleCondition{HasSkills: []string{"SAP"}}, Boost: 100, Confidence: 1, Active: true},
	}
	assert.Equal(t, 55.0, applyRuleBoosts(sc, rules))
}

func TestApplyRuleBoostsClampsToHundred(t *testing.T) {
	sc := scoredCandidate{
		candidate: model.Candidate{Skills: []string{"DATEV"}, SeniorityLevel: 3, YearsExperience: 5},
		total:     90,
	}
	rules := []model.LearnedRule{
		{Condition: model.RuleCondition{HasSkills: []string{"DATEV"}}, Boost: 50, Confidence: 1, Active: true},
	}
	assert.Equal(t, 100.0, applyRuleBoosts(sc, rules))
}
