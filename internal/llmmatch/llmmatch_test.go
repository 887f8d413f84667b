package llmmatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/finbuch/matchcore/internal/model"
)

func TestParseVerdictValidJSON(t *testing.T) {
	v := ParseVerdict(`{"score": 0.82, "recommendation": "vorstellen", "explanation": "strong fit"}`)
	assert.Equal(t, 0.82, v.Score)
	assert.Equal(t, model.RecommendVorstellen, v.Recommendation)
}

func TestParseVerdictMalformedDegradesToZero(t *testing.T) {
	v := ParseVerdict("not json at all")
	assert.Equal(t, 0.0, v.Score)
	assert.Equal(t, model.RecommendNichtPassend, v.Recommendation)
}

func TestParseVerdictOutOfRangeScoreDegrades(t *testing.T) {
	v := ParseVerdict(`{"score": 1.5}`)
	assert.Equal(t, model.RecommendNichtPassend, v.Recommendation)
}

func TestJobGatePreconditionsRejectsMissingRoleKey(t *testing.T) {
	job := model.Job{Quality: model.QualityHigh, Classification: map[string]any{"a": 1}}
	assert.False(t, jobGatePreconditions(job, time.Now()))
}

func TestJobGatePreconditionsRejectsMissingClassification(t *testing.T) {
	job := model.Job{Quality: model.QualityHigh, RoleKey: model.RoleBookkeeper}
	assert.False(t, jobGatePreconditions(job, time.Now()))
}

func TestJobGatePreconditionsRejectsIneligibleJob(t *testing.T) {
	job := model.Job{Quality: model.QualityLow, RoleKey: model.RoleBookkeeper, Classification: map[string]any{"a": 1}}
	assert.False(t, jobGatePreconditions(job, time.Now()))
}

func TestJobGatePreconditionsAcceptsEligibleClassifiedJob(t *testing.T) {
	job := model.Job{Quality: model.QualityHigh, RoleKey: model.RoleBookkeeper, Classification: map[string]any{"a": 1}}
	assert.True(t, jobGatePreconditions(job, time.Now()))
}

func TestCandidateGatePreconditionsRejectsUnclassifiedCandidate(t *testing.T) {
	candidate := model.Candidate{RoleKey: model.RoleBookkeeper}
	assert.False(t, candidateGatePreconditions(candidate))
}

func TestCandidateGatePreconditionsAcceptsClassifiedCandidate(t *testing.T) {
	now := time.Now()
	candidate := model.Candidate{RoleKey: model.RoleBookkeeper, ClassificationAt: &now}
	assert.True(t, candidateGatePreconditions(candidate))
}

func TestToRoleStringsConvertsEachKey(t *testing.T) {
	out := toRoleStrings([]model.RoleKey{model.RoleBookkeeper, model.RoleSeniorBookkeeper})
	assert.Equal(t, []string{string(model.RoleBookkeeper), string(model.RoleSeniorBookkeeper)}, out)
}

func TestHaversineKMZeroForSamePoint(t *testing.T) {
	p := model.GeoPoint{Lat: 52.52, Lon: 13.405}
	assert.InDelta(t, 0.0, haversineKM(p, p), 0.0001)
}
