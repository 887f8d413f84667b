package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/finbuch/matchcore/internal/model"
)

func TestSelectStage(t *testing.T) {
	assert.Equal(t, StageColdStart, SelectStage(0))
	assert.Equal(t, StageColdStart, SelectStage(19))
	assert.Equal(t, StageMicroAdjust, SelectStage(20))
	assert.Equal(t, StageMicroAdjust, SelectStage(79))
	assert.Equal(t, StageCorrelationAdjust, SelectStage(80))
	assert.Equal(t, StageCorrelationAdjust, SelectStage(500))
}

func TestMeanOf(t *testing.T) {
	assert.Equal(t, 0.0, meanOf(nil))
	assert.InDelta(t, 2.0, meanOf(map[string]float64{"a": 1, "b": 2, "c": 3}), 1e-9)
}

func TestOutcomeFeedbackMapping(t *testing.T) {
	assert.Equal(t, model.FeedbackGood, outcomeFeedback(model.OutcomeGood))
	assert.Equal(t, model.FeedbackBadSkills, outcomeFeedback(model.OutcomeBad))
	assert.Equal(t, model.FeedbackMaybe, outcomeFeedback(model.OutcomeNeutral))
}

func TestRecentByOutcomeFiltersAndCapsWindow(t *testing.T) {
	now := time.Now()
	rows := []model.TrainingDatum{
		{Outcome: model.OutcomeGood, CreatedAt: now.Add(-3 * time.Hour)},
		{Outcome: model.OutcomeBad, CreatedAt: now.Add(-2 * time.Hour)},
		{Outcome: model.OutcomeGood, CreatedAt: now.Add(-1 * time.Hour)},
		{Outcome: model.OutcomeGood, CreatedAt: now},
	}
	good := recentByOutcome(rows, model.OutcomeGood, 2)
	assert.Len(t, good, 2)
	assert.True(t, good[0].CreatedAt.After(good[1].CreatedAt))
}

func TestAverageComponent(t *testing.T) {
	rows := []model.TrainingDatum{
		{FeatureSnapshot: model.ScoreBreakdown{SkillOverlap: 0.8}},
		{FeatureSnapshot: model.ScoreBreakdown{SkillOverlap: 0.4}},
	}
	assert.InDelta(t, 0.6, averageComponent(rows, "skill_overlap"), 1e-9)
	assert.Equal(t, 0.0, averageComponent(nil, "skill_overlap"))
}
