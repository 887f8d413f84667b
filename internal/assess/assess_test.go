package assess

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finbuch/matchcore/internal/model"
)

func TestParseAssessmentValidJSON(t *testing.T) {
	a := ParseAssessment(`{"score": 0.7, "recommendation": "beobachten", "explanation": "decent fit"}`)
	assert.Equal(t, 0.7, a.Score)
	assert.Equal(t, model.RecommendBeobachten, a.Recommendation)
}

func TestParseAssessmentStripsMarkdownFence(t *testing.T) {
	raw := "Here is my assessment:\n```json\n{\"score\": 0.9, \"recommendation\": \"vorstellen\", \"explanation\": \"great\"}\n```"
	a := ParseAssessment(raw)
	assert.Equal(t, 0.9, a.Score)
	assert.Equal(t, model.RecommendVorstellen, a.Recommendation)
}

func TestParseAssessmentMalformedDegrades(t *testing.T) {
	a := ParseAssessment("no json here")
	assert.Equal(t, 0.0, a.Score)
	assert.Equal(t, model.RecommendNichtPassend, a.Recommendation)
}

func TestParseAssessmentOutOfRangeDegrades(t *testing.T) {
	a := ParseAssessment(`{"score": 2.0}`)
	assert.Equal(t, model.RecommendNichtPassend, a.Recommendation)
}

func TestStripMarkdownCodeFencesStripsPrefatoryText(t *testing.T) {
	raw := "Sure, here's the JSON:\n{\"score\": 0.5}"
	cleaned := stripMarkdownCodeFences(raw)
	assert.Equal(t, `{"score": 0.5}`, cleaned)
}
