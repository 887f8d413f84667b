package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/finbuch/matchcore/internal/model"
)

func TestCategorizeCandidateRecognizedRoleKeyGoesFinance(t *testing.T) {
	c := model.Candidate{RoleKey: model.RoleBookkeeper}
	got := categorizeCandidate(c)
	assert.Equal(t, model.CategoryFinance, got["hotlist_category"])
}

func TestCategorizeCandidateUnknownRoleKeyGoesUncategorized(t *testing.T) {
	c := model.Candidate{RoleKey: model.RoleKey("")}
	got := categorizeCandidate(c)
	assert.Equal(t, "", got["hotlist_category"])
}

func TestLogCountErrorIncrementsErrorsAndLogs(t *testing.T) {
	o := &Orchestrator{logger: slog.Default()}
	res := StepResult{Name: "test"}
	o.logCountError(&res, "boom", uuid.New(), errors.New("failed"))
	assert.Equal(t, 1, res.Errors)
}

func TestStep4PurgeStaleNoOpOnEmptyChangedSet(t *testing.T) {
	o := &Orchestrator{logger: slog.Default()}
	res := o.step4PurgeStale(context.Background(), nil)
	assert.Equal(t, 0, res.Checked)
	assert.Equal(t, 0, res.Affected)
	assert.Equal(t, "", res.Err)
}
