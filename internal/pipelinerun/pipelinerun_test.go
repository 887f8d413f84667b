package pipelinerun

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryStartOnlyOneWinner(t *testing.T) {
	g := New()
	assert.True(t, g.TryStart())
	assert.False(t, g.TryStart())
	assert.True(t, g.IsRunning())
}

func TestFinishReleasesSlot(t *testing.T) {
	g := New()
	require := assert.New(t)
	require.True(g.TryStart())
	g.Finish(5, 1, errors.New("boom"))
	require.False(g.IsRunning())

	status := g.Status()
	require.False(status.Running)
	require.Equal(5, status.Processed)
	require.Equal(1, status.Errored)
	require.Equal("boom", status.LastError)

	assert.True(t, g.TryStart())
}
