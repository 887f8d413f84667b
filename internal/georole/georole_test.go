package georole

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/finbuch/matchcore/internal/model"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *recordingNotifier) Send(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return nil
}

func TestChanFlagSetIsIdempotentAndObservable(t *testing.T) {
	f := newChanFlag()
	assert.False(t, f.isSet())
	f.set()
	assert.True(t, f.isSet())
	f.set() // must not panic on double-close
	assert.True(t, f.isSet())
}

func TestValueOrZero(t *testing.T) {
	assert.Equal(t, 0.0, valueOrZero(nil))
	v := 12.5
	assert.Equal(t, 12.5, valueOrZero(&v))
}

func TestNotifyPhaseOnlySendsWithinThresholds(t *testing.T) {
	notifier := &recordingNotifier{}
	r := &Runner{notifier: notifier}

	carOK, transitOK, tooLong := 45, 20, 999
	jobID, candID := uuid.New(), uuid.New()

	saved := []savedMatch{
		{match: model.Match{JobID: jobID, CandidateID: candID, DriveTimeCarMin: &carOK, DriveTimeTransitMin: &transitOK}},
		{match: model.Match{JobID: jobID, CandidateID: candID, DriveTimeCarMin: &carOK, DriveTimeTransitMin: &tooLong}},
		{match: model.Match{JobID: jobID, CandidateID: candID, DriveTimeCarMin: &tooLong, DriveTimeTransitMin: &tooLong}},
	}

	r.notifyPhase(context.Background(), saved)

	assert.Len(t, notifier.sent, 1)
	assert.Equal(t, 1, r.Status().Notified)
}

func TestNotifyPhaseRecordsErrorOnSendFailure(t *testing.T) {
	r := &Runner{notifier: failingNotifier{}}
	carOK, transitOK := 10, 20
	saved := []savedMatch{{match: model.Match{DriveTimeCarMin: &carOK, DriveTimeTransitMin: &transitOK}}}

	r.notifyPhase(context.Background(), saved)

	assert.Equal(t, 0, r.Status().Notified)
	assert.Len(t, r.Status().Errors, 1)
}

type failingNotifier struct{}

func (failingNotifier) Send(ctx context.Context, text string) error {
	return errors.New("channel unavailable")
}

func TestNoopNotifierNeverErrors(t *testing.T) {
	assert.NoError(t, NoopNotifier{}.Send(context.Background(), "x"))
}
