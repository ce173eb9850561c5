package dm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sds/internal/domain"
)

func hyp(t *testing.T, s string) domain.SingleAct {
	t.Helper()
	act, err := domain.ParseAct(s)
	require.NoError(t, err)
	return domain.SingleAct{Act: act}
}

type memRecorder struct {
	logs []SessionLog
	err  error
}

func (r *memRecorder) RecordSession(_ context.Context, log SessionLog) error {
	if r.err != nil {
		return r.err
	}
	r.logs = append(r.logs, log)
	return nil
}

func newGreetedManager(t *testing.T, opts Options) *RuleManager {
	t.Helper()
	m := NewRuleManager(opts)
	m.NewSession()
	act, err := m.ProduceAct()
	require.NoError(t, err)
	require.Equal(t, "thankyou()&hello()", act.String())
	return m
}

func TestNewManagerFactory(t *testing.T) {
	for _, kind := range []string{"rule", "dummy", " Rule "} {
		m, err := NewManager(kind, Options{})
		require.NoError(t, err, kind)
		assert.IsType(t, &RuleManager{}, m)
	}

	_, err := NewManager("statistical", Options{})
	assert.ErrorIs(t, err, ErrUnknownManager)
	assert.False(t, KnownKind("statistical"))
}

func TestOperationsBeforeNewSession(t *testing.T) {
	m := NewRuleManager(Options{})
	assert.ErrorIs(t, m.FeedHypothesis(hyp(t, "hello()")), ErrNoSession)
	_, err := m.ProduceAct()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NoError(t, m.EndSession(context.Background()))
}

func TestScenarioGreeting(t *testing.T) {
	newGreetedManager(t, Options{})
}

func TestScenarioRequestedSlot(t *testing.T) {
	m := newGreetedManager(t, Options{})
	require.NoError(t, m.FeedHypothesis(hyp(t, `inform(food="chinese")`)))
	require.NoError(t, m.FeedHypothesis(hyp(t, "request(area)")))

	act, err := m.ProduceAct()
	require.NoError(t, err)
	assert.Equal(t, "inform(area=unknown)", act.String())
	assert.Equal(t, "chinese", m.State().Get("food"))
}

func TestScenarioBye(t *testing.T) {
	m := newGreetedManager(t, Options{})
	require.NoError(t, m.FeedHypothesis(hyp(t, "bye()")))
	act, err := m.ProduceAct()
	require.NoError(t, err)
	assert.Equal(t, "bye()", act.String())
}

func TestLastSystemActDrivesContextResolution(t *testing.T) {
	m := newGreetedManager(t, Options{})
	require.NoError(t, m.FeedHypothesis(hyp(t, "inform(food=thai)&request(area)")))
	_, err := m.ProduceAct()
	require.NoError(t, err)

	// The system just informed about area, so the request is satisfied.
	require.NoError(t, m.FeedHypothesis(hyp(t, "null()")))
	act, err := m.ProduceAct()
	require.NoError(t, err)
	assert.Equal(t, "reqmore()", act.String())
	assert.Equal(t, "system-informed", m.State().Get("rh_area"))
}

func TestEndSessionRecordsDialogue(t *testing.T) {
	rec := &memRecorder{}
	m := newGreetedManager(t, Options{SessionID: "s-1", Recorder: rec})
	require.NoError(t, m.FeedHypothesis(hyp(t, "bye()")))
	_, err := m.ProduceAct()
	require.NoError(t, err)

	require.NoError(t, m.EndSession(context.Background()))
	require.Len(t, rec.logs, 1)
	log := rec.logs[0]
	assert.Equal(t, "s-1", log.SessionID)
	require.Len(t, log.Turns, 1)
	assert.Equal(t, "bye()", log.Turns[0].User.String())
	assert.Equal(t, "thankyou()&hello()", log.Turns[0].System.String())
	require.Len(t, log.SystemActs, 2)
	assert.False(t, log.EndedAt.Before(log.StartedAt))

	// EndSession does not mutate the state.
	assert.Len(t, m.State().Turns(), 1)
}

func TestEndSessionWrapsRecorderError(t *testing.T) {
	boom := errors.New("boom")
	m := newGreetedManager(t, Options{SessionID: "s-2", Recorder: &memRecorder{err: boom}})
	err := m.EndSession(context.Background())
	assert.ErrorIs(t, err, boom)
}
