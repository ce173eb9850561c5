package dm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sds/internal/domain"
)

type actorHarness struct {
	actor    *Actor
	manager  *RuleManager
	cmdIn    chan domain.Command
	cmdOut   chan domain.Command
	hypIn    chan domain.Message
	actOut   chan domain.ActMessage
	recorder *memRecorder
}

func newHarness(t *testing.T) *actorHarness {
	t.Helper()
	h := &actorHarness{
		cmdIn:    make(chan domain.Command, 8),
		cmdOut:   make(chan domain.Command, 32),
		hypIn:    make(chan domain.Message, 8),
		actOut:   make(chan domain.ActMessage, 32),
		recorder: &memRecorder{},
	}
	h.manager = NewRuleManager(Options{SessionID: "test", Recorder: h.recorder})
	h.actor = NewActor(ActorConfig{SessionID: "test", Tick: time.Millisecond, Debug: true}, h.manager, Channels{
		CommandsIn:  h.cmdIn,
		CommandsOut: h.cmdOut,
		Hypotheses:  h.hypIn,
		Acts:        h.actOut,
	}, nil)
	return h
}

func (h *actorHarness) command(name string) {
	h.cmdIn <- domain.NewCommand(name, domain.ComponentHub, domain.ComponentDM)
}

func (h *actorHarness) step(t *testing.T) bool {
	t.Helper()
	stop, err := h.actor.Step(context.Background())
	require.NoError(t, err)
	return stop
}

func drainActs(ch chan domain.ActMessage) []string {
	var out []string
	for {
		select {
		case m := <-ch:
			out = append(out, m.Act.String())
		default:
			return out
		}
	}
}

func drainCommands(ch chan domain.Command) []string {
	var out []string
	for {
		select {
		case c := <-ch:
			out = append(out, c.Name)
		default:
			return out
		}
	}
}

// started returns a harness whose session has been opened with new_dialogue.
func started(t *testing.T) *actorHarness {
	t.Helper()
	h := newHarness(t)
	h.command(domain.CommandNewDialogue)
	require.False(t, h.step(t))
	require.Equal(t, []string{"thankyou()&hello()"}, drainActs(h.actOut))
	require.Equal(t, []string{domain.CommandActGenerated}, drainCommands(h.cmdOut))
	return h
}

func TestActorNewDialogueEmitsGreeting(t *testing.T) {
	started(t)
}

func TestActorHypothesisProducesActAndAck(t *testing.T) {
	h := started(t)
	h.hypIn <- hyp(t, "inform(food=chinese)")
	h.hypIn <- hyp(t, "request(food)")
	require.False(t, h.step(t))

	assert.Equal(t, []string{"reqmore()", "inform(food=chinese)"}, drainActs(h.actOut))
	assert.Equal(t, []string{domain.CommandActGenerated, domain.CommandActGenerated}, drainCommands(h.cmdOut))
}

func TestActorByeSignalsHangup(t *testing.T) {
	h := started(t)
	h.hypIn <- hyp(t, "bye()")
	require.False(t, h.step(t))

	assert.Equal(t, []string{"bye()"}, drainActs(h.actOut))
	assert.Equal(t, []string{domain.CommandActGenerated, domain.CommandHangup}, drainCommands(h.cmdOut))
}

func TestActorFlushDiscardsQueuedHypotheses(t *testing.T) {
	h := started(t)
	h.hypIn <- hyp(t, "inform(food=chinese)")
	require.False(t, h.step(t))
	drainActs(h.actOut)
	drainCommands(h.cmdOut)
	require.Equal(t, "chinese", h.manager.State().Get("food"))

	h.hypIn <- hyp(t, "inform(area=north)")
	h.hypIn <- hyp(t, "bye()")
	h.command(domain.CommandFlush)
	require.False(t, h.step(t))

	assert.Empty(t, drainActs(h.actOut))
	assert.Empty(t, drainCommands(h.cmdOut))
	assert.Empty(t, h.hypIn)
	assert.Equal(t, "unknown", h.manager.State().Get("food"))
	assert.Equal(t, "unknown", h.manager.State().Get("area"))
	assert.Empty(t, h.manager.State().Turns())
}

func TestActorStopPrecedesQueuedHypotheses(t *testing.T) {
	h := started(t)
	h.hypIn <- hyp(t, "inform(food=chinese)")
	h.command(domain.CommandStop)

	assert.True(t, h.step(t))
	assert.Empty(t, drainActs(h.actOut))
	assert.Len(t, h.hypIn, 1)
}

func TestActorConsumesOneCommandPerTick(t *testing.T) {
	h := started(t)
	h.command(domain.CommandEndDialogue)
	h.command(domain.CommandStop)

	assert.False(t, h.step(t))
	assert.Len(t, h.recorder.logs, 1)
	assert.True(t, h.step(t))
}

func TestActorEndDialogueEmitsNothing(t *testing.T) {
	h := started(t)
	h.command(domain.CommandEndDialogue)
	require.False(t, h.step(t))
	assert.Empty(t, drainActs(h.actOut))
	assert.Empty(t, drainCommands(h.cmdOut))
}

func TestActorRejectsUnknownCommand(t *testing.T) {
	h := started(t)
	h.command("reboot")
	h.hypIn <- hyp(t, "hello()")

	stop, err := h.actor.Step(context.Background())
	assert.False(t, stop)
	assert.ErrorIs(t, err, domain.ErrInvalidCommandKind)
	// The hypothesis is still handled in the same tick.
	assert.Empty(t, h.hypIn)
	assert.Equal(t, []string{"reqmore()"}, drainActs(h.actOut))
	assert.Equal(t, []string{domain.CommandActGenerated}, drainCommands(h.cmdOut))
}

func TestActorEndDialogueRecorderFailureKeepsTicking(t *testing.T) {
	h := started(t)
	boom := errors.New("db down")
	h.recorder.err = boom
	h.command(domain.CommandEndDialogue)
	h.hypIn <- hyp(t, "inform(food=chinese)")

	stop, err := h.actor.Step(context.Background())
	assert.False(t, stop)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.hypIn)
	assert.Equal(t, []string{"reqmore()"}, drainActs(h.actOut))
	assert.Equal(t, "chinese", h.manager.State().Get("food"))
}

func TestActorJoinsCommandAndHypothesisErrors(t *testing.T) {
	h := started(t)
	h.command("reboot")
	h.hypIn <- domain.ActMessage{Act: domain.Act(domain.Item(domain.ActBye))}

	_, err := h.actor.Step(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidCommandKind)
	assert.ErrorIs(t, err, domain.ErrUnsupportedInputKind)
}

func TestActorRejectsUnsupportedMessage(t *testing.T) {
	h := started(t)
	h.hypIn <- domain.ActMessage{Act: domain.Act(domain.Item(domain.ActHello))}
	h.hypIn <- hyp(t, "bye()")

	_, err := h.actor.Step(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnsupportedInputKind)
	assert.Empty(t, drainActs(h.actOut))
	assert.Empty(t, h.manager.State().Turns())

	// The rest of the queue is handled on the next tick.
	assert.False(t, h.step(t))
	assert.Equal(t, []string{"bye()"}, drainActs(h.actOut))
}

func TestActorIgnoresCommandOnHypothesisChannel(t *testing.T) {
	h := started(t)
	h.hypIn <- domain.NewCommand(domain.CommandStop, domain.ComponentHub, domain.ComponentDM)
	assert.False(t, h.step(t))
	assert.Empty(t, drainActs(h.actOut))
}

func TestActorRunStopsOnCommand(t *testing.T) {
	h := newHarness(t)
	done := make(chan error, 1)
	go func() { done <- h.actor.Run(context.Background()) }()

	h.command(domain.CommandNewDialogue)
	h.command("bogus")
	h.command(domain.CommandStop)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not stop")
	}
	assert.Equal(t, []string{"thankyou()&hello()"}, drainActs(h.actOut))
	assert.Equal(t, []string{domain.CommandActGenerated, domain.CommandError}, drainCommands(h.cmdOut))
}

func TestActorRunHonoursContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.actor.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("actor ignored cancellation")
	}
}

func TestActorCountsDroppedOutput(t *testing.T) {
	h := newHarness(t)
	h.actor.ch.Acts = nil
	h.command(domain.CommandNewDialogue)
	require.False(t, h.step(t))
	assert.Equal(t, uint64(1), h.actor.Dropped())
}
