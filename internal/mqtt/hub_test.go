package mqtt

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sds/internal/domain"
	"sds/internal/sessions"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeRouter struct {
	running    map[string]bool
	started    []string
	commands   []string
	hypotheses []domain.Message
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{running: map[string]bool{}}
}

func (r *fakeRouter) Start(_ context.Context, id string, _ sessions.Sink) (*sessions.Session, error) {
	r.running[id] = true
	r.started = append(r.started, id)
	return nil, nil
}

func (r *fakeRouter) SendCommand(id string, cmd domain.Command) error {
	if !r.running[id] {
		return fmt.Errorf("%w: %s", sessions.ErrSessionNotFound, id)
	}
	r.commands = append(r.commands, id+":"+cmd.Name)
	return nil
}

func (r *fakeRouter) SendHypothesis(id string, msg domain.Message) error {
	if !r.running[id] {
		return fmt.Errorf("%w: %s", sessions.ErrSessionNotFound, id)
	}
	r.hypotheses = append(r.hypotheses, msg)
	return nil
}

func encode(t *testing.T, m domain.Message) []byte {
	t.Helper()
	b, err := domain.EncodeMessage(m)
	require.NoError(t, err)
	return b
}

func TestHubNewDialogueStartsSession(t *testing.T) {
	router := newFakeRouter()
	h := NewHub(HubConfig{TopicPrefix: "sds"}, router, nil)

	h.handleCommand(nil, fakeMessage{
		topic:   TopicCommand("sds", "s1"),
		payload: encode(t, domain.Command{Name: domain.CommandNewDialogue}),
	})

	assert.Equal(t, []string{"s1"}, router.started)
	assert.Equal(t, []string{"s1:new_dialogue"}, router.commands)
}

func TestHubOtherCommandsNeedRunningSession(t *testing.T) {
	router := newFakeRouter()
	h := NewHub(HubConfig{TopicPrefix: "sds"}, router, nil)

	h.handleCommand(nil, fakeMessage{
		topic:   TopicCommand("sds", "s1"),
		payload: encode(t, domain.Command{Name: domain.CommandFlush}),
	})

	assert.Empty(t, router.started)
	assert.Empty(t, router.commands)
}

func TestHubRoutesHypotheses(t *testing.T) {
	router := newFakeRouter()
	router.running["s1"] = true
	h := NewHub(HubConfig{TopicPrefix: "sds"}, router, nil)

	act, err := domain.ParseAct("inform(food=chinese)")
	require.NoError(t, err)
	h.handleHypothesis(nil, fakeMessage{
		topic:   TopicHypothesis("sds", "s1"),
		payload: encode(t, domain.SingleAct{Act: act}),
	})
	h.handleHypothesis(nil, fakeMessage{topic: TopicHypothesis("sds", "s1"), payload: []byte(`{"type":"audio"}`)})
	h.handleHypothesis(nil, fakeMessage{topic: "other/session/s1/hypothesis", payload: encode(t, domain.SingleAct{Act: act})})

	require.Len(t, router.hypotheses, 1)
	assert.Equal(t, domain.SingleAct{Act: act}, router.hypotheses[0])
}

func TestHubIgnoresNonCommandOnCommandTopic(t *testing.T) {
	router := newFakeRouter()
	router.running["s1"] = true
	h := NewHub(HubConfig{TopicPrefix: "sds"}, router, nil)

	h.handleCommand(nil, fakeMessage{
		topic:   TopicCommand("sds", "s1"),
		payload: encode(t, domain.SingleAct{}),
	})
	assert.Empty(t, router.commands)
}

func TestHubPublishWithoutConnection(t *testing.T) {
	h := NewHub(HubConfig{TopicPrefix: "sds"}, newFakeRouter(), nil)
	err := h.PublishEvent(context.Background(), "s1", domain.NewCommand(domain.CommandHangup, domain.ComponentDM, domain.ComponentHub))
	assert.Error(t, err)
}
