package dm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sds/internal/dialogue"
	"sds/internal/domain"
	"sds/internal/policy"
)

var (
	// ErrUnknownManager is returned by NewManager for an unregistered kind.
	ErrUnknownManager = errors.New("unknown dialogue manager type")
	// ErrNoSession is returned when a session operation runs before NewSession.
	ErrNoSession = errors.New("no active dialogue session")
)

// Manager is the session lifecycle seen by the actor.
type Manager interface {
	// NewSession discards any previous state and starts a fresh dialogue.
	NewSession()
	// FeedHypothesis folds one user turn into the dialogue state.
	FeedHypothesis(h domain.Hypothesis) error
	// ProduceAct decides the next system act.
	ProduceAct() (domain.DialogueAct, error)
	// EndSession finalizes the dialogue. It does not change the state.
	EndSession(ctx context.Context) error
}

// Recorder receives the dialogue log when a session ends.
type Recorder interface {
	RecordSession(ctx context.Context, log SessionLog) error
}

// SessionLog is the post-processed record of one dialogue.
type SessionLog struct {
	SessionID  string
	StartedAt  time.Time
	EndedAt    time.Time
	Turns      []dialogue.Turn
	SystemActs []domain.DialogueAct
}

// Options configures a manager.
type Options struct {
	SessionID string
	Recorder  Recorder
	Logger    *slog.Logger
}

// NewManager builds the manager registered under kind.
func NewManager(kind string, opts Options) (Manager, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "rule", "dummy":
		return NewRuleManager(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownManager, kind)
	}
}

// KnownKind reports whether NewManager accepts kind.
func KnownKind(kind string) bool {
	_, err := NewManager(kind, Options{})
	return err == nil
}

// RuleManager pairs a dialogue.State with a rule-based policy.
type RuleManager struct {
	sessionID string
	recorder  Recorder
	logger    *slog.Logger

	state     *dialogue.State
	policy    *policy.Policy
	lastAct   domain.DialogueAct
	startedAt time.Time
}

func NewRuleManager(opts Options) *RuleManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleManager{
		sessionID: opts.SessionID,
		recorder:  opts.Recorder,
		logger:    logger,
	}
}

func (m *RuleManager) NewSession() {
	m.state = dialogue.NewState()
	m.policy = policy.New()
	m.lastAct = nil
	m.startedAt = time.Now().UTC()
}

func (m *RuleManager) FeedHypothesis(h domain.Hypothesis) error {
	if m.state == nil {
		return ErrNoSession
	}
	return m.state.Update(h, m.lastAct)
}

func (m *RuleManager) ProduceAct() (domain.DialogueAct, error) {
	if m.state == nil {
		return nil, ErrNoSession
	}
	m.lastAct = m.policy.Decide(m.state)
	return m.lastAct.Clone(), nil
}

func (m *RuleManager) EndSession(ctx context.Context) error {
	if m.state == nil {
		return nil
	}
	if m.recorder == nil {
		return nil
	}
	log := SessionLog{
		SessionID:  m.sessionID,
		StartedAt:  m.startedAt,
		EndedAt:    time.Now().UTC(),
		Turns:      m.state.Turns(),
		SystemActs: m.policy.GeneratedActs(),
	}
	if err := m.recorder.RecordSession(ctx, log); err != nil {
		return fmt.Errorf("record session %s: %w", m.sessionID, err)
	}
	m.logger.Info("dialogue recorded", "session_id", m.sessionID, "turns", len(log.Turns), "system_acts", len(log.SystemActs))
	return nil
}

// State exposes the current dialogue state, nil before NewSession.
func (m *RuleManager) State() *dialogue.State {
	return m.state
}
