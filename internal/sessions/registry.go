// Package sessions hosts running dialogue manager actors, one goroutine and
// one set of channels per session.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"sds/internal/dm"
	"sds/internal/domain"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrInputFull       = errors.New("session input queue is full")
)

// Sink receives the outbound traffic of a session.
type Sink interface {
	PublishAct(ctx context.Context, sessionID string, msg domain.ActMessage) error
	PublishEvent(ctx context.Context, sessionID string, cmd domain.Command) error
}

// Config configures a Registry.
type Config struct {
	ManagerType string
	Tick        time.Duration
	BufferSize  int
	Debug       bool
	Recorder    dm.Recorder
}

// Info describes a running session.
type Info struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Sink      string    `json:"sink"`
}

// Session is the orchestrator-side handle of one running actor.
type Session struct {
	id        string
	startedAt time.Time
	sinkName  string

	commands   chan domain.Command
	events     chan domain.Command
	hypotheses chan domain.Message
	acts       chan domain.ActMessage

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (s *Session) ID() string { return s.id }

// Done is closed once the actor and its output pump have exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the actor's exit error after Done is closed.
func (s *Session) Err() error { return s.err }

type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	data map[string]*Session
}

func NewRegistry(cfg Config, logger *slog.Logger) (*Registry, error) {
	if cfg.ManagerType == "" {
		cfg.ManagerType = "rule"
	}
	if !dm.KnownKind(cfg.ManagerType) {
		return nil, fmt.Errorf("%w: %q", dm.ErrUnknownManager, cfg.ManagerType)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:    cfg,
		logger: logger,
		data:   make(map[string]*Session),
	}, nil
}

// Start creates the channels and the actor for sessionID and runs it until
// it is stopped or ctx ends. Outbound traffic is forwarded to sink.
func (r *Registry) Start(ctx context.Context, sessionID string, sink Sink) (*Session, error) {
	manager, err := dm.NewManager(r.cfg.ManagerType, dm.Options{
		SessionID: sessionID,
		Recorder:  r.cfg.Recorder,
		Logger:    r.logger,
	})
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:         sessionID,
		startedAt:  time.Now().UTC(),
		sinkName:   fmt.Sprintf("%T", sink),
		commands:   make(chan domain.Command, r.cfg.BufferSize),
		events:     make(chan domain.Command, r.cfg.BufferSize),
		hypotheses: make(chan domain.Message, r.cfg.BufferSize),
		acts:       make(chan domain.ActMessage, r.cfg.BufferSize),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	r.mu.Lock()
	if _, ok := r.data[sessionID]; ok {
		r.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	r.data[sessionID] = s
	r.mu.Unlock()

	actor := dm.NewActor(dm.ActorConfig{
		SessionID: sessionID,
		Tick:      r.cfg.Tick,
		Debug:     r.cfg.Debug,
	}, manager, dm.Channels{
		CommandsIn:  s.commands,
		CommandsOut: s.events,
		Hypotheses:  s.hypotheses,
		Acts:        s.acts,
	}, r.logger)

	actorDone := make(chan struct{})
	go func() {
		defer close(actorDone)
		s.err = actor.Run(runCtx)
	}()
	go func() {
		defer close(s.done)
		r.pump(runCtx, s, sink, actorDone)
		r.remove(s)
		cancel()
	}()

	r.logger.Info("session started", "session_id", sessionID, "sink", s.sinkName)
	return s, nil
}

// pump forwards acts and events to the sink until the actor exits, then
// flushes whatever is still buffered. The actor queues an act before its
// acknowledgement, so buffered acts are flushed ahead of every event.
func (r *Registry) pump(ctx context.Context, s *Session, sink Sink, actorDone <-chan struct{}) {
	for {
		select {
		case msg := <-s.acts:
			r.forwardAct(ctx, s, sink, msg)
		case cmd := <-s.events:
			r.flushActs(ctx, s, sink)
			r.forwardEvent(ctx, s, sink, cmd)
		case <-actorDone:
			ctx = context.WithoutCancel(ctx)
			for {
				r.flushActs(ctx, s, sink)
				select {
				case cmd := <-s.events:
					r.forwardEvent(ctx, s, sink, cmd)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) flushActs(ctx context.Context, s *Session, sink Sink) {
	for {
		select {
		case msg := <-s.acts:
			r.forwardAct(ctx, s, sink, msg)
		default:
			return
		}
	}
}

func (r *Registry) forwardAct(ctx context.Context, s *Session, sink Sink, msg domain.ActMessage) {
	if sink == nil {
		return
	}
	if err := sink.PublishAct(ctx, s.id, msg); err != nil {
		r.logger.Warn("publish act failed", "session_id", s.id, "error", err)
	}
}

func (r *Registry) forwardEvent(ctx context.Context, s *Session, sink Sink, cmd domain.Command) {
	if sink == nil {
		return
	}
	if err := sink.PublishEvent(ctx, s.id, cmd); err != nil {
		r.logger.Warn("publish event failed", "session_id", s.id, "event", cmd.Name, "error", err)
	}
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.data[s.id]; ok && cur == s {
		delete(r.data, s.id)
	}
	r.logger.Info("session closed", "session_id", s.id)
}

func (r *Registry) Get(sessionID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[sessionID]
	return s, ok
}

// SendCommand queues a control command for the session's actor.
func (r *Registry) SendCommand(sessionID string, cmd domain.Command) error {
	s, ok := r.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if cmd.Source == "" {
		cmd.Source = domain.ComponentHub
	}
	if cmd.Target == "" {
		cmd.Target = domain.ComponentDM
	}
	select {
	case s.commands <- cmd:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInputFull, sessionID)
	}
}

// SendHypothesis queues one message on the session's hypothesis channel.
func (r *Registry) SendHypothesis(sessionID string, msg domain.Message) error {
	s, ok := r.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	select {
	case s.hypotheses <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInputFull, sessionID)
	}
}

// Stop sends stop to the actor and waits for it to exit.
func (r *Registry) Stop(ctx context.Context, sessionID string) error {
	s, ok := r.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err := r.SendCommand(sessionID, domain.NewCommand(domain.CommandStop, domain.ComponentHub, domain.ComponentDM)); err != nil {
		s.cancel()
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// StopAll stops every running session.
func (r *Registry) StopAll(ctx context.Context) {
	for _, info := range r.List() {
		if err := r.Stop(ctx, info.SessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
			r.logger.Warn("stop session failed", "session_id", info.SessionID, "error", err)
		}
	}
}

// List returns the running sessions ordered by start time.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.data))
	for _, s := range r.data {
		out = append(out, Info{SessionID: s.id, StartedAt: s.startedAt, Sink: s.sinkName})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
