package dm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"sds/internal/domain"
)

const (
	defaultTick    = 50 * time.Millisecond
	publishTimeout = 100 * time.Millisecond
)

// Channels connects an actor to the rest of the pipeline. The command pipe
// is duplex: control commands come in on CommandsIn, acknowledgements and
// signals go out on CommandsOut.
type Channels struct {
	CommandsIn  <-chan domain.Command
	CommandsOut chan<- domain.Command
	Hypotheses  <-chan domain.Message
	Acts        chan<- domain.ActMessage
}

// ActorConfig configures an actor.
type ActorConfig struct {
	SessionID string
	// Tick is the sleep between loop iterations and bounds reaction latency.
	Tick  time.Duration
	Debug bool
}

// Actor runs one dialogue session as a cooperative polling loop. All state
// is touched from the loop only, so it needs no locking.
type Actor struct {
	sessionID string
	tick      time.Duration
	debug     bool
	manager   Manager
	ch        Channels
	logger    *slog.Logger

	dropped atomic.Uint64
}

func NewActor(cfg ActorConfig, manager Manager, ch Channels, logger *slog.Logger) *Actor {
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		sessionID: cfg.SessionID,
		tick:      cfg.Tick,
		debug:     cfg.Debug,
		manager:   manager,
		ch:        ch,
		logger:    logger.With("session_id", cfg.SessionID),
	}
}

// Run loops until a stop command arrives or ctx is cancelled. Tick errors
// are logged and reported upward; they do not end the loop.
func (a *Actor) Run(ctx context.Context) error {
	timer := time.NewTimer(a.tick)
	defer timer.Stop()
	a.logger.Info("dialogue manager started", "tick", a.tick)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		stop, err := a.Step(ctx)
		if err != nil {
			a.logger.Error("dialogue manager tick failed", "error", err)
			a.signal(ctx, domain.Command{
				Name:   domain.CommandError,
				Source: domain.ComponentDM,
				Target: domain.ComponentHub,
				Args:   map[string]string{"error": err.Error()},
			})
		}
		if stop {
			a.logger.Info("dialogue manager stopped")
			return nil
		}
		timer.Reset(a.tick)
	}
}

// Step runs one tick without sleeping: at most one pending command, then
// every queued hypothesis. A failed command does not hold back the
// hypotheses; both errors are joined.
func (a *Actor) Step(ctx context.Context) (bool, error) {
	stop, cmdErr := a.processPendingCommand(ctx)
	if stop {
		return true, cmdErr
	}
	return false, errors.Join(cmdErr, a.processHypotheses(ctx))
}

// Dropped returns the number of outbound messages dropped because nobody
// was reading.
func (a *Actor) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *Actor) processPendingCommand(ctx context.Context) (bool, error) {
	var cmd domain.Command
	select {
	case c, ok := <-a.ch.CommandsIn:
		if !ok {
			return true, nil
		}
		cmd = c
	default:
		return false, nil
	}
	if a.debug {
		a.logger.Debug("command received", "command", cmd.String())
	}

	switch cmd.Name {
	case domain.CommandStop:
		return true, nil
	case domain.CommandFlush:
		n := a.discardHypotheses()
		a.manager.NewSession()
		a.logger.Info("input flushed", "discarded", n)
		return false, nil
	case domain.CommandNewDialogue:
		a.manager.NewSession()
		act, err := a.manager.ProduceAct()
		if err != nil {
			return false, err
		}
		a.emit(ctx, act)
		return false, nil
	case domain.CommandEndDialogue:
		return false, a.manager.EndSession(ctx)
	default:
		return false, fmt.Errorf("%w: %q", domain.ErrInvalidCommandKind, cmd.Name)
	}
}

func (a *Actor) discardHypotheses() int {
	n := 0
	for {
		select {
		case _, ok := <-a.ch.Hypotheses:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

func (a *Actor) processHypotheses(ctx context.Context) error {
	for {
		var msg domain.Message
		select {
		case m, ok := <-a.ch.Hypotheses:
			if !ok {
				return nil
			}
			msg = m
		default:
			return nil
		}

		switch m := msg.(type) {
		case domain.Hypothesis:
			if err := a.manager.FeedHypothesis(m); err != nil {
				return err
			}
			act, err := a.manager.ProduceAct()
			if err != nil {
				return err
			}
			a.emit(ctx, act)
			if act.Has(domain.ActBye) {
				a.signal(ctx, domain.NewCommand(domain.CommandHangup, domain.ComponentDM, domain.ComponentHub))
			}
		case domain.Command:
			a.logger.Info("command on hypothesis channel ignored", "command", m.String())
		default:
			return fmt.Errorf("%w: %T on hypothesis channel", domain.ErrUnsupportedInputKind, msg)
		}
	}
}

// emit sends the act downstream followed by the dm_da_generated
// acknowledgement.
func (a *Actor) emit(ctx context.Context, act domain.DialogueAct) {
	if a.debug {
		a.logger.Debug("dm output", "act", act.String())
	}
	out := domain.ActMessage{SessionID: a.sessionID, Act: act}
	if !publish(ctx, a.ch.Acts, out) {
		a.dropped.Add(1)
		a.logger.Warn("act dropped", "act", act.String())
	}
	a.signal(ctx, domain.NewCommand(domain.CommandActGenerated, domain.ComponentDM, domain.ComponentHub))
}

func (a *Actor) signal(ctx context.Context, cmd domain.Command) {
	if !publish(ctx, a.ch.CommandsOut, cmd) {
		a.dropped.Add(1)
		a.logger.Warn("command dropped", "command", cmd.Name)
	}
}

// publish tries a send, then waits at most publishTimeout.
func publish[T any](ctx context.Context, ch chan<- T, v T) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- v:
		return true
	default:
	}
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case ch <- v:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
