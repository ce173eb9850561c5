package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"sds/internal/domain"
	"sds/internal/sessions"
)

const publishWait = 5 * time.Second

type HubConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// SessionRouter is the part of the session registry the hub drives.
type SessionRouter interface {
	Start(ctx context.Context, sessionID string, sink sessions.Sink) (*sessions.Session, error)
	SendCommand(sessionID string, cmd domain.Command) error
	SendHypothesis(sessionID string, msg domain.Message) error
}

// Hub bridges broker topics and running sessions. Commands and hypotheses
// arrive per session; acts and events are published back per session.
type Hub struct {
	cfg    HubConfig
	client paho.Client
	router SessionRouter
	logger *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

func NewHub(cfg HubConfig, router SessionRouter, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:    cfg,
		router: router,
		logger: logger,
		ctx:    context.Background(),
	}
}

func connect(cfg HubConfig, logger *slog.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error("mqtt connection lost", "error", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

// Start connects, subscribes and keeps the connection until ctx ends.
// Sessions opened by the hub live under ctx as well.
func (h *Hub) Start(ctx context.Context) error {
	client, err := connect(h.cfg, h.logger)
	if err != nil {
		return err
	}
	h.client = client

	h.mu.Lock()
	h.ctx = ctx
	h.mu.Unlock()

	if err := h.subscribeHandlers(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		h.client.Disconnect(100)
	}()

	return nil
}

func (h *Hub) subscribeHandlers() error {
	if token := h.client.Subscribe(TopicSessionCommands(h.cfg.TopicPrefix), 1, h.handleCommand); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := h.client.Subscribe(TopicSessionHypotheses(h.cfg.TopicPrefix), 1, h.handleHypothesis); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (h *Hub) runContext() context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx
}

func (h *Hub) handleCommand(_ paho.Client, msg paho.Message) {
	sessionID, err := ParseSessionID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid command topic", "topic", msg.Topic(), "error", err)
		return
	}

	decoded, err := domain.DecodeMessage(msg.Payload())
	if err != nil {
		h.logger.Warn("invalid command payload", "session_id", sessionID, "error", err)
		return
	}
	cmd, ok := decoded.(domain.Command)
	if !ok {
		h.logger.Warn("command topic carries non-command", "session_id", sessionID, "kind", decoded.Kind())
		return
	}

	err = h.router.SendCommand(sessionID, cmd)
	if errors.Is(err, sessions.ErrSessionNotFound) && cmd.Name == domain.CommandNewDialogue {
		if _, err = h.router.Start(h.runContext(), sessionID, h); err != nil {
			h.logger.Warn("start session failed", "session_id", sessionID, "error", err)
			return
		}
		err = h.router.SendCommand(sessionID, cmd)
	}
	if err != nil {
		h.logger.Warn("route command failed", "session_id", sessionID, "command", cmd.Name, "error", err)
		return
	}
	h.logger.Debug("command routed", "session_id", sessionID, "command", cmd.String())
}

func (h *Hub) handleHypothesis(_ paho.Client, msg paho.Message) {
	sessionID, err := ParseSessionID(msg.Topic(), h.cfg.TopicPrefix)
	if err != nil {
		h.logger.Warn("skip invalid hypothesis topic", "topic", msg.Topic(), "error", err)
		return
	}

	decoded, err := domain.DecodeMessage(msg.Payload())
	if err != nil {
		h.logger.Warn("invalid hypothesis payload", "session_id", sessionID, "error", err)
		return
	}
	if err := h.router.SendHypothesis(sessionID, decoded); err != nil {
		h.logger.Warn("route hypothesis failed", "session_id", sessionID, "kind", decoded.Kind(), "error", err)
	}
}

// PublishAct implements sessions.Sink.
func (h *Hub) PublishAct(ctx context.Context, sessionID string, msg domain.ActMessage) error {
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	return publishMessage(ctx, h.client, TopicAct(h.cfg.TopicPrefix, sessionID), msg)
}

// PublishEvent implements sessions.Sink.
func (h *Hub) PublishEvent(ctx context.Context, sessionID string, cmd domain.Command) error {
	return publishMessage(ctx, h.client, TopicEvent(h.cfg.TopicPrefix, sessionID), cmd)
}

func publishMessage(ctx context.Context, client paho.Client, topic string, m domain.Message) error {
	if client == nil {
		return fmt.Errorf("mqtt client not connected")
	}
	body, err := domain.EncodeMessage(m)
	if err != nil {
		return err
	}

	token := client.Publish(topic, 1, false, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishWait):
		return fmt.Errorf("publish %s: timeout", topic)
	}
}
