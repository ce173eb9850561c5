package mqtt

import (
	"context"
	"log/slog"

	paho "github.com/eclipse/paho.mqtt.golang"

	"sds/internal/domain"
)

// Client is the peer side of a hub session: it sends commands and
// hypotheses for one session and receives that session's acts and events.
type Client struct {
	cfg       HubConfig
	sessionID string
	client    paho.Client
	logger    *slog.Logger

	acts   chan domain.ActMessage
	events chan domain.Command
}

func NewClient(cfg HubConfig, sessionID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		sessionID: sessionID,
		logger:    logger,
		acts:      make(chan domain.ActMessage, 16),
		events:    make(chan domain.Command, 16),
	}
}

func (c *Client) SessionID() string { return c.sessionID }

// Acts delivers the system acts published for the session.
func (c *Client) Acts() <-chan domain.ActMessage { return c.acts }

// Events delivers the control commands published for the session.
func (c *Client) Events() <-chan domain.Command { return c.events }

func (c *Client) Start(ctx context.Context) error {
	client, err := connect(c.cfg, c.logger)
	if err != nil {
		return err
	}
	c.client = client

	if token := c.client.Subscribe(TopicAct(c.cfg.TopicPrefix, c.sessionID), 1, c.handleAct); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := c.client.Subscribe(TopicEvent(c.cfg.TopicPrefix, c.sessionID), 1, c.handleEvent); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	go func() {
		<-ctx.Done()
		c.client.Disconnect(100)
	}()
	return nil
}

func (c *Client) SendCommand(ctx context.Context, cmd domain.Command) error {
	if cmd.Source == "" {
		cmd.Source = domain.ComponentHub
	}
	if cmd.Target == "" {
		cmd.Target = domain.ComponentDM
	}
	return publishMessage(ctx, c.client, TopicCommand(c.cfg.TopicPrefix, c.sessionID), cmd)
}

func (c *Client) SendHypothesis(ctx context.Context, h domain.Hypothesis) error {
	return publishMessage(ctx, c.client, TopicHypothesis(c.cfg.TopicPrefix, c.sessionID), h)
}

func (c *Client) handleAct(_ paho.Client, msg paho.Message) {
	decoded, err := domain.DecodeMessage(msg.Payload())
	if err != nil {
		c.logger.Warn("invalid act payload", "topic", msg.Topic(), "error", err)
		return
	}
	act, ok := decoded.(domain.ActMessage)
	if !ok {
		c.logger.Warn("act topic carries non-act", "topic", msg.Topic(), "kind", decoded.Kind())
		return
	}
	select {
	case c.acts <- act:
	default:
		c.logger.Warn("act dropped", "session_id", c.sessionID)
	}
}

func (c *Client) handleEvent(_ paho.Client, msg paho.Message) {
	decoded, err := domain.DecodeMessage(msg.Payload())
	if err != nil {
		c.logger.Warn("invalid event payload", "topic", msg.Topic(), "error", err)
		return
	}
	cmd, ok := decoded.(domain.Command)
	if !ok {
		c.logger.Warn("event topic carries non-command", "topic", msg.Topic(), "kind", decoded.Kind())
		return
	}
	select {
	case c.events <- cmd:
	default:
		c.logger.Warn("event dropped", "session_id", c.sessionID)
	}
}
