package main

import (
	"context"
	"sync"

	"sds/internal/domain"
)

const mailboxLimit = 256

// mailbox keeps the outbound traffic of HTTP-driven sessions until a client
// polls it. The oldest envelopes are dropped once a session exceeds the limit.
type mailbox struct {
	mu   sync.Mutex
	data map[string][]domain.Envelope
}

func newMailbox() *mailbox {
	return &mailbox{data: make(map[string][]domain.Envelope)}
}

func (m *mailbox) PublishAct(_ context.Context, sessionID string, msg domain.ActMessage) error {
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	m.put(sessionID, domain.Wrap(msg))
	return nil
}

func (m *mailbox) PublishEvent(_ context.Context, sessionID string, cmd domain.Command) error {
	m.put(sessionID, domain.Wrap(cmd))
	return nil
}

func (m *mailbox) put(sessionID string, env domain.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := append(m.data[sessionID], env)
	if len(q) > mailboxLimit {
		q = q[len(q)-mailboxLimit:]
	}
	m.data[sessionID] = q
}

// Drain returns and clears everything queued for sessionID.
func (m *mailbox) Drain(sessionID string) []domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.data[sessionID]
	delete(m.data, sessionID)
	if q == nil {
		return []domain.Envelope{}
	}
	return q
}

func (m *mailbox) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sessionID)
}
