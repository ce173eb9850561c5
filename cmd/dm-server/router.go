package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"sds/internal/db"
	"sds/internal/dm"
	"sds/internal/domain"
	"sds/internal/sessions"
)

// logReader is the read side of the dialogue log store.
type logReader interface {
	Ping(ctx context.Context) error
	GetSessionLog(ctx context.Context, sessionID string) (dm.SessionLog, error)
	ListDialogues(ctx context.Context, sessionID string, limit int) ([]db.DialogueSummary, error)
}

type server struct {
	ctx      context.Context
	registry *sessions.Registry
	mailbox  *mailbox
	bus      sessions.Sink
	logs     logReader
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
}

type commandRequest struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

type turnResponse struct {
	User   domain.DialogueAct `json:"user"`
	System domain.DialogueAct `json:"system"`
}

type logResponse struct {
	SessionID  string               `json:"session_id"`
	StartedAt  time.Time            `json:"started_at"`
	EndedAt    time.Time            `json:"ended_at"`
	Turns      []turnResponse       `json:"turns"`
	SystemActs []domain.DialogueAct `json:"system_acts"`
}

func newServer(ctx context.Context, registry *sessions.Registry, bus sessions.Sink, logs logReader, logger *slog.Logger) *server {
	return &server{
		ctx:      ctx,
		registry: registry,
		mailbox:  newMailbox(),
		bus:      bus,
		logs:     logs,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/ws", s.sessionWS)
		r.Delete("/{sessionID}", s.deleteSession)
		r.Post("/{sessionID}/commands", s.postCommand)
		r.Post("/{sessionID}/hypotheses", s.postHypothesis)
		r.Get("/{sessionID}/messages", s.drainMessages)
		r.Get("/{sessionID}/log", s.getLog)
		r.Get("/{sessionID}/dialogues", s.listDialogues)
	})
	return r
}

func (s *server) healthz(w http.ResponseWriter, req *http.Request) {
	if s.logs != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := s.logs.Ping(ctx); err != nil {
			s.logger.Warn("dialogue log store unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "dialogue log store unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.registry.List()})
}

func (s *server) createSession(w http.ResponseWriter, req *http.Request) {
	var in createSessionRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	session, err := s.registry.Start(s.ctx, sessionID, sessions.Tee(s.mailbox, s.bus))
	if err != nil {
		writeError(w, err)
		return
	}
	go func() {
		<-session.Done()
		s.mailbox.Forget(sessionID)
	}()
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": sessionID})
}

func (s *server) deleteSession(w http.ResponseWriter, req *http.Request) {
	sessionID := chi.URLParam(req, "sessionID")
	if err := s.registry.Stop(req.Context(), sessionID); err != nil {
		writeError(w, err)
		return
	}
	s.mailbox.Forget(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) postCommand(w http.ResponseWriter, req *http.Request) {
	var in commandRequest
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "name is required"})
		return
	}

	cmd := domain.NewCommand(strings.TrimSpace(in.Name), domain.ComponentHub, domain.ComponentDM)
	cmd.Args = in.Args
	if err := s.registry.SendCommand(chi.URLParam(req, "sessionID"), cmd); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": cmd.Name})
}

func (s *server) postHypothesis(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "read body failed"})
		return
	}
	msg, err := domain.DecodeMessage(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if _, ok := msg.(domain.Hypothesis); !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "payload is not a hypothesis: " + string(msg.Kind())})
		return
	}
	if err := s.registry.SendHypothesis(chi.URLParam(req, "sessionID"), msg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": msg.Kind()})
}

func (s *server) drainMessages(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"messages": s.mailbox.Drain(chi.URLParam(req, "sessionID"))})
}

func (s *server) getLog(w http.ResponseWriter, req *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "dialogue log store disabled"})
		return
	}
	log, err := s.logs.GetSessionLog(req.Context(), chi.URLParam(req, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := logResponse{
		SessionID:  log.SessionID,
		StartedAt:  log.StartedAt,
		EndedAt:    log.EndedAt,
		Turns:      make([]turnResponse, 0, len(log.Turns)),
		SystemActs: log.SystemActs,
	}
	for _, t := range log.Turns {
		resp.Turns = append(resp.Turns, turnResponse{User: t.User, System: t.System})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) listDialogues(w http.ResponseWriter, req *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "dialogue log store disabled"})
		return
	}
	list, err := s.logs.ListDialogues(req.Context(), chi.URLParam(req, "sessionID"), 20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dialogues": list})
}

// wsSink writes outbound session traffic to one websocket connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) write(m domain.Message) error {
	body, err := domain.EncodeMessage(m)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, body)
}

func (s *wsSink) PublishAct(_ context.Context, sessionID string, msg domain.ActMessage) error {
	if msg.SessionID == "" {
		msg.SessionID = sessionID
	}
	return s.write(msg)
}

func (s *wsSink) PublishEvent(_ context.Context, _ string, cmd domain.Command) error {
	return s.write(cmd)
}

// sessionWS runs one session for the lifetime of a websocket connection.
// Inbound text frames are envelopes: commands go to the command channel,
// everything else to the hypothesis channel.
func (s *server) sessionWS(w http.ResponseWriter, req *http.Request) {
	sessionID := strings.TrimSpace(req.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ws, err := s.upgrader.Upgrade(w, req, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sink := &wsSink{conn: ws}

	session, err := s.registry.Start(s.ctx, sessionID, sessions.Tee(sink, s.bus))
	if err != nil {
		_ = sink.write(domain.Command{Name: domain.CommandError, Source: domain.ComponentHub, Args: map[string]string{"error": err.Error()}})
		_ = ws.Close()
		return
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.registry.Stop(stopCtx, sessionID); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
			s.logger.Warn("stop websocket session failed", "session_id", sessionID, "error", err)
		}
		_ = ws.Close()
	}()

	go func() {
		<-session.Done()
		_ = ws.Close()
	}()

	s.logger.Info("websocket session opened", "session_id", sessionID)
	for {
		msgType, payload, err := ws.ReadMessage()
		if err != nil {
			s.logger.Info("websocket session closed", "session_id", sessionID)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		msg, err := domain.DecodeMessage(payload)
		if err != nil {
			s.logger.Warn("invalid websocket payload", "session_id", sessionID, "error", err)
			continue
		}
		if cmd, ok := msg.(domain.Command); ok {
			err = s.registry.SendCommand(sessionID, cmd)
		} else {
			err = s.registry.SendHypothesis(sessionID, msg)
		}
		if err != nil {
			s.logger.Warn("route websocket message failed", "session_id", sessionID, "kind", msg.Kind(), "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound), errors.Is(err, db.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sessions.ErrSessionExists):
		status = http.StatusConflict
	case errors.Is(err, sessions.ErrInputFull):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrUnsupportedInputKind), errors.Is(err, domain.ErrInvalidCommandKind):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
