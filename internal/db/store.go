package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sds/internal/dialogue"
	"sds/internal/dm"
	"sds/internal/domain"
)

var ErrSessionNotFound = errors.New("dialogue log not found")

// Store persists finished dialogues. It implements dm.Recorder.
type Store struct {
	pool *pgxpool.Pool
}

// DialogueSummary is one row of the dialogue index.
type DialogueSummary struct {
	DialogueID string    `json:"dialogue_id"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	TurnCount  int       `json:"turn_count"`
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS dialogues (
			dialogue_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_dialogues_session_ended ON dialogues(session_id, ended_at);`,
		`CREATE TABLE IF NOT EXISTS dialogue_turns (
			dialogue_id TEXT NOT NULL REFERENCES dialogues(dialogue_id) ON DELETE CASCADE,
			turn_index INT NOT NULL,
			user_act TEXT NOT NULL,
			system_act TEXT NOT NULL,
			PRIMARY KEY (dialogue_id, turn_index)
		);`,
		`CREATE TABLE IF NOT EXISTS dialogue_system_acts (
			dialogue_id TEXT NOT NULL REFERENCES dialogues(dialogue_id) ON DELETE CASCADE,
			act_index INT NOT NULL,
			act TEXT NOT NULL,
			PRIMARY KEY (dialogue_id, act_index)
		);`,
	}

	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// RecordSession writes one finished dialogue in a single transaction.
func (s *Store) RecordSession(ctx context.Context, log dm.SessionLog) error {
	dialogueID := uuid.NewString()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO dialogues(dialogue_id, session_id, started_at, ended_at)
			VALUES ($1, $2, $3, $4)
		`, dialogueID, log.SessionID, log.StartedAt, log.EndedAt)
		if err != nil {
			return err
		}

		for i, turn := range log.Turns {
			_, err := tx.Exec(ctx, `
				INSERT INTO dialogue_turns(dialogue_id, turn_index, user_act, system_act)
				VALUES ($1, $2, $3, $4)
			`, dialogueID, i, turn.User.String(), turn.System.String())
			if err != nil {
				return err
			}
		}

		for i, act := range log.SystemActs {
			_, err := tx.Exec(ctx, `
				INSERT INTO dialogue_system_acts(dialogue_id, act_index, act)
				VALUES ($1, $2, $3)
			`, dialogueID, i, act.String())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ListDialogues returns the recorded dialogues of a session, newest first.
func (s *Store) ListDialogues(ctx context.Context, sessionID string, limit int) ([]DialogueSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT d.dialogue_id, d.session_id, d.started_at, d.ended_at,
			(SELECT COUNT(*) FROM dialogue_turns t WHERE t.dialogue_id = d.dialogue_id)
		FROM dialogues d
		WHERE d.session_id=$1
		ORDER BY d.ended_at DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DialogueSummary, 0, limit)
	for rows.Next() {
		var d DialogueSummary
		if err := rows.Scan(&d.DialogueID, &d.SessionID, &d.StartedAt, &d.EndedAt, &d.TurnCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSessionLog returns the most recently recorded dialogue of a session.
func (s *Store) GetSessionLog(ctx context.Context, sessionID string) (dm.SessionLog, error) {
	var (
		dialogueID string
		log        = dm.SessionLog{SessionID: sessionID}
	)
	err := s.pool.QueryRow(ctx, `
		SELECT dialogue_id, started_at, ended_at
		FROM dialogues
		WHERE session_id=$1
		ORDER BY ended_at DESC
		LIMIT 1
	`, sessionID).Scan(&dialogueID, &log.StartedAt, &log.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return dm.SessionLog{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return dm.SessionLog{}, err
	}

	turns, err := s.loadTurns(ctx, dialogueID)
	if err != nil {
		return dm.SessionLog{}, err
	}
	log.Turns = turns

	acts, err := s.loadSystemActs(ctx, dialogueID)
	if err != nil {
		return dm.SessionLog{}, err
	}
	log.SystemActs = acts
	return log, nil
}

func (s *Store) loadTurns(ctx context.Context, dialogueID string) ([]dialogue.Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_act, system_act
		FROM dialogue_turns
		WHERE dialogue_id=$1
		ORDER BY turn_index ASC
	`, dialogueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []dialogue.Turn
	for rows.Next() {
		var userText, systemText string
		if err := rows.Scan(&userText, &systemText); err != nil {
			return nil, err
		}
		user, err := domain.ParseAct(userText)
		if err != nil {
			return nil, fmt.Errorf("dialogue %s: user act: %w", dialogueID, err)
		}
		system, err := domain.ParseAct(systemText)
		if err != nil {
			return nil, fmt.Errorf("dialogue %s: system act: %w", dialogueID, err)
		}
		turns = append(turns, dialogue.Turn{User: user, System: system})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}

func (s *Store) loadSystemActs(ctx context.Context, dialogueID string) ([]domain.DialogueAct, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT act
		FROM dialogue_system_acts
		WHERE dialogue_id=$1
		ORDER BY act_index ASC
	`, dialogueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var acts []domain.DialogueAct
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		act, err := domain.ParseAct(text)
		if err != nil {
			return nil, fmt.Errorf("dialogue %s: system act: %w", dialogueID, err)
		}
		acts = append(acts, act)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return acts, nil
}
