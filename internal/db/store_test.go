package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"sds/internal/dialogue"
	"sds/internal/dm"
	"sds/internal/domain"
)

var _ dm.Recorder = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DM_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("DM_TEST_DB_DSN not set")
	}
	ctx := context.Background()
	store, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func mustAct(t *testing.T, s string) domain.DialogueAct {
	t.Helper()
	act, err := domain.ParseAct(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return act
}

func TestRecordAndLoadSessionLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sessionID := "test-" + uuid.NewString()

	started := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	in := dm.SessionLog{
		SessionID: sessionID,
		StartedAt: started,
		EndedAt:   started.Add(30 * time.Second),
		Turns: []dialogue.Turn{
			{User: mustAct(t, "request(food)"), System: mustAct(t, "thankyou()&hello()")},
			{User: mustAct(t, `inform(name="Golden Dragon")`), System: mustAct(t, "inform(food=chinese)")},
		},
		SystemActs: []domain.DialogueAct{
			mustAct(t, "thankyou()&hello()"),
			mustAct(t, "inform(food=chinese)"),
			mustAct(t, "reqmore()"),
		},
	}
	if err := store.RecordSession(ctx, in); err != nil {
		t.Fatalf("record: %v", err)
	}

	out, err := store.GetSessionLog(ctx, sessionID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out.Turns) != 2 || len(out.SystemActs) != 3 {
		t.Fatalf("unexpected log shape: %+v", out)
	}
	if !out.Turns[1].User.Equal(in.Turns[1].User) {
		t.Fatalf("turn user=%s, want %s", out.Turns[1].User, in.Turns[1].User)
	}
	if got := out.SystemActs[2].String(); got != "reqmore()" {
		t.Fatalf("last system act=%q", got)
	}

	list, err := store.ListDialogues(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].TurnCount != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestGetSessionLogNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetSessionLog(context.Background(), "missing-"+uuid.NewString())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err=%v, want ErrSessionNotFound", err)
	}
}
