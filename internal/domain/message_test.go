package domain

import (
	"errors"
	"testing"
)

func TestHypothesisBest(t *testing.T) {
	chinese := Act(Item(ActInform, "food", "chinese"))
	indian := Act(Item(ActInform, "food", "indian"))

	tests := []struct {
		name string
		hyp  Hypothesis
		want DialogueAct
	}{
		{name: "single", hyp: SingleAct{Act: chinese}, want: chinese},
		{name: "nbest highest", hyp: NBest{{Prob: 0.3, Act: chinese}, {Prob: 0.6, Act: indian}}, want: indian},
		{name: "nbest tie keeps first", hyp: NBest{{Prob: 0.5, Act: chinese}, {Prob: 0.5, Act: indian}}, want: chinese},
		{name: "nbest empty", hyp: NBest{}, want: Act(Item(ActNull))},
		{
			name: "confnet top path",
			hyp: ConfusionNetwork{
				{Prob: 0.9, Item: Item(ActInform, "food", "chinese")},
				{Prob: 0.2, Item: Item(ActInform, "area", "south")},
				{Prob: 0.7, Item: Item(ActRequest, "phone")},
			},
			want: Act(Item(ActInform, "food", "chinese"), Item(ActRequest, "phone")),
		},
		{name: "confnet below threshold", hyp: ConfusionNetwork{{Prob: 0.5, Item: Item(ActBye)}}, want: Act(Item(ActNull))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestAct(tt.hyp)
			if err != nil {
				t.Fatalf("BestAct error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("BestAct = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBestActRejectsNil(t *testing.T) {
	if _, err := BestAct(nil); !errors.Is(err, ErrUnsupportedInputKind) {
		t.Fatalf("err=%v, want ErrUnsupportedInputKind", err)
	}
}

func TestEnvelopeDecode(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"nblist","payload":[{"prob":0.8,"act":"inform(food=chinese)"},{"prob":0.1,"act":"bye()"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	nb, ok := msg.(NBest)
	if !ok {
		t.Fatalf("payload type %T, want NBest", msg)
	}
	if got := nb.Best().String(); got != "inform(food=chinese)" {
		t.Fatalf("best=%s", got)
	}

	msg, err = DecodeMessage([]byte(`{"type":"command","payload":{"name":"flush","source":"HUB","target":"DM"}}`))
	if err != nil {
		t.Fatalf("decode command: %v", err)
	}
	if cmd, ok := msg.(Command); !ok || cmd.Name != CommandFlush {
		t.Fatalf("decoded %#v, want flush command", msg)
	}

	if _, err := DecodeMessage([]byte(`{"type":"audio","payload":{}}`)); !errors.Is(err, ErrUnsupportedInputKind) {
		t.Fatalf("err=%v, want ErrUnsupportedInputKind", err)
	}
}

func TestEnvelopeEncodeActMessage(t *testing.T) {
	raw, err := EncodeMessage(ActMessage{SessionID: "s1", Act: Act(Item(ActThankYou), Item(ActHello))})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"dm_da","payload":{"session_id":"s1","act":"thankyou()&hello()"}}`
	if string(raw) != want {
		t.Fatalf("encoded %s, want %s", raw, want)
	}
}
