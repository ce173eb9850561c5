package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageKind tags the closed set of messages exchanged with the pipeline.
type MessageKind string

const (
	KindCommand          MessageKind = "command"
	KindSingleAct        MessageKind = "act"
	KindNBest            MessageKind = "nblist"
	KindConfusionNetwork MessageKind = "confnet"
	KindActOut           MessageKind = "dm_da"
)

// Ensure all message kinds implement Message.
var (
	_ Message = Command{}
	_ Message = ActMessage{}
)

// Message is the closed union of everything that travels on the dialogue
// manager's channels.
type Message interface {
	isMessage()
	Kind() MessageKind
}

// Command names understood or emitted by the dialogue manager.
const (
	CommandStop        = "stop"
	CommandFlush       = "flush"
	CommandNewDialogue = "new_dialogue"
	CommandEndDialogue = "end_dialogue"

	CommandActGenerated = "dm_da_generated"
	CommandHangup       = "hangup"
	CommandError        = "dm_error"
)

// Component ids used as command source and target.
const (
	ComponentDM  = "DM"
	ComponentHub = "HUB"
)

// Command is a control message. The orchestrator sends stop, flush,
// new_dialogue and end_dialogue; the dialogue manager answers with
// acknowledgements and signals such as dm_da_generated and hangup.
type Command struct {
	Name   string            `json:"name"`
	Source string            `json:"source,omitempty"`
	Target string            `json:"target,omitempty"`
	Args   map[string]string `json:"args,omitempty"`
}

func (Command) isMessage()        {}
func (Command) Kind() MessageKind { return KindCommand }

// NewCommand builds a command from source to target.
func NewCommand(name, source, target string) Command {
	return Command{Name: name, Source: source, Target: target}
}

func (c Command) String() string {
	return fmt.Sprintf("%s() %s->%s", c.Name, c.Source, c.Target)
}

// ActMessage carries one act produced by the dialogue manager.
type ActMessage struct {
	SessionID string      `json:"session_id,omitempty"`
	Act       DialogueAct `json:"act"`
}

func (ActMessage) isMessage()        {}
func (ActMessage) Kind() MessageKind { return KindActOut }

// Envelope is the JSON wire form of a Message.
type Envelope struct {
	Type    MessageKind `json:"type"`
	Payload Message     `json:"payload"`
}

// Wrap builds the envelope for m.
func Wrap(m Message) Envelope {
	return Envelope{Type: m.Kind(), Payload: m}
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var v struct {
		Type    MessageKind     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	var msg Message
	switch v.Type {
	case KindCommand:
		var c Command
		if err := json.Unmarshal(v.Payload, &c); err != nil {
			return err
		}
		msg = c
	case KindSingleAct:
		var h SingleAct
		if err := json.Unmarshal(v.Payload, &h); err != nil {
			return err
		}
		msg = h
	case KindNBest:
		var h NBest
		if err := json.Unmarshal(v.Payload, &h); err != nil {
			return err
		}
		msg = h
	case KindConfusionNetwork:
		var h ConfusionNetwork
		if err := json.Unmarshal(v.Payload, &h); err != nil {
			return err
		}
		msg = h
	case KindActOut:
		var a ActMessage
		if err := json.Unmarshal(v.Payload, &a); err != nil {
			return err
		}
		msg = a
	default:
		return fmt.Errorf("%w: message type %q", ErrUnsupportedInputKind, v.Type)
	}

	*e = Envelope{Type: v.Type, Payload: msg}
	return nil
}

// DecodeMessage parses an envelope and returns its message.
func DecodeMessage(b []byte) (Message, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, err
	}
	return e.Payload, nil
}

// EncodeMessage renders m as an envelope.
func EncodeMessage(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrUnsupportedInputKind)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Acts use '&' as item separator; keep it readable on the wire.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Wrap(m)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
