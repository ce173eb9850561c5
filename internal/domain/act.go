package domain

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ActType is the communicative function of a dialogue act item.
type ActType string

const (
	ActInform   ActType = "inform"
	ActRequest  ActType = "request"
	ActConfirm  ActType = "confirm"
	ActDeny     ActType = "deny"
	ActSelect   ActType = "select"
	ActAffirm   ActType = "affirm"
	ActNegate   ActType = "negate"
	ActAck      ActType = "ack"
	ActApology  ActType = "apology"
	ActBye      ActType = "bye"
	ActHangup   ActType = "hangup"
	ActHello    ActType = "hello"
	ActHelp     ActType = "help"
	ActNull     ActType = "null"
	ActRepeat   ActType = "repeat"
	ActReqAlts  ActType = "reqalts"
	ActReqMore  ActType = "reqmore"
	ActRestart  ActType = "restart"
	ActThankYou ActType = "thankyou"
)

var actTypes = map[ActType]struct{}{
	ActInform: {}, ActRequest: {}, ActConfirm: {}, ActDeny: {}, ActSelect: {},
	ActAffirm: {}, ActNegate: {}, ActAck: {}, ActApology: {}, ActBye: {},
	ActHangup: {}, ActHello: {}, ActHelp: {}, ActNull: {}, ActRepeat: {},
	ActReqAlts: {}, ActReqMore: {}, ActRestart: {}, ActThankYou: {},
}

// Valid reports whether t is one of the known act types.
func (t ActType) Valid() bool {
	_, ok := actTypes[t]
	return ok
}

// DialogueActItem is one (type, slot, value) triple of a dialogue act.
type DialogueActItem struct {
	Type  ActType
	Slot  string
	Value string
}

// Item builds a dialogue act item. Slot and value are optional.
func Item(t ActType, slotValue ...string) DialogueActItem {
	dai := DialogueActItem{Type: t}
	if len(slotValue) > 0 {
		dai.Slot = slotValue[0]
	}
	if len(slotValue) > 1 {
		dai.Value = slotValue[1]
	}
	return dai
}

// String renders the item as type(slot=value), type(slot) or type().
func (dai DialogueActItem) String() string {
	switch {
	case dai.Slot == "" && dai.Value == "":
		return string(dai.Type) + "()"
	case dai.Value == "":
		return fmt.Sprintf("%s(%s)", dai.Type, quoteText(dai.Slot))
	default:
		return fmt.Sprintf("%s(%s=%s)", dai.Type, quoteText(dai.Slot), quoteText(dai.Value))
	}
}

func (dai DialogueActItem) MarshalText() ([]byte, error) {
	return []byte(dai.String()), nil
}

func (dai *DialogueActItem) UnmarshalText(b []byte) error {
	parsed, err := ParseItem(string(b))
	if err != nil {
		return err
	}
	*dai = parsed
	return nil
}

// DialogueAct is an ordered sequence of items. Order is preserved end to end
// and an empty act is valid.
type DialogueAct []DialogueActItem

// Act builds a dialogue act from items.
func Act(items ...DialogueActItem) DialogueAct {
	return append(DialogueAct{}, items...)
}

func (da DialogueAct) String() string {
	parts := make([]string, 0, len(da))
	for _, dai := range da {
		parts = append(parts, dai.String())
	}
	return strings.Join(parts, "&")
}

// Has reports whether any item of the act has type t.
func (da DialogueAct) Has(t ActType) bool {
	for _, dai := range da {
		if dai.Type == t {
			return true
		}
	}
	return false
}

// First returns the first item of type t.
func (da DialogueAct) First(t ActType) (DialogueActItem, bool) {
	for _, dai := range da {
		if dai.Type == t {
			return dai, true
		}
	}
	return DialogueActItem{}, false
}

// Equal compares two acts item by item.
func (da DialogueAct) Equal(other DialogueAct) bool {
	if len(da) != len(other) {
		return false
	}
	for i := range da {
		if da[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that does not share the backing array.
func (da DialogueAct) Clone() DialogueAct {
	if da == nil {
		return nil
	}
	return append(DialogueAct{}, da...)
}

func (da DialogueAct) MarshalText() ([]byte, error) {
	return []byte(da.String()), nil
}

func (da *DialogueAct) UnmarshalText(b []byte) error {
	parsed, err := ParseAct(string(b))
	if err != nil {
		return err
	}
	*da = parsed
	return nil
}

// ParseAct parses the text form "inform(food=chinese)&request(area)".
// Values may be double quoted. An empty string yields an empty act.
func ParseAct(s string) (DialogueAct, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DialogueAct{}, nil
	}
	var out DialogueAct
	for _, raw := range splitItems(s) {
		dai, err := ParseItem(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, dai)
	}
	return out, nil
}

// ParseItem parses a single item such as "deny(alternatives=true)". Slot
// names and values may be Go-quoted strings.
func ParseItem(s string) (DialogueActItem, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return DialogueActItem{}, fmt.Errorf("%w: malformed act item %q", ErrUnsupportedInputKind, s)
	}
	t := ActType(strings.ToLower(strings.TrimSpace(s[:open])))
	if !t.Valid() {
		return DialogueActItem{}, fmt.Errorf("%w: unknown act type %q", ErrUnsupportedInputKind, t)
	}
	dai := DialogueActItem{Type: t}
	body := strings.TrimSpace(s[open+1 : len(s)-1])
	if body == "" {
		return dai, nil
	}

	slot, rest, err := scanSlot(body)
	if err != nil {
		return DialogueActItem{}, fmt.Errorf("%w: act item %q: %v", ErrUnsupportedInputKind, s, err)
	}
	dai.Slot = slot
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return dai, nil
	}
	if rest[0] != '=' {
		return DialogueActItem{}, fmt.Errorf("%w: act item %q: unexpected %q after slot", ErrUnsupportedInputKind, s, rest)
	}
	value, err := scanValue(strings.TrimSpace(rest[1:]))
	if err != nil {
		return DialogueActItem{}, fmt.Errorf("%w: act item %q: %v", ErrUnsupportedInputKind, s, err)
	}
	dai.Value = value
	return dai, nil
}

// scanSlot reads a bare slot name up to '=' or a quoted one, and returns
// the remainder.
func scanSlot(s string) (string, string, error) {
	if strings.HasPrefix(s, `"`) {
		q, err := strconv.QuotedPrefix(s)
		if err != nil {
			return "", "", fmt.Errorf("bad quoted slot: %w", err)
		}
		slot, err := strconv.Unquote(q)
		if err != nil {
			return "", "", fmt.Errorf("bad quoted slot: %w", err)
		}
		return slot, s[len(q):], nil
	}
	name, value, found := strings.Cut(s, "=")
	if !found {
		return strings.TrimSpace(name), "", nil
	}
	return strings.TrimSpace(name), "=" + value, nil
}

// scanValue reads the whole value, which is either bare or one quoted string.
func scanValue(s string) (string, error) {
	if !strings.HasPrefix(s, `"`) {
		return s, nil
	}
	q, err := strconv.QuotedPrefix(s)
	if err != nil {
		return "", fmt.Errorf("bad quoted value: %w", err)
	}
	if strings.TrimSpace(s[len(q):]) != "" {
		return "", fmt.Errorf("trailing text after quoted value %q", s)
	}
	return strconv.Unquote(q)
}

// splitItems splits on '&' outside of quoted strings.
func splitItems(s string) []string {
	var parts []string
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quoted {
				i++
			}
		case '"':
			quoted = !quoted
		case '&':
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// quoteText quotes v when it would not survive ParseItem bare.
func quoteText(v string) string {
	if strings.ContainsAny(v, "&()=\"\\ ") || strings.TrimSpace(v) != v ||
		strings.ContainsFunc(v, func(r rune) bool { return !unicode.IsPrint(r) }) {
		return strconv.Quote(v)
	}
	return v
}
