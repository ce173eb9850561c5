package dialogue

// Slot key namespaces sharing the flat slot memory.
const (
	RequestPrefix = "rh_"
	ConfirmPrefix = "ch_"
	SelectPrefix  = "sh_"

	// KeyLastDiscourseAct holds the type of the last discourse act (bye,
	// restart, repeat, ...) the user produced.
	KeyLastDiscourseAct = "lda"
)

// Slot values with a reserved meaning.
const (
	SlotUnknown    = "unknown"
	SystemInformed = "system-informed"
	UserRequested  = "user-requested"
)

// slotMemory is an insertion-ordered string map. Reads of unset keys yield
// SlotUnknown and never create entries.
type slotMemory struct {
	keys   []string
	values map[string]string
}

func newSlotMemory() *slotMemory {
	return &slotMemory{values: make(map[string]string)}
}

func (m *slotMemory) get(key string) string {
	if v, ok := m.values[key]; ok {
		return v
	}
	return SlotUnknown
}

// set stores value under key. Storing SlotUnknown removes the key, so an
// unset key and a reset key are indistinguishable.
func (m *slotMemory) set(key, value string) {
	if value == SlotUnknown {
		m.delete(key)
		return
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *slotMemory) delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *slotMemory) len() int {
	return len(m.keys)
}

// each visits entries in insertion order.
func (m *slotMemory) each(fn func(key, value string)) {
	for _, k := range m.keys {
		fn(k, m.values[k])
	}
}
