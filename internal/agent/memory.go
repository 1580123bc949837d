package agent

// Memory is a fixed-capacity ring buffer of past observations with
// FIFO eviction: once full, recording a new observation drops the
// oldest. The bound is structural, so len(memory) <= capacity holds by
// construction.
//
// A Memory is owned exclusively by one agent. Rounds execute
// sequentially and at most one worker handles an agent per round, so
// no locking is needed.
type Memory struct {
	buf   []Observation
	head  int // next write position
	count int
}

// NewMemory creates a memory with the given capacity. Capacity must be
// positive; session configuration validates this before agents exist.
func NewMemory(capacity int) *Memory {
	return &Memory{buf: make([]Observation, capacity)}
}

// Record appends an observation, evicting the oldest when full.
func (m *Memory) Record(o Observation) {
	m.buf[m.head] = o
	m.head = (m.head + 1) % len(m.buf)
	if m.count < len(m.buf) {
		m.count++
	}
}

// Recent returns the remembered observations, oldest first.
func (m *Memory) Recent() []Observation {
	out := make([]Observation, 0, m.count)
	start := m.head - m.count
	if start < 0 {
		start += len(m.buf)
	}
	for i := 0; i < m.count; i++ {
		out = append(out, m.buf[(start+i)%len(m.buf)])
	}
	return out
}

// Len returns the number of remembered observations.
func (m *Memory) Len() int {
	return m.count
}

// Capacity returns the maximum number of observations retained.
func (m *Memory) Capacity() int {
	return len(m.buf)
}
