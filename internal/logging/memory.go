package logging

import "sync"

// Entry is one captured log call.
type Entry struct {
	Level string
	Msg   string
	Args  []any
}

// Memory captures entries in process memory. Tests use it to assert on
// absorbed warnings.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) add(level, msg string, args []any) {
	m.mu.Lock()
	m.entries = append(m.entries, Entry{Level: level, Msg: msg, Args: args})
	m.mu.Unlock()
}

func (m *Memory) Debug(msg string, args ...any) { m.add("debug", msg, args) }
func (m *Memory) Info(msg string, args ...any)  { m.add("info", msg, args) }
func (m *Memory) Warn(msg string, args ...any)  { m.add("warn", msg, args) }
func (m *Memory) Error(msg string, args ...any) { m.add("error", msg, args) }

// Entries returns the captured entries at level, or all entries when level
// is empty.
func (m *Memory) Entries(level string) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
