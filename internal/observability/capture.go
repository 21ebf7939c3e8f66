package observability

import "sync"

// Entry records a single captured log line.
type Entry struct {
	Level   string
	Message string
	Fields  []Field
}

// CaptureLogger retains every log entry for later inspection. Tests use it to
// assert that components emitted the expected diagnostics.
type CaptureLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewCaptureLogger constructs an empty capture logger.
func NewCaptureLogger() *CaptureLogger {
	return &CaptureLogger{}
}

func (c *CaptureLogger) Debug(msg string, fields ...Field) { c.record("debug", msg, fields) }
func (c *CaptureLogger) Info(msg string, fields ...Field)  { c.record("info", msg, fields) }
func (c *CaptureLogger) Warn(msg string, fields ...Field)  { c.record("warn", msg, fields) }
func (c *CaptureLogger) Error(msg string, fields ...Field) { c.record("error", msg, fields) }

func (c *CaptureLogger) record(level, msg string, fields []Field) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]Field, len(fields))
	copy(copied, fields)
	c.entries = append(c.entries, Entry{Level: level, Message: msg, Fields: copied})
}

// Entries returns a snapshot of everything logged so far.
func (c *CaptureLogger) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Contains reports whether any entry at the given level carries the message.
func (c *CaptureLogger) Contains(level, msg string) bool {
	for _, entry := range c.Entries() {
		if entry.Level == level && entry.Message == msg {
			return true
		}
	}
	return false
}
