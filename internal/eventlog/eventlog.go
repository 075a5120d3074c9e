// Package eventlog provides the always-available conversation log stream.
// Components publish tagged entries; observers subscribe explicitly instead
// of hanging off a process-wide listener list.
package eventlog

import (
	"sync"
	"time"
)

// Severity tags a log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// Entry is one record in the log stream.
type Entry struct {
	Severity  Severity  `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Log is an observer registry plus a bounded ring of recent entries.
// Publishing never blocks: a slow observer channel drops entries rather
// than stalling the conversation loop.
type Log struct {
	mu        sync.Mutex
	ring      []Entry
	ringCap   int
	nextSubID int
	subs      map[int]chan Entry
}

// New creates a Log retaining the most recent ringCap entries.
func New(ringCap int) *Log {
	if ringCap <= 0 {
		ringCap = 256
	}
	return &Log{
		ringCap: ringCap,
		subs:    make(map[int]chan Entry),
	}
}

// Publish appends an entry and fans it out to subscribers.
func (l *Log) Publish(severity Severity, source, message string) {
	entry := Entry{
		Severity:  severity,
		Source:    source,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	l.mu.Lock()
	l.ring = append(l.ring, entry)
	if len(l.ring) > l.ringCap {
		l.ring = l.ring[len(l.ring)-l.ringCap:]
	}
	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	l.mu.Unlock()
}

func (l *Log) Info(source, message string)    { l.Publish(SeverityInfo, source, message) }
func (l *Log) Error(source, message string)   { l.Publish(SeverityError, source, message) }
func (l *Log) Success(source, message string) { l.Publish(SeveritySuccess, source, message) }

// Subscribe registers an observer. The returned unsubscribe func is safe to
// call more than once.
func (l *Log) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)

	l.mu.Lock()
	id := l.nextSubID
	l.nextSubID++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Recent returns up to limit most recent entries, oldest first.
func (l *Log) Recent(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.ring) {
		limit = len(l.ring)
	}
	out := make([]Entry, limit)
	copy(out, l.ring[len(l.ring)-limit:])
	return out
}
