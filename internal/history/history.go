// Package history records one line per completed request attempt.
package history

import (
	"fmt"
	"sync"
	"time"
)

// Entry describes one completed attempt.
type Entry struct {
	ConnID   string        `json:"conn_id"`
	Start    time.Time     `json:"start"`
	Elapsed  time.Duration `json:"elapsed"`
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Range    string        `json:"range,omitempty"`
	Code     int           `json:"code"`
	Sent     int64         `json:"sent"`
	Received int64         `json:"received"`
}

// String renders the entry as a history line.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] %s (%d sec) %s %s %s   HTTP Code: %d (Sent: %d Received: %d bytes)",
		e.ConnID, e.Start.Format("15:04:05"), int64(e.Elapsed/time.Second),
		e.Method, e.URL, e.Range, e.Code, e.Sent, e.Received)
}

// Sink is an append-only store of entries.
type Sink interface {
	Add(e Entry) error
	// Recent returns up to n entries, oldest first. n <= 0 returns all.
	Recent(n int) ([]Entry, error)
}

// MemorySink keeps the last Capacity entries in a ring.
type MemorySink struct {
	mu    sync.Mutex
	buf   []Entry
	next  int
	full  bool
	total uint64
}

// NewMemorySink creates a ring of the given capacity.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemorySink{buf: make([]Entry, capacity)}
}

// Add implements Sink.
func (s *MemorySink) Add(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf[s.next] = e
	s.next = (s.next + 1) % len(s.buf)
	if s.next == 0 {
		s.full = true
	}
	s.total++
	return nil
}

// Recent implements Sink.
func (s *MemorySink) Recent(n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ordered []Entry
	if s.full {
		ordered = append(ordered, s.buf[s.next:]...)
		ordered = append(ordered, s.buf[:s.next]...)
	} else {
		ordered = append(ordered, s.buf[:s.next]...)
	}

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered, nil
}

// Total returns the number of entries ever added.
func (s *MemorySink) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Add(Entry) error             { return nil }
func (Discard) Recent(int) ([]Entry, error) { return nil, nil }
