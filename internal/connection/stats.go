package connection

import (
	"fmt"
	"strings"
	"time"
)

// counters are guarded by Connection.mu.
type counters struct {
	lastMethod string
	lastURL    string
	lastCode   int
	started    time.Time
	stopped    time.Time
	jobs       uint64
	errors     uint64
	connects   uint64
	bytesOut   uint64
	bytesIn    uint64
}

func (s *counters) start(method, url string, now time.Time) {
	s.lastMethod = method
	s.lastURL = url
	s.started = now
	s.jobs++
}

func (s *counters) finish(code int, now time.Time, out, in int64, failed bool) {
	s.lastCode = code
	s.stopped = now
	s.bytesOut += uint64(out)
	s.bytesIn += uint64(in)
	if failed {
		s.errors++
	}
}

// Stats is a point-in-time copy of a connection's counters.
type Stats struct {
	ID         string
	Busy       bool
	LastMethod string
	LastURL    string
	LastCode   int
	Started    time.Time
	Stopped    time.Time
	Jobs       uint64
	Errors     uint64
	Connects   uint64
	BytesOut   uint64
	BytesIn    uint64
	P50        time.Duration
	P99        time.Duration
}

// ResponseTime is the duration of the last attempt, zero while one is
// running.
func (s Stats) ResponseTime() time.Duration {
	if s.Started.IsZero() || !s.Started.Before(s.Stopped) {
		return 0
	}
	return s.Stopped.Sub(s.Started)
}

// Stats returns a snapshot of the counters.
func (c *Connection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		ID:         c.id,
		Busy:       c.acquired,
		LastMethod: c.stats.lastMethod,
		LastURL:    c.stats.lastURL,
		LastCode:   c.stats.lastCode,
		Started:    c.stats.started,
		Stopped:    c.stats.stopped,
		Jobs:       c.stats.jobs,
		Errors:     c.stats.errors,
		Connects:   c.stats.connects,
		BytesOut:   c.stats.bytesOut,
		BytesIn:    c.stats.bytesIn,
		P50:        time.Duration(c.latency.ValueAtQuantile(50)) * time.Millisecond,
		P99:        time.Duration(c.latency.ValueAtQuantile(99)) * time.Millisecond,
	}
}

// PrintFormat holds the delimiters used to render stats as text, HTML or
// any other tabular format.
type PrintFormat struct {
	CaptionStart  string
	CaptionColDiv string
	CaptionEnd    string
	RowStart      string
	ColDiv        string
	RowEnd        string
}

// TextFormat renders a plain pipe-separated table.
var TextFormat = PrintFormat{
	CaptionStart:  "",
	CaptionColDiv: "|",
	CaptionEnd:    "\n",
	RowStart:      "",
	ColDiv:        "|",
	RowEnd:        "\n",
}

var captionColumns = []string{
	"ID", "Current state", "Last CMD", "Last URL", "Last Code",
	"Time started (Response sec)", "Jobs (Errors)", "Connects Nr",
	"Total Out", "Total In", "Latency p50/p99",
}

// WriteStatsCaption appends the column captions to b.
func WriteStatsCaption(b *strings.Builder, f PrintFormat) {
	b.WriteString(f.CaptionStart)
	for i, col := range captionColumns {
		if i > 0 {
			b.WriteString(" " + f.CaptionColDiv + " ")
		}
		b.WriteString(col)
	}
	b.WriteString(f.CaptionEnd)
}

// WriteStatsRow appends the connection's row to b.
func (c *Connection) WriteStatsRow(b *strings.Builder, f PrintFormat) {
	s := c.Stats()
	s.WriteRow(b, f)
}

// WriteRow appends s as one row to b.
func (s Stats) WriteRow(b *strings.Builder, f PrintFormat) {
	state := "Idle"
	if s.Busy {
		state = "Busy"
	}
	method := s.LastMethod
	if method == "" {
		method = "-"
	}
	url := s.LastURL
	if url == "" {
		url = "-"
	}
	ts := ""
	if !s.Started.IsZero() {
		ts = s.Started.Local().Format("15:04:05")
	}

	cols := []string{
		s.ID,
		state,
		method,
		url,
		fmt.Sprintf("%d", s.LastCode),
		fmt.Sprintf("%s (%d sec)", ts, int64(s.ResponseTime()/time.Second)),
		fmt.Sprintf("%d (%d)", s.Jobs, s.Errors),
		fmt.Sprintf("%d", s.Connects),
		fmt.Sprintf("~ %d b", s.BytesOut),
		fmt.Sprintf("~ %d b", s.BytesIn),
		fmt.Sprintf("%s/%s", s.P50, s.P99),
	}

	b.WriteString(f.RowStart)
	for i, col := range cols {
		if i > 0 {
			b.WriteString(" " + f.ColDiv + " ")
		}
		b.WriteString(col)
	}
	b.WriteString(f.RowEnd)
}
