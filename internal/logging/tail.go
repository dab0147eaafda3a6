package logging

import (
	"bytes"
	"strings"
	"sync"

	"github.com/lowaak/vitruvian-monitor/internal/events"
)

// Tail is an io.Writer keeping the most recent log lines and publishing each new line
type Tail struct {
	mu      sync.Mutex
	lines   []string
	max     int
	partial bytes.Buffer
	event   *events.ChannelEvent[string]
}

// NewTail keeps up to max lines; max <= 0 keeps 200
func NewTail(max int) *Tail {
	if max <= 0 {
		max = 200
	}
	return &Tail{max: max, event: events.NewChannelEvent[string](false)}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	t.partial.Write(p)
	var complete []string
	for {
		line, err := t.partial.ReadString('\n')
		if err != nil {
			// no newline yet: keep the fragment for the next write
			t.partial.Reset()
			t.partial.WriteString(line)
			break
		}
		line = strings.TrimRight(line, "\r\n")
		complete = append(complete, line)
		t.lines = append(t.lines, line)
		if len(t.lines) > t.max {
			t.lines = t.lines[len(t.lines)-t.max:]
		}
	}
	t.mu.Unlock()

	for _, line := range complete {
		t.event.Notify(line)
	}
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.lines...)
}

// Listen registers ch for each completed line
func (t *Tail) Listen(ch chan<- string) func() {
	return t.event.Listen(ch)
}
