package tui

import (
	"bytes"
	"sync"

	"github.com/lowaak/smart-trainer/training-app/internal/events"
)

const maxLogLines = 1000

// Model holds the UI-only state: the log pane and the quit request.
// Timer state comes straight from runner snapshots.
type Model struct {
	logEvent              *events.ChannelEvent[string]
	closeApplicationEvent *events.ChannelEvent[struct{}]

	logMu    sync.RWMutex
	logLines []string
	partial  []byte
}

func NewModel() *Model {
	return &Model{
		logEvent:              events.NewChannelEvent[string](false),
		closeApplicationEvent: events.NewChannelEvent[struct{}](true),
		logLines:              make([]string, 0, maxLogLines),
	}
}

// Write implements io.Writer so a logger can feed the log pane.
// Input is split on newlines; an incomplete trailing line waits for the next write.
func (m *Model) Write(p []byte) (int, error) {
	m.logMu.Lock()
	rest := append(m.partial, p...)
	m.partial = nil
	var added []string

	for {
		line, after, found := bytes.Cut(rest, []byte{'\n'})
		if !found {
			if len(line) > 0 {
				m.partial = bytes.Clone(line)
			}
			break
		}
		added = append(added, string(bytes.TrimSuffix(line, []byte{'\r'})))
		rest = after
	}
	for _, line := range added {
		m.appendLineLocked(line)
	}
	m.logMu.Unlock()

	for _, line := range added {
		m.logEvent.Notify(line)
	}
	return len(p), nil
}

func (m *Model) appendLineLocked(line string) {
	if len(m.logLines) >= maxLogLines {
		copy(m.logLines, m.logLines[1:])
		m.logLines = m.logLines[:len(m.logLines)-1]
	}
	m.logLines = append(m.logLines, line)
}

// GetLogTail returns up to n of the newest log lines, oldest first
func (m *Model) GetLogTail(n int) []string {
	m.logMu.RLock()
	defer m.logMu.RUnlock()
	if n <= 0 {
		return nil
	}
	start := max(len(m.logLines)-n, 0)
	return append([]string(nil), m.logLines[start:]...)
}

// ListenToLog registers a channel to receive new log lines
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToLog(ch chan string) func() {
	return m.logEvent.Listen(ch)
}

// ListenToCloseApplication registers a channel to receive close application signals
// Returns a deregistration function that can be called to remove the listener
func (m *Model) ListenToCloseApplication(ch chan struct{}) func() {
	return m.closeApplicationEvent.Listen(ch)
}

// RequestCloseApplication signals that the application should close
func (m *Model) RequestCloseApplication() {
	m.closeApplicationEvent.Notify(struct{}{})
}
