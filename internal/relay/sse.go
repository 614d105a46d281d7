package relay

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// EventWriter emits server-sent events on an HTTP response, flushing after
// every event so fragments reach the client as they arrive.
type EventWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func NewEventWriter(w http.ResponseWriter) *EventWriter {
	return &EventWriter{w: w, rc: http.NewResponseController(w)}
}

// Start writes the event-stream headers and the 200 status. Later calls are
// no-ops.
func (e *EventWriter) Start() error {
	if e.started {
		return nil
	}
	e.started = true
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(http.StatusOK)
	return e.flush()
}

// Started reports whether headers have gone out.
func (e *EventWriter) Started() bool { return e.started }

// Send writes one event carrying data. A multi-line payload becomes one
// data field per line, which clients join back with "\n".
func (e *EventWriter) Send(data string) error {
	if err := e.Start(); err != nil {
		return err
	}
	var b strings.Builder
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(e.w, b.String()); err != nil {
		return err
	}
	return e.flush()
}

func (e *EventWriter) flush() error {
	if err := e.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}
