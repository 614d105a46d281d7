package llm

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")
)

// Stream is a pull iterator over the text deltas of a streaming completion.
// It is finite and cannot be restarted:
//
//	for s.Next() {
//		fmt.Print(s.Current())
//	}
//	if err := s.Err(); err != nil { ... }
//	s.Close()
//
// A Stream is not safe for concurrent use.
type Stream struct {
	id     string
	body   io.ReadCloser
	frames *frameReader
	log    *slog.Logger

	cur       string
	err       error
	done      bool
	closed    bool
	fragments int
	skipped   int
}

// NewStream wraps an SSE response body. The stream owns body and closes it
// on Close.
func NewStream(body io.ReadCloser, log *slog.Logger) *Stream {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return &Stream{
		id:     id,
		body:   body,
		frames: newFrameReader(body),
		log:    log.With("stream_id", id),
	}
}

// ID identifies the stream in logs.
func (s *Stream) ID() string { return s.id }

// Next advances to the next fragment. It returns false once the sentinel is
// seen, the body ends, a read fails or the stream is closed.
func (s *Stream) Next() bool {
	if s.done || s.closed {
		return false
	}
	for {
		line, err := s.frames.next()
		if err != nil {
			s.finish(err)
			return false
		}

		payload, ok := bytes.CutPrefix(line, dataPrefix)
		if !ok {
			continue
		}
		payload = bytes.TrimSpace(payload)
		if len(payload) == 0 {
			continue
		}
		if bytes.Equal(payload, doneSentinel) {
			s.finish(nil)
			return false
		}

		text, res := parseDelta(payload)
		switch res {
		case deltaMalformed:
			s.skipped++
			s.log.Debug("skipping malformed frame", "bytes", len(payload))
			continue
		case deltaUnexpected:
			s.skipped++
			s.log.Warn("skipping frame with non-text content", "bytes", len(payload))
			continue
		case deltaNone:
			continue
		}

		s.cur = text
		s.fragments++
		return true
	}
}

// Current is the fragment produced by the last successful Next.
func (s *Stream) Current() string { return s.cur }

// Err is the error that ended the stream, if any. A sentinel or a clean end
// of body is not an error.
func (s *Stream) Err() error { return s.err }

// Close releases the upstream connection. Safe to call more than once.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cur = ""
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

func (s *Stream) finish(err error) {
	s.done = true
	s.cur = ""
	switch {
	case err == nil:
		s.log.Debug("stream finished", "fragments", s.fragments, "skipped", s.skipped)
	case errors.Is(err, io.EOF):
		s.log.Debug("upstream closed without sentinel", "fragments", s.fragments, "skipped", s.skipped)
	case errors.Is(err, errFrameTooLarge):
		s.err = &ProtocolError{Reason: err.Error()}
	default:
		s.err = &UpstreamError{Err: err}
	}
}

type deltaResult int

const (
	deltaText deltaResult = iota
	deltaNone
	deltaMalformed
	deltaUnexpected
)

// parseDelta extracts choices[0].delta.content from a frame payload.
func parseDelta(payload []byte) (string, deltaResult) {
	if !gjson.ValidBytes(payload) {
		return "", deltaMalformed
	}
	content := gjson.GetBytes(payload, "choices.0.delta.content")
	switch {
	case !content.Exists(), content.Type == gjson.Null:
		return "", deltaNone
	case content.Type != gjson.String:
		return "", deltaUnexpected
	}
	return content.String(), deltaText
}
