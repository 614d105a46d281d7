package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ai-qa-assistant/internal/llm"
	"ai-qa-assistant/internal/metrics"
)

// Failures surfaced to HTTP callers. The wrapped cause is for logs only.
var (
	ErrAnswerFailed = errors.New("failed to fetch answer")
	ErrStreamFailed = errors.New("failed to stream answer")
)

// Answer is the unary response body.
type Answer struct {
	Answer string `json:"answer"`
}

// Service relays questions to the upstream client.
type Service struct {
	llm     llm.Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New builds a Service. m may be nil.
func New(client llm.Client, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{llm: client, log: log, metrics: m}
}

// Ask returns the full answer to question. Any client failure is wrapped in
// ErrAnswerFailed.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	start := time.Now()
	answer, err := s.llm.Answer(ctx, question)
	s.metrics.ObserveRequest(metrics.ModeUnary, err, time.Since(start))
	if err != nil {
		s.metrics.UpstreamError(llm.ErrorKind(err))
		return Answer{}, fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}
	return Answer{Answer: answer}, nil
}

// Stream relays the streaming answer to question as server-sent events on w.
//
// A non-nil error means the upstream stream could not be opened; nothing has
// been written to w and the caller still owns the response. Once events
// start flowing, failures (upstream or client side) end the response and are
// only logged.
func (s *Service) Stream(ctx context.Context, question string, w *EventWriter) error {
	start := time.Now()
	stream, err := s.llm.StreamAnswer(ctx, question)
	if err != nil {
		s.metrics.ObserveRequest(metrics.ModeStream, err, time.Since(start))
		s.metrics.UpstreamError(llm.ErrorKind(err))
		return fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}
	defer stream.Close()

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	log := s.log.With("stream_id", stream.ID())
	if err := w.Start(); err != nil {
		log.Warn("failed to start event stream", "err", err)
		s.metrics.ObserveRequest(metrics.ModeStream, nil, time.Since(start))
		return nil
	}

	sent := 0
	for stream.Next() {
		fragment := stream.Current()
		if fragment == "" {
			continue
		}
		if err := w.Send(fragment); err != nil {
			log.Info("client stopped reading", "fragments", sent, "err", err)
			s.metrics.ObserveRequest(metrics.ModeStream, nil, time.Since(start))
			return nil
		}
		sent++
		s.metrics.Fragment()
	}

	err = stream.Err()
	switch kind := llm.ErrorKind(err); {
	case err == nil:
		log.Info("stream relayed", "fragments", sent, "duration_ms", time.Since(start).Milliseconds())
	case kind == llm.KindCanceled:
		log.Info("stream canceled by client", "fragments", sent)
		err = nil
	default:
		log.Error("stream interrupted", "kind", kind, "fragments", sent, "err", err)
		s.metrics.UpstreamError(kind)
	}
	s.metrics.ObserveRequest(metrics.ModeStream, err, time.Since(start))
	return nil
}
