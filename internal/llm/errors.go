package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError is a failed call to the completion API: a non-success status
// or a transport failure. StatusCode is 0 when no response was received.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream: status %d %s: %v", e.StatusCode, http.StatusText(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ProtocolError is a response whose shape the client does not understand.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "upstream protocol: " + e.Reason
}

// Error kinds reported by ErrorKind.
const (
	KindUpstream = "upstream"
	KindProtocol = "protocol"
	KindCanceled = "canceled"
	KindUnknown  = "unknown"
)

// ErrorKind classifies err for logs and metrics.
func ErrorKind(err error) string {
	var (
		upErr    *UpstreamError
		protoErr *ProtocolError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.As(err, &protoErr):
		return KindProtocol
	case errors.As(err, &upErr):
		return KindUpstream
	default:
		return KindUnknown
	}
}
