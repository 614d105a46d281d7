package llm

import "context"

// Client is the upstream completion API as seen by the relay.
type Client interface {
	// Answer returns the whole completion for question, trimmed.
	Answer(ctx context.Context, question string) (string, error)
	// StreamAnswer opens a streaming completion. The caller must Close the
	// returned stream.
	StreamAnswer(ctx context.Context, question string) (*Stream, error)
}
