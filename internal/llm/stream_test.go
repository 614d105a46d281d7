package llm

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func deltaFrame(content string) string {
	return `data: {"choices":[{"index":0,"delta":{"content":"` + content + `"}}]}` + "\n\n"
}

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

func collect(s *Stream) []string {
	var out []string
	for s.Next() {
		out = append(out, s.Current())
	}
	return out
}

func TestStreamYieldsDeltasUntilSentinel(t *testing.T) {
	body := deltaFrame("Hel") + deltaFrame("lo") + "data: [DONE]\n\n" + deltaFrame("ignored")
	s := NewStream(io.NopCloser(strings.NewReader(body)), discardLogger())
	defer s.Close()

	assert.Equal(t, []string{"Hel", "lo"}, collect(s))
	assert.NoError(t, s.Err())
	assert.False(t, s.Next(), "no fragment after the sentinel")
}

func TestStreamSkipsFrames(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "role-only delta",
			body: `data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n\n" + deltaFrame("a"),
			want: []string{"a"},
		},
		{
			name: "no choices",
			body: `data: {"choices":[]}` + "\n\n" + deltaFrame("a"),
			want: []string{"a"},
		},
		{
			name: "null content",
			body: `data: {"choices":[{"delta":{"content":null},"finish_reason":"stop"}]}` + "\n\n" + deltaFrame("a"),
			want: []string{"a"},
		},
		{
			name: "non-text content",
			body: `data: {"choices":[{"delta":{"content":42}}]}` + "\n\n" + deltaFrame("a"),
			want: []string{"a"},
		},
		{
			name: "truncated json does not end the stream",
			body: `data: {"choices":[{"delta":{"con` + "\n\n" + deltaFrame("a") + deltaFrame("b"),
			want: []string{"a", "b"},
		},
		{
			name: "comments and other fields",
			body: ": keep-alive\n\nevent: message\nid: 7\n" + deltaFrame("a"),
			want: []string{"a"},
		},
		{
			name: "data without space after colon",
			body: `data:{"choices":[{"delta":{"content":"x"}}]}` + "\n\n" + deltaFrame("a"),
			want: []string{"a"},
		},
		{
			name: "blank data payload",
			body: "data: \n\n" + deltaFrame("a"),
			want: []string{"a"},
		},
		{
			name: "empty content is still a fragment",
			body: deltaFrame("") + deltaFrame("a"),
			want: []string{"", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStream(io.NopCloser(strings.NewReader(tt.body+"data: [DONE]\n\n")), discardLogger())
			defer s.Close()

			assert.Equal(t, tt.want, collect(s))
			assert.NoError(t, s.Err())
		})
	}
}

func TestStreamReassemblesAtEveryBoundary(t *testing.T) {
	body := deltaFrame("Hello") + deltaFrame(", ") + deltaFrame("wörld") + "data: [DONE]\n\n"

	for i := 1; i < len(body); i++ {
		r := io.MultiReader(strings.NewReader(body[:i]), strings.NewReader(body[i:]))
		s := NewStream(io.NopCloser(r), discardLogger())

		got := strings.Join(collect(s), "")
		require.NoError(t, s.Err(), "split at %d", i)
		require.Equal(t, "Hello, wörld", got, "split at %d", i)
		s.Close()
	}

	s := NewStream(io.NopCloser(iotest.OneByteReader(strings.NewReader(body))), discardLogger())
	defer s.Close()
	assert.Equal(t, "Hello, wörld", strings.Join(collect(s), ""))
}

func TestStreamEndsCleanlyWithoutSentinel(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader(deltaFrame("a")+deltaFrame("b"))), discardLogger())
	defer s.Close()

	assert.Equal(t, []string{"a", "b"}, collect(s))
	assert.NoError(t, s.Err())
}

func TestStreamReadError(t *testing.T) {
	r := io.MultiReader(strings.NewReader(deltaFrame("a")), iotest.ErrReader(errors.New("connection reset")))
	s := NewStream(io.NopCloser(r), discardLogger())
	defer s.Close()

	assert.Equal(t, []string{"a"}, collect(s))

	var upErr *UpstreamError
	require.ErrorAs(t, s.Err(), &upErr)
	assert.Equal(t, 0, upErr.StatusCode)
	assert.Equal(t, KindUpstream, ErrorKind(s.Err()))
}

func TestStreamOversizedFrame(t *testing.T) {
	body := "data: " + strings.Repeat("a", maxFrameSize+1)
	s := NewStream(io.NopCloser(strings.NewReader(body)), discardLogger())
	defer s.Close()

	assert.Empty(t, collect(s))
	var protoErr *ProtocolError
	assert.ErrorAs(t, s.Err(), &protoErr)
}

func TestStreamClose(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(deltaFrame("a") + deltaFrame("b"))}
	s := NewStream(body, discardLogger())

	require.True(t, s.Next())
	assert.Equal(t, "a", s.Current())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closed)
	assert.False(t, s.Next(), "closed stream yields nothing")
	assert.Equal(t, "", s.Current())
	assert.NotEmpty(t, s.ID())
}
