package llm

import (
	"bytes"
	"errors"
	"io"
)

const (
	readChunkSize = 4 * 1024
	maxFrameSize  = 1 << 20
)

var errFrameTooLarge = errors.New("frame exceeds 1MiB without a newline")

// frameReader cuts an SSE body into lines. Bytes from each read are appended
// to buf; complete lines are taken from its head and a trailing partial line
// stays in buf until the rest of it arrives, however the transport chunks
// the body.
type frameReader struct {
	r     io.Reader
	buf   []byte
	start int // head of unconsumed bytes in buf
	chunk []byte
	eof   bool
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: r, chunk: make([]byte, readChunkSize)}
}

// next returns the next non-empty line without its terminator. The slice is
// only valid until the following call. At the end of the body a trailing
// unterminated line is returned before io.EOF.
func (f *frameReader) next() ([]byte, error) {
	for {
		if i := bytes.IndexByte(f.buf[f.start:], '\n'); i >= 0 {
			line := f.buf[f.start : f.start+i]
			f.start += i + 1
			line = bytes.TrimSuffix(line, []byte("\r"))
			if len(line) == 0 {
				continue
			}
			return line, nil
		}

		if f.eof {
			line := bytes.TrimSuffix(f.buf[f.start:], []byte("\r"))
			f.start = len(f.buf)
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		}

		if len(f.buf)-f.start > maxFrameSize {
			return nil, errFrameTooLarge
		}
		if err := f.fill(); err != nil {
			return nil, err
		}
	}
}

// fill compacts buf and appends one read from the body.
func (f *frameReader) fill() error {
	if f.start > 0 {
		n := copy(f.buf, f.buf[f.start:])
		f.buf = f.buf[:n]
		f.start = 0
	}
	n, err := f.r.Read(f.chunk)
	f.buf = append(f.buf, f.chunk[:n]...)
	if errors.Is(err, io.EOF) {
		f.eof = true
		return nil
	}
	return err
}
