package ai

import (
	"bufio"
	"io"
	"strings"
)

// Stream is a pull cursor over a framed event stream of text deltas. Each
// Recv returns one non-empty fragment; io.EOF marks the end of the sequence,
// whether the terminal sentinel arrived or the transport closed early. No
// fragment is ever fabricated. Streams are finite and cannot be restarted.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	decode  func(data []byte) (string, bool)
	done    bool
}

const sentinel = "[DONE]"

func newStream(body io.ReadCloser, decode func([]byte) (string, bool)) *Stream {
	sc := bufio.NewScanner(body)
	// Long deltas can exceed the default token size.
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)
	return &Stream{body: body, scanner: sc, decode: decode}
}

func (s *Stream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == sentinel {
			s.done = true
			return "", io.EOF
		}
		// Malformed frames are skipped, not fatal to the sequence.
		delta, ok := s.decode([]byte(data))
		if !ok || delta == "" {
			continue
		}
		return delta, nil
	}
	// Transport ended without the sentinel: the sequence simply ends.
	s.done = true
	return "", io.EOF
}

func (s *Stream) Close() error {
	return s.body.Close()
}
