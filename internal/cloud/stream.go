package cloud

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Stream decodes content deltas from a server-sent event body.
type Stream struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newStream(rc io.ReadCloser) *Stream {
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{rc: rc, scanner: sc}
}

// Next returns the next non-empty content delta. It returns io.EOF after the
// [DONE] marker and io.ErrUnexpectedEOF if the body ends without one.
func (s *Stream) Next() (string, error) {
	for !s.done {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", fmt.Errorf("reading stream: %w", err)
			}
			return "", io.ErrUnexpectedEOF
		}

		line := s.scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Comments, event names and blank separators.
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			s.done = true
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", errors.New("provider stream error: " + chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if tok := chunk.Choices[0].Delta.Content; tok != "" {
			return tok, nil
		}
	}
	return "", io.EOF
}

// Close releases the response body and its request context.
func (s *Stream) Close() error {
	return s.rc.Close()
}
