package groqclient

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/elee1766/chatrelay/src/aisdk"
)

var _ aisdk.StreamInterface = (*sseStream)(nil)

const maxEventSize = 1 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// sseStream decodes an OpenAI style text/event-stream body into chunks.
type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	logger *slog.Logger

	mu     sync.Mutex
	done   bool
	closed bool
	chunks int
}

func newSSEStream(body io.ReadCloser, logger *slog.Logger) *sseStream {
	return &sseStream{
		body:   body,
		reader: bufio.NewReaderSize(body, 64*1024),
		logger: logger,
	}
}

// streamEvent is the union of a normal chunk and an in-band error event.
type streamEvent struct {
	aisdk.StreamChunk
	Error *ErrorBody `json:"error,omitempty"`
}

// Read returns the next chunk, io.EOF once the stream reached [DONE] or the
// body ended.
func (s *sseStream) Read() (*aisdk.StreamChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.done {
		return nil, io.EOF
	}

	for {
		line, err := s.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				s.logger.Debug("stream ended without done marker", "chunks", s.chunks)
				return nil, io.EOF
			}
			return nil, fmt.Errorf("failed to read stream: %w", err)
		}

		// Comments, event names and blank separators carry no payload.
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		if bytes.Equal(payload, doneMarker) {
			s.done = true
			s.logger.Debug("stream complete", "chunks", s.chunks)
			return nil, io.EOF
		}

		var event streamEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		if event.Error != nil {
			s.done = true
			return nil, &APIError{
				StatusCode: 200,
				Type:       event.Error.Type,
				Message:    event.Error.Message,
				Code:       event.Error.Code,
				Param:      event.Error.Param,
			}
		}

		s.chunks++
		chunk := event.StreamChunk
		return &chunk, nil
	}
}

// readLine reads one line without its terminator, rejecting oversized events.
func (s *sseStream) readLine() ([]byte, error) {
	var line []byte
	for {
		part, isPrefix, err := s.reader.ReadLine()
		if err != nil {
			if len(line) > 0 && errors.Is(err, io.EOF) {
				return line, nil
			}
			return nil, err
		}
		line = append(line, part...)
		if len(line) > maxEventSize {
			return nil, fmt.Errorf("stream event exceeds %d bytes", maxEventSize)
		}
		if !isPrefix {
			return line, nil
		}
	}
}

// Close releases the underlying response body.
func (s *sseStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
