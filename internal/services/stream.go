package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultEstimatedStreamBytes is a rough size of a streamed quiz body.
	DefaultEstimatedStreamBytes = 20000

	streamProgressFloor = 30
	streamProgressSpan  = 40
	streamProgressCap   = 39

	streamChunkSize = 4096
)

// StreamIngester drains a streamGenerateContent body and rebuilds the
// generated text from its partial responses.
type StreamIngester struct {
	estimatedBytes int
}

func NewStreamIngester(estimatedBytes int) *StreamIngester {
	if estimatedBytes <= 0 {
		estimatedBytes = DefaultEstimatedStreamBytes
	}
	return &StreamIngester{estimatedBytes: estimatedBytes}
}

// StreamProgress maps bytes read so far onto 30..69.
func (s *StreamIngester) StreamProgress(bytesSoFar int) int {
	return streamProgressFloor + min(streamProgressCap, streamProgressSpan*bytesSoFar/s.estimatedBytes)
}

// Ingest reads body until EOF. onProgress, when set, is called each time the
// percentage moves. The body is parsed once, after it has been fully read.
func (s *StreamIngester) Ingest(body io.Reader, onProgress func(percentage int)) (string, error) {
	if body == nil {
		return "", ErrNoStreamBody
	}

	var acc strings.Builder
	buf := make([]byte, streamChunkSize)
	total := 0
	last := -1

	for {
		n, err := body.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			total += n
			if pct := s.StreamProgress(total); pct != last && onProgress != nil {
				onProgress(pct)
				last = pct
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", newNetworkError(fmt.Errorf("read stream: %w", err))
		}
	}

	if total == 0 {
		return "", ErrNoStreamBody
	}

	var chunks []GenerateResponse
	if err := json.Unmarshal([]byte(acc.String()), &chunks); err != nil {
		return "", &ParseError{Err: fmt.Errorf("decode stream body: %w", err)}
	}

	// Chunks of different candidates may interleave; only candidate 0 is kept.
	var text strings.Builder
	for _, chunk := range chunks {
		for _, cand := range chunk.Candidates {
			if cand.Index == 0 {
				text.WriteString(cand.Text())
			}
		}
	}
	return text.String(), nil
}
