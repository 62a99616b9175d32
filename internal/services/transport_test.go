package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider scripts ContentProvider responses by call number (starting at 1).
type fakeProvider struct {
	mu            sync.Mutex
	generate      func(ctx context.Context, call int) (*GenerateResponse, error)
	stream        func(ctx context.Context, call int) (io.ReadCloser, error)
	generateCalls int
	streamCalls   int
	streamed      []*GenerateRequest
}

func (f *fakeProvider) Generate(ctx context.Context, _ ModelRoute, _ *GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	f.generateCalls++
	call := f.generateCalls
	f.mu.Unlock()
	if f.generate == nil {
		return nil, errors.New("generate not scripted")
	}
	return f.generate(ctx, call)
}

func (f *fakeProvider) Stream(ctx context.Context, _ ModelRoute, req *GenerateRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.streamCalls++
	f.streamed = append(f.streamed, req)
	call := f.streamCalls
	f.mu.Unlock()
	if f.stream == nil {
		return nil, errors.New("stream not scripted")
	}
	return f.stream(ctx, call)
}

func candidates(texts ...string) *GenerateResponse {
	resp := &GenerateResponse{}
	for i, text := range texts {
		resp.Candidates = append(resp.Candidates, Candidate{
			Index:        i,
			Content:      &Content{Role: "model", Parts: []Part{{Text: text}}},
			FinishReason: "STOP",
		})
	}
	return resp
}

// streamBody splits text across two partial responses, the way the
// streaming endpoint delivers it.
func streamBody(t *testing.T, text string) io.ReadCloser {
	t.Helper()
	half := len(text) / 2
	raw, err := json.Marshal([]*GenerateResponse{candidates(text[:half]), candidates(text[half:])})
	require.NoError(t, err)
	return io.NopCloser(strings.NewReader(string(raw)))
}

func newTestSelector(p ContentProvider, timeout time.Duration) *TransportSelector {
	r, _ := recordingRetrier(5, time.Second, 0)
	return NewTransportSelector(p, r, NewStreamIngester(256), NewRecoverer(nil), timeout, nil)
}

var (
	liteRoute   = ModelRoute{Model: "gemini-2.0-flash-lite", APIKey: "k", Lite: true}
	streamRoute = ModelRoute{Model: "gemini-2.0-flash", APIKey: "k"}
)

func TestTransportSelector_LitePicksFirstValidCandidate(t *testing.T) {
	p := &fakeProvider{
		generate: func(context.Context, int) (*GenerateResponse, error) {
			return candidates("not json", `{"title":"empty","questions":[]}`, quizJSON(2), quizJSON(3)), nil
		},
	}

	quiz, err := newTestSelector(p, 0).Generate(context.Background(), liteRoute, &GenerateRequest{}, nil)
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, 2)
	assert.Equal(t, 1, p.generateCalls)
	assert.Zero(t, p.streamCalls)
}

func TestTransportSelector_LiteNoValidCandidate(t *testing.T) {
	p := &fakeProvider{
		generate: func(context.Context, int) (*GenerateResponse, error) {
			return candidates("nope", "```json\n{}\n```"), nil
		},
	}

	_, err := newTestSelector(p, 0).Generate(context.Background(), liteRoute, &GenerateRequest{}, nil)
	var nvc *NoValidCandidateError
	require.True(t, errors.As(err, &nvc))
	assert.Equal(t, 2, nvc.Candidates)
	assert.Equal(t, 1, p.generateCalls, "a bad candidate set is not retried")
}

func TestTransportSelector_LiteRetriesTransientFailures(t *testing.T) {
	p := &fakeProvider{
		generate: func(_ context.Context, call int) (*GenerateResponse, error) {
			if call < 3 {
				return nil, newStatusError(http.StatusTooManyRequests, "slow down")
			}
			return candidates(quizJSON(1)), nil
		},
	}

	quiz, err := newTestSelector(p, 0).Generate(context.Background(), liteRoute, &GenerateRequest{}, nil)
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, 1)
	assert.Equal(t, 3, p.generateCalls)
}

func TestTransportSelector_StreamSuccess(t *testing.T) {
	p := &fakeProvider{
		stream: func(context.Context, int) (io.ReadCloser, error) {
			return streamBody(t, quizJSON(4)), nil
		},
	}

	var pcts []int
	quiz, err := newTestSelector(p, 0).Generate(context.Background(), streamRoute, &GenerateRequest{}, func(pct int) {
		pcts = append(pcts, pct)
	})
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, 4)
	assert.Equal(t, 1, p.streamCalls)
	assert.Zero(t, p.generateCalls)
	require.NotEmpty(t, pcts)
	for _, pct := range pcts {
		assert.GreaterOrEqual(t, pct, 30)
		assert.Less(t, pct, 70)
	}
}

func TestTransportSelector_StreamAsksForOneCandidate(t *testing.T) {
	p := &fakeProvider{
		stream: func(context.Context, int) (io.ReadCloser, error) {
			return streamBody(t, quizJSON(2)), nil
		},
	}
	payload := &GenerateRequest{GenerationConfig: GenerationConfig{CandidateCount: 3, Temperature: 0.4}}

	_, err := newTestSelector(p, 0).Generate(context.Background(), streamRoute, payload, nil)
	require.NoError(t, err)
	require.Len(t, p.streamed, 1)
	assert.Equal(t, 1, p.streamed[0].GenerationConfig.CandidateCount)
	assert.Equal(t, float32(0.4), p.streamed[0].GenerationConfig.Temperature)
	assert.Equal(t, 3, payload.GenerationConfig.CandidateCount, "caller's payload is left alone")
}

func TestTransportSelector_StreamFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		stream func(context.Context, int) (io.ReadCloser, error)
	}{
		{"network error", func(context.Context, int) (io.ReadCloser, error) {
			return nil, newNetworkError(errors.New("connection refused"))
		}},
		{"http error", func(context.Context, int) (io.ReadCloser, error) {
			return nil, newStatusError(http.StatusInternalServerError, "boom")
		}},
		{"no body", func(context.Context, int) (io.ReadCloser, error) {
			return nil, ErrNoStreamBody
		}},
		{"empty body", func(context.Context, int) (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader("")), nil
		}},
		{"unparseable text", func(context.Context, int) (io.ReadCloser, error) {
			return streamBody(t, "I'd rather not."), nil
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakeProvider{
				stream: tc.stream,
				generate: func(context.Context, int) (*GenerateResponse, error) {
					return candidates(quizJSON(2)), nil
				},
			}

			quiz, err := newTestSelector(p, 0).Generate(context.Background(), streamRoute, &GenerateRequest{}, nil)
			require.NoError(t, err)
			assert.Len(t, quiz.Questions, 2)
			assert.Equal(t, 1, p.streamCalls, "the stream is tried exactly once")
			assert.Equal(t, 1, p.generateCalls)
		})
	}
}

func TestTransportSelector_FallbackExhaustsRetries(t *testing.T) {
	p := &fakeProvider{
		stream: func(context.Context, int) (io.ReadCloser, error) {
			return nil, newStatusError(http.StatusServiceUnavailable, "overloaded")
		},
		generate: func(context.Context, int) (*GenerateResponse, error) {
			return nil, newStatusError(http.StatusServiceUnavailable, "overloaded")
		},
	}

	_, err := newTestSelector(p, 0).Generate(context.Background(), streamRoute, &GenerateRequest{}, nil)
	var aiErr *AIServiceError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, 5, aiErr.Attempts)
	assert.Equal(t, 1, p.streamCalls)
	assert.Equal(t, 5, p.generateCalls)
}

func TestTransportSelector_PerCallTimeout(t *testing.T) {
	p := &fakeProvider{
		generate: func(ctx context.Context, _ int) (*GenerateResponse, error) {
			<-ctx.Done()
			return nil, newNetworkError(ctx.Err())
		},
	}
	r, _ := recordingRetrier(2, 0, 0)
	s := NewTransportSelector(p, r, nil, nil, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := s.Generate(context.Background(), liteRoute, &GenerateRequest{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, p.generateCalls)
	assert.Less(t, time.Since(start), 5*time.Second)
}
