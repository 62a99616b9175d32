package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TransportSelector picks between the single-shot and the streaming endpoint
// for one generation and reduces the response to a RawQuiz.
type TransportSelector struct {
	provider  ContentProvider
	retrier   *Retrier
	ingester  *StreamIngester
	recoverer *Recoverer
	timeout   time.Duration
	logger    *zap.Logger
}

// NewTransportSelector applies timeout to every upstream call; zero disables it.
func NewTransportSelector(provider ContentProvider, retrier *Retrier, ingester *StreamIngester, recoverer *Recoverer, timeout time.Duration, logger *zap.Logger) *TransportSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ingester == nil {
		ingester = NewStreamIngester(0)
	}
	if recoverer == nil {
		recoverer = NewRecoverer(nil)
	}
	return &TransportSelector{
		provider:  provider,
		retrier:   retrier,
		ingester:  ingester,
		recoverer: recoverer,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "transport")),
	}
}

// Generate runs lite routes through the retried single-shot call. Other
// routes get one streaming attempt, and any failure there falls back to the
// single-shot call. onStream receives streaming progress percentages.
func (t *TransportSelector) Generate(ctx context.Context, route ModelRoute, payload *GenerateRequest, onStream func(percentage int)) (*RawQuiz, error) {
	if route.Lite {
		return t.single(ctx, route, payload)
	}

	quiz, err := t.stream(ctx, route, payload, onStream)
	if err == nil {
		return quiz, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	t.logger.Warn("streaming generation failed, falling back to single-shot",
		zap.String("model", route.Model),
		zap.Error(err),
	)
	return t.single(ctx, route, payload)
}

func (t *TransportSelector) single(ctx context.Context, route ModelRoute, payload *GenerateRequest) (*RawQuiz, error) {
	resp, err := Retry(ctx, t.retrier, func(ctx context.Context) (*GenerateResponse, error) {
		callCtx, cancel := t.callContext(ctx)
		defer cancel()
		return t.provider.Generate(callCtx, route, payload)
	})
	if err != nil {
		return nil, err
	}

	for i, cand := range resp.Candidates {
		quiz, err := t.recoverer.Recover(cand.Text())
		if err == nil {
			return quiz, nil
		}
		t.logger.Warn("candidate rejected",
			zap.Int("candidate", i),
			zap.String("finish_reason", cand.FinishReason),
			zap.Error(err),
		)
	}
	return nil, &NoValidCandidateError{Candidates: len(resp.Candidates)}
}

func (t *TransportSelector) stream(ctx context.Context, route ModelRoute, payload *GenerateRequest, onStream func(percentage int)) (*RawQuiz, error) {
	callCtx, cancel := t.callContext(ctx)
	defer cancel()

	// One candidate per stream; the single-shot path scans several.
	streamPayload := *payload
	streamPayload.GenerationConfig.CandidateCount = 1

	body, err := t.provider.Stream(callCtx, route, &streamPayload)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	text, err := t.ingester.Ingest(body, onStream)
	if err != nil {
		return nil, err
	}
	return t.recoverer.Recover(text)
}

func (t *TransportSelector) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}
