package progress

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"quizforge-backend/internal/models"
)

// Sink delivers frames to one listener.
type Sink interface {
	Send(ctx context.Context, frame models.Frame) error
}

// Publisher fans progress for a single generation out to its sinks. It keeps
// percentages non-decreasing and ends after one terminal frame. Sink errors
// are logged and dropped; generation carries on without listeners.
type Publisher struct {
	mu       sync.Mutex
	sinks    []Sink
	last     int
	finished bool
	logger   *zap.Logger
}

func NewPublisher(logger *zap.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		sinks:  sinks,
		logger: logger.With(zap.String("component", "progress")),
	}
}

func (p *Publisher) Emit(ctx context.Context, ev models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return
	}

	ev.Percentage = max(min(ev.Percentage, 100), p.last)
	p.last = ev.Percentage
	p.send(ctx, models.ProgressFrame(ev))
}

func (p *Publisher) Complete(ctx context.Context, quiz *models.QuizResult) {
	p.finish(ctx, models.CompleteFrame(quiz))
}

func (p *Publisher) Fail(ctx context.Context, message string) {
	p.finish(ctx, models.ErrorFrame(message))
}

func (p *Publisher) finish(ctx context.Context, frame models.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		p.logger.Warn("terminal frame already sent, dropping", zap.String("type", string(frame.Type)))
		return
	}
	p.finished = true
	p.send(ctx, frame)
}

func (p *Publisher) send(ctx context.Context, frame models.Frame) {
	for _, sink := range p.sinks {
		if err := sink.Send(ctx, frame); err != nil {
			p.logger.Warn("progress write failed",
				zap.String("type", string(frame.Type)),
				zap.String("stage", frame.Stage),
				zap.Error(err),
			)
		}
	}
}
