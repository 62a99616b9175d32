package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quizforge-backend/internal/models"
)

const (
	StageInitializing = "Initializing"
	StageTranscript   = "Fetching video transcript"
	StageProcessing   = "Processing input"
	StageGenerating   = "Generating questions"
	StageStreaming    = "Streaming response"
	StageParsing      = "Parsing response"
	StageFormatting   = "Formatting & validating"
	StageFinalizing   = "Finalizing"
)

const (
	pctInitializing = 5
	pctTranscript   = 10
	pctProcessing   = 15
	pctGenerating   = 25
	pctParsing      = 70
	pctFormatSpan   = 15
	pctFinalizing   = 95
)

// ProgressEmitter receives stage updates. Implementations must not block the
// pipeline on a slow or disconnected listener.
type ProgressEmitter interface {
	Emit(ctx context.Context, ev models.ProgressEvent)
}

// QuizGenerator runs one generation from request to QuizResult. It holds no
// per-request state and is shared across requests.
type QuizGenerator struct {
	router    *TierRouter
	prompts   *PromptAssembler
	transport *TransportSelector
	quizzes   *QuizAssembler
	timeout   time.Duration
	logger    *zap.Logger
}

func NewQuizGenerator(router *TierRouter, prompts *PromptAssembler, transport *TransportSelector, quizzes *QuizAssembler, timeout time.Duration, logger *zap.Logger) *QuizGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if quizzes == nil {
		quizzes = NewQuizAssembler()
	}
	return &QuizGenerator{
		router:    router,
		prompts:   prompts,
		transport: transport,
		quizzes:   quizzes,
		timeout:   timeout,
		logger:    logger.With(zap.String("component", "quiz_generator")),
	}
}

// Generate emits progress stages up to Finalizing. The terminal complete or
// error frame belongs to the caller, which may still persist the result.
func (g *QuizGenerator) Generate(ctx context.Context, user *models.User, req *models.GenerationRequest, progress ProgressEmitter) (*models.QuizResult, error) {
	emit := func(stage string, pct int) {
		progress.Emit(ctx, models.ProgressEvent{Stage: stage, Percentage: pct})
	}

	emit(StageInitializing, pctInitializing)

	if req.YoutubeURL != "" {
		emit(StageTranscript, pctTranscript)
	}

	assembleCtx, cancel := g.assembleContext(ctx)
	payload, err := g.prompts.Assemble(assembleCtx, req)
	cancel()
	if err != nil {
		g.logger.Error("failed to assemble prompt", zap.Error(err))
		return nil, err
	}
	emit(StageProcessing, pctProcessing)

	route := g.router.Route(user)
	g.logger.Info("generating quiz",
		zap.String("tier", string(route.Tier)),
		zap.String("model", route.Model),
		zap.Bool("lite", route.Lite),
		zap.Int("question_count", req.QuestionCount),
	)
	emit(StageGenerating, pctGenerating)

	raw, err := g.transport.Generate(ctx, route, payload, func(pct int) {
		emit(StageStreaming, pct)
	})
	if err != nil {
		g.logger.Error("quiz generation failed", zap.String("model", route.Model), zap.Error(err))
		return nil, err
	}
	emit(StageParsing, pctParsing)

	total := len(raw.Questions)
	quiz := g.quizzes.Assemble(req, raw, func(done int) {
		n := done
		progress.Emit(ctx, models.ProgressEvent{
			Stage:              StageFormatting,
			Percentage:         pctParsing + pctFormatSpan*done/total,
			QuestionsGenerated: &n,
		})
	})

	emit(StageFinalizing, pctFinalizing)
	return quiz, nil
}

func (g *QuizGenerator) assembleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
