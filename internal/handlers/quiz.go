package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quizforge-backend/internal/middleware"
	"quizforge-backend/internal/models"
	"quizforge-backend/internal/progress"
	"quizforge-backend/internal/services"
)

const (
	maxRequestBytes  = 64 << 20
	maxQuestionCount = 100
)

type QuizGenerator interface {
	Generate(ctx context.Context, user *models.User, req *models.GenerationRequest, progress services.ProgressEmitter) (*models.QuizResult, error)
}

type QuizStore interface {
	Save(ctx context.Context, userID uuid.UUID, q *models.QuizResult) error
}

type UsageRecorder interface {
	RecordGeneration(ctx context.Context, userID uuid.UUID) (int64, error)
}

// MirrorFunc returns an extra sink that follows a user's generation, or nil.
type MirrorFunc func(userID uuid.UUID) progress.Sink

type QuizHandler struct {
	generator QuizGenerator
	store     QuizStore
	usage     UsageRecorder
	mirror    MirrorFunc
	logger    *zap.Logger
}

// NewQuizHandler accepts nil for store, usage and mirror.
func NewQuizHandler(generator QuizGenerator, store QuizStore, usage UsageRecorder, mirror MirrorFunc, logger *zap.Logger) *QuizHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizHandler{
		generator: generator,
		store:     store,
		usage:     usage,
		mirror:    mirror,
		logger:    logger.With(zap.String("component", "quiz_handler")),
	}
}

// Generate validates the request as plain JSON, then switches the response to
// an event stream that ends with exactly one complete or error frame.
func (h *QuizHandler) Generate(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", "Authentication required", r))
		return
	}

	var req models.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if fields := validateGenerationRequest(&req); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	sse, err := progress.NewSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Streaming unsupported", r))
		return
	}

	sinks := []progress.Sink{sse}
	if h.mirror != nil {
		if s := h.mirror(user.ID); s != nil {
			sinks = append(sinks, s)
		}
	}
	pub := progress.NewPublisher(h.logger, sinks...)

	// The generation outlives a disconnected client.
	ctx := context.WithoutCancel(r.Context())
	log := h.logger.With(zap.String("user_id", user.ID.String()))

	quiz, err := h.generator.Generate(ctx, user, &req, pub)
	if err != nil {
		log.Error("quiz generation failed", zap.Error(err))
		pub.Fail(ctx, err.Error())
		return
	}

	if h.store != nil {
		if err := h.store.Save(ctx, user.ID, quiz); err != nil {
			log.Error("failed to save quiz", zap.Error(err))
			pub.Fail(ctx, "Failed to save quiz")
			return
		}
	}

	pub.Complete(ctx, quiz)

	if h.usage != nil {
		if _, err := h.usage.RecordGeneration(ctx, user.ID); err != nil {
			log.Warn("failed to record usage", zap.Error(err))
		}
	}
}

func validateGenerationRequest(req *models.GenerationRequest) map[string]string {
	fields := map[string]string{}

	if req.QuestionCount < 1 || req.QuestionCount > maxQuestionCount {
		fields["questionCount"] = "must be between 1 and 100"
	}
	if req.TotalMarks < 0 {
		fields["totalMarks"] = "must not be negative"
	}
	if strings.TrimSpace(req.Topic) == "" && len(req.FileData) == 0 && strings.TrimSpace(req.YoutubeURL) == "" {
		fields["topic"] = "topic, fileData or youtubeUrl is required"
	}
	if err := services.ValidateAttachments(req.FileData); err != nil {
		fields["fileData"] = err.Error()
	}

	return fields
}
