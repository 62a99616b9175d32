package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizforge-backend/internal/models"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

func (r *recordingEmitter) Emit(_ context.Context, ev models.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) stages() []string {
	var out []string
	for _, ev := range r.events {
		if len(out) == 0 || out[len(out)-1] != ev.Stage {
			out = append(out, ev.Stage)
		}
	}
	return out
}

func assertNonDecreasing(t *testing.T, events []models.ProgressEvent) {
	t.Helper()
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percentage, events[i-1].Percentage,
			"event %d (%s) went backwards", i, events[i].Stage)
	}
}

func mcqQuizJSON(n, marks int) string {
	qs := make([]string, n)
	for i := range qs {
		qs[i] = fmt.Sprintf(`{"text":"Q%d","type":"MCQ","options":["w","x","y","z"],"correctAnswer":"w","explanation":"e","marks":%d}`, i+1, marks)
	}
	return `{"title":"Photosynthesis Basics","questions":[` + strings.Join(qs, ",") + `]}`
}

func newTestGenerator(p ContentProvider, transcripts TranscriptFetcher) *QuizGenerator {
	return NewQuizGenerator(
		testRouter(),
		NewPromptAssembler(transcripts, nil, 1),
		newTestSelector(p, time.Minute),
		NewQuizAssembler(),
		time.Minute,
		nil,
	)
}

func freeUser() *models.User { return &models.User{ID: uuid.New(), Tier: models.TierFree} }
func basicUser() *models.User { return &models.User{ID: uuid.New(), Tier: models.TierBasic} }

func photosynthesisRequest() *models.GenerationRequest {
	return &models.GenerationRequest{
		Topic:         "Photosynthesis",
		Difficulty:    "Easy",
		QuestionCount: 3,
		Types:         []string{"MCQ"},
		TotalMarks:    9,
		ExamStyleID:   "standard",
	}
}

func TestQuizGenerator_ScenarioA_LiteTransport(t *testing.T) {
	p := &fakeProvider{
		generate: func(context.Context, int) (*GenerateResponse, error) {
			return candidates(mcqQuizJSON(3, 3)), nil
		},
	}
	progress := &recordingEmitter{}

	quiz, err := newTestGenerator(p, nil).Generate(context.Background(), freeUser(), photosynthesisRequest(), progress)
	require.NoError(t, err)

	assert.Len(t, quiz.Questions, 3)
	assert.Equal(t, 9, quiz.TotalMarks)
	assert.Equal(t, 3, quiz.TotalQuestions)
	ids := map[string]bool{}
	for _, q := range quiz.Questions {
		ids[q.ID] = true
		assert.Equal(t, models.QuestionTypeMCQ, q.Type)
		assert.Equal(t, 3, q.Marks)
	}
	assert.Len(t, ids, 3)
	assert.Zero(t, p.streamCalls)

	assert.Equal(t, []string{
		StageInitializing, StageProcessing, StageGenerating, StageParsing, StageFormatting, StageFinalizing,
	}, progress.stages())
	assertNonDecreasing(t, progress.events)

	var counts []int
	for _, ev := range progress.events {
		if ev.Stage == StageFormatting {
			require.NotNil(t, ev.QuestionsGenerated)
			counts = append(counts, *ev.QuestionsGenerated)
			assert.LessOrEqual(t, ev.Percentage, 85)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, counts)
	assert.Equal(t, 95, progress.events[len(progress.events)-1].Percentage)
}

func TestQuizGenerator_ScenarioB_StreamFallsBackToSingleShot(t *testing.T) {
	p := &fakeProvider{
		stream: func(context.Context, int) (io.ReadCloser, error) {
			return nil, newNetworkError(errors.New("read: connection reset by peer"))
		},
		generate: func(context.Context, int) (*GenerateResponse, error) {
			return candidates(mcqQuizJSON(3, 3)), nil
		},
	}
	progress := &recordingEmitter{}

	quiz, err := newTestGenerator(p, nil).Generate(context.Background(), basicUser(), photosynthesisRequest(), progress)
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, 3)
	assert.Equal(t, 1, p.streamCalls)
	assert.Equal(t, 1, p.generateCalls)
	assertNonDecreasing(t, progress.events)
}

func TestQuizGenerator_StreamingProgress(t *testing.T) {
	p := &fakeProvider{
		stream: func(context.Context, int) (io.ReadCloser, error) {
			return streamBody(t, mcqQuizJSON(3, 3)), nil
		},
	}
	progress := &recordingEmitter{}

	_, err := newTestGenerator(p, nil).Generate(context.Background(), basicUser(), photosynthesisRequest(), progress)
	require.NoError(t, err)
	assert.Contains(t, progress.stages(), StageStreaming)
	assertNonDecreasing(t, progress.events)
}

func TestQuizGenerator_ScenarioC_ExhaustedRetries(t *testing.T) {
	overloaded := newStatusError(http.StatusServiceUnavailable, "The model is overloaded")
	p := &fakeProvider{
		generate: func(context.Context, int) (*GenerateResponse, error) {
			return nil, overloaded
		},
	}

	_, err := newTestGenerator(p, nil).Generate(context.Background(), freeUser(), photosynthesisRequest(), &recordingEmitter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 5 retry attempts")
	assert.Equal(t, 5, p.generateCalls)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
}

func TestQuizGenerator_ScenarioD_TranscriptFailure(t *testing.T) {
	p := &fakeProvider{}
	transcripts := &fakeTranscripts{err: errors.New("video unavailable")}
	progress := &recordingEmitter{}

	req := photosynthesisRequest()
	req.YoutubeURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	_, err := newTestGenerator(p, transcripts).Generate(context.Background(), basicUser(), req, progress)
	var tfe *TranscriptFetchError
	require.True(t, errors.As(err, &tfe))
	assert.Zero(t, p.generateCalls)
	assert.Zero(t, p.streamCalls)
	assert.Equal(t, []string{StageInitializing, StageTranscript}, progress.stages())
}
