package services

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"quizforge-backend/internal/models"
)

var canonicalQuestionTypes = map[string]models.QuestionType{
	"mcq":            models.QuestionTypeMCQ,
	"truefalse":      models.QuestionTypeTrueFalse,
	"shortanswer":    models.QuestionTypeShortAnswer,
	"essay":          models.QuestionTypeEssay,
	"fillintheblank": models.QuestionTypeFillInTheBlank,
}

// questionTypeKeywords is matched in order against the lowercased type.
// Format words ("fill", "choice") come before content words ("true", "false")
// so "multiple choice (pick the false statement)" stays MCQ.
var questionTypeKeywords = []struct {
	keyword string
	qtype   models.QuestionType
}{
	{"fill", models.QuestionTypeFillInTheBlank},
	{"blank", models.QuestionTypeFillInTheBlank},
	{"choice", models.QuestionTypeMCQ},
	{"multiple", models.QuestionTypeMCQ},
	{"mcq", models.QuestionTypeMCQ},
	{"true", models.QuestionTypeTrueFalse},
	{"false", models.QuestionTypeTrueFalse},
	{"short", models.QuestionTypeShortAnswer},
	{"long", models.QuestionTypeEssay},
	{"essay", models.QuestionTypeEssay},
}

// DefaultQuestionType is used when the model's type is missing or unrecognized.
const DefaultQuestionType = models.QuestionTypeMCQ

func NormalizeQuestionType(raw string) models.QuestionType {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return DefaultQuestionType
	}

	compact := strings.NewReplacer(" ", "", "_", "", "-", "", "/", "").Replace(lower)
	if t, ok := canonicalQuestionTypes[compact]; ok {
		return t
	}

	for _, kw := range questionTypeKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.qtype
		}
	}
	return DefaultQuestionType
}

// QuizAssembler normalizes model output into a QuizResult.
type QuizAssembler struct {
	now   func() time.Time
	newID func() string
}

func NewQuizAssembler() *QuizAssembler {
	return &QuizAssembler{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// Assemble calls onQuestion after each question with the number done so far.
func (a *QuizAssembler) Assemble(req *models.GenerationRequest, raw *RawQuiz, onQuestion func(done int)) *models.QuizResult {
	questions := make([]models.Question, 0, len(raw.Questions))
	for i, rq := range raw.Questions {
		marks := int(rq.Marks)
		if marks <= 0 {
			marks = 1
		}

		questions = append(questions, models.Question{
			ID:            a.newID(),
			Type:          NormalizeQuestionType(rq.Type),
			Text:          rq.Text,
			Options:       rq.Options.Strings(),
			CorrectAnswer: string(rq.CorrectAnswer),
			Explanation:   rq.Explanation,
			Marks:         marks,
		})

		if onQuestion != nil {
			onQuestion(i + 1)
		}
	}

	return &models.QuizResult{
		Title:          quizTitle(raw.Title, req),
		Topic:          req.Topic,
		Difficulty:     req.Difficulty,
		Questions:      questions,
		CreatedAt:      a.now(),
		TotalQuestions: len(questions),
		TotalMarks:     req.TotalMarks,
		ExamStyle:      LookupExamStyle(req.ExamStyleID).Label,
	}
}

func quizTitle(title string, req *models.GenerationRequest) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if !IsDocumentTopic(req.Topic) {
		return strings.TrimSpace(req.Topic) + " Quiz"
	}
	return "Generated Quiz"
}
