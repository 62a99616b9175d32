package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizforge-backend/internal/models"
)

func TestNormalizeQuestionType(t *testing.T) {
	tests := []struct {
		in   string
		want models.QuestionType
	}{
		// canonical names
		{"MCQ", models.QuestionTypeMCQ},
		{"TrueFalse", models.QuestionTypeTrueFalse},
		{"ShortAnswer", models.QuestionTypeShortAnswer},
		{"Essay", models.QuestionTypeEssay},
		{"FillInTheBlank", models.QuestionTypeFillInTheBlank},
		{"true_false", models.QuestionTypeTrueFalse},
		{"short-answer", models.QuestionTypeShortAnswer},
		{"fill in the blank", models.QuestionTypeFillInTheBlank},

		// keywords
		{"Multiple Choice", models.QuestionTypeMCQ},
		{"single choice", models.QuestionTypeMCQ},
		{"multiple-select", models.QuestionTypeMCQ},
		{"True/False", models.QuestionTypeTrueFalse},
		{"false statement", models.QuestionTypeTrueFalse},
		{"Short answer question", models.QuestionTypeShortAnswer},
		{"Long answer", models.QuestionTypeEssay},
		{"essay question", models.QuestionTypeEssay},
		{"blanks", models.QuestionTypeFillInTheBlank},
		{"Fill the true word", models.QuestionTypeFillInTheBlank},
		{"Multiple choice (pick the false statement)", models.QuestionTypeMCQ},
		{"Multiple Choice - True statements", models.QuestionTypeMCQ},
		{"MCQ: which is false?", models.QuestionTypeMCQ},

		// default
		{"", DefaultQuestionType},
		{"   ", DefaultQuestionType},
		{"matching", DefaultQuestionType},
		{"numerical", DefaultQuestionType},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeQuestionType(tc.in))
		})
	}
}

func TestQuizAssembler_Assemble(t *testing.T) {
	a := NewQuizAssembler()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	req := &models.GenerationRequest{
		Topic:       "Photosynthesis",
		Difficulty:  "Easy",
		TotalMarks:  9,
		ExamStyleID: "board",
	}
	raw := &RawQuiz{
		Title: "Light Reactions",
		Questions: []RawQuestion{
			{Text: "Which pigment absorbs light?", Type: "Multiple Choice", Options: LooseStrings{"Chlorophyll", "Keratin", "Insulin", "Melanin"}, CorrectAnswer: "Chlorophyll", Explanation: "Chlorophyll captures light.", Marks: 4},
			{Text: "Plants release oxygen.", Type: "true/false", Options: LooseStrings{"True", "False"}, CorrectAnswer: "True", Marks: 0},
			{Text: "Define stomata.", Marks: -2},
		},
	}

	var progress []int
	quiz := a.Assemble(req, raw, func(done int) { progress = append(progress, done) })

	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, "Light Reactions", quiz.Title)
	assert.Equal(t, "Photosynthesis", quiz.Topic)
	assert.Equal(t, "Easy", quiz.Difficulty)
	assert.Equal(t, 9, quiz.TotalMarks)
	assert.Equal(t, 3, quiz.TotalQuestions)
	assert.Equal(t, "Board Exam", quiz.ExamStyle)
	assert.Equal(t, fixed, quiz.CreatedAt)
	assert.Nil(t, quiz.ID)
	require.Len(t, quiz.Questions, 3)

	first := quiz.Questions[0]
	assert.Equal(t, models.QuestionTypeMCQ, first.Type)
	assert.Equal(t, raw.Questions[0].Text, first.Text)
	assert.Equal(t, []string{"Chlorophyll", "Keratin", "Insulin", "Melanin"}, first.Options)
	assert.Equal(t, "Chlorophyll", first.CorrectAnswer)
	assert.Equal(t, "Chlorophyll captures light.", first.Explanation)
	assert.Equal(t, 4, first.Marks)

	assert.Equal(t, models.QuestionTypeTrueFalse, quiz.Questions[1].Type)
	assert.Equal(t, 1, quiz.Questions[1].Marks)

	third := quiz.Questions[2]
	assert.Equal(t, models.QuestionTypeMCQ, third.Type)
	assert.NotNil(t, third.Options)
	assert.Empty(t, third.Options)
	assert.Equal(t, 1, third.Marks)

	ids := map[string]bool{}
	for _, q := range quiz.Questions {
		assert.NotEmpty(t, q.ID)
		ids[q.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestQuizAssembler_TitleFallback(t *testing.T) {
	a := NewQuizAssembler()
	raw := &RawQuiz{Questions: []RawQuestion{{Text: "q"}}}

	assert.Equal(t, "Cells Quiz", a.Assemble(&models.GenerationRequest{Topic: "Cells"}, raw, nil).Title)
	assert.Equal(t, "Generated Quiz", a.Assemble(&models.GenerationRequest{Topic: "attached document"}, raw, nil).Title)
}
