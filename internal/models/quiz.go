package models

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMCQ            QuestionType = "MCQ"
	QuestionTypeTrueFalse      QuestionType = "TrueFalse"
	QuestionTypeShortAnswer    QuestionType = "ShortAnswer"
	QuestionTypeEssay          QuestionType = "Essay"
	QuestionTypeFillInTheBlank QuestionType = "FillInTheBlank"
)

// Attachment is one uploaded document, base64 encoded.
type Attachment struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Attachments accepts either a single object or an array on the wire.
type Attachments []Attachment

func (a *Attachments) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = nil
		return nil
	}
	if trimmed[0] == '{' {
		var one Attachment
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*a = Attachments{one}
		return nil
	}
	var many []Attachment
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*a = many
	return nil
}

type GenerationRequest struct {
	Topic         string      `json:"topic"`
	Difficulty    string      `json:"difficulty"`
	QuestionCount int         `json:"questionCount"`
	Types         []string    `json:"types"`
	TotalMarks    int         `json:"totalMarks"`
	ExamStyleID   string      `json:"examStyleId"`
	FileData      Attachments `json:"fileData,omitempty"`
	YoutubeURL    string      `json:"youtubeUrl,omitempty"`
}

type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Text          string       `json:"text"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correctAnswer"`
	Explanation   string       `json:"explanation"`
	Marks         int          `json:"marks"`
}

// QuizResult is the finished quiz. ID is only set once a store has accepted it.
type QuizResult struct {
	ID             *uuid.UUID `json:"id,omitempty"`
	Title          string     `json:"title"`
	Topic          string     `json:"topic"`
	Difficulty     string     `json:"difficulty"`
	Questions      []Question `json:"questions"`
	CreatedAt      time.Time  `json:"createdAt"`
	TotalQuestions int        `json:"totalQuestions"`
	TotalMarks     int        `json:"totalMarks"`
	ExamStyle      string     `json:"examStyle"`
}
