package models

import "encoding/json"

// ProgressEvent is one stage update published while a quiz is generated.
type ProgressEvent struct {
	Stage              string `json:"stage"`
	Percentage         int    `json:"percentage"`
	QuestionsGenerated *int   `json:"questionsGenerated"`
}

type FrameType string

const (
	FrameProgress FrameType = "progress"
	FrameComplete FrameType = "complete"
	FrameError    FrameType = "error"
)

// Frame is the union written to the event stream. Exactly one of the
// payload groups is populated, selected by Type.
type Frame struct {
	Type FrameType

	// progress
	Stage              string
	Percentage         int
	QuestionsGenerated *int

	// complete
	Data *QuizResult

	// error
	Message string
}

func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameComplete:
		return json.Marshal(struct {
			Type FrameType   `json:"type"`
			Data *QuizResult `json:"data"`
		}{f.Type, f.Data})
	case FrameError:
		return json.Marshal(struct {
			Type    FrameType `json:"type"`
			Message string    `json:"message"`
		}{f.Type, f.Message})
	default:
		return json.Marshal(struct {
			Type               FrameType `json:"type"`
			Stage              string    `json:"stage"`
			Percentage         int       `json:"percentage"`
			QuestionsGenerated *int      `json:"questionsGenerated"`
		}{FrameProgress, f.Stage, f.Percentage, f.QuestionsGenerated})
	}
}

func ProgressFrame(ev ProgressEvent) Frame {
	return Frame{
		Type:               FrameProgress,
		Stage:              ev.Stage,
		Percentage:         ev.Percentage,
		QuestionsGenerated: ev.QuestionsGenerated,
	}
}

func CompleteFrame(quiz *QuizResult) Frame {
	return Frame{Type: FrameComplete, Data: quiz}
}

func ErrorFrame(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
