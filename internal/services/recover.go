package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawQuiz is the model's output before normalization.
type RawQuiz struct {
	Title     string        `json:"title"`
	Questions []RawQuestion `json:"questions"`
}

type RawQuestion struct {
	Text          string       `json:"text"`
	Type          string       `json:"type"`
	Options       LooseStrings `json:"options"`
	CorrectAnswer LooseString  `json:"correctAnswer"`
	Explanation   string       `json:"explanation"`
	Marks         LooseInt     `json:"marks"`
}

// LooseString accepts a JSON string, number or boolean.
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
	case bytes.Equal(data, []byte("true")):
		*s = "True"
	case bytes.Equal(data, []byte("false")):
		*s = "False"
	default:
		*s = LooseString(data)
	}
	return nil
}

// LooseStrings is an options list whose entries may be numbers or booleans.
type LooseStrings []LooseString

// Strings never returns nil.
func (l LooseStrings) Strings() []string {
	out := make([]string, len(l))
	for i, s := range l {
		out[i] = string(s)
	}
	return out
}

// LooseInt accepts a number or a numeric string. Fractions are rounded and
// anything unreadable becomes 0.
type LooseInt int

func (n *LooseInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*n = 0
		return nil
	}
	*n = LooseInt(math.Round(f))
	return nil
}

// Repairer tries to salvage text that did not parse as a quiz.
type Repairer interface {
	Repair(text string) (*RawQuiz, bool)
}

// Recoverer turns generated text into a RawQuiz.
type Recoverer struct {
	repairer Repairer
}

// NewRecoverer falls back to TruncationRepair when repairer is nil.
func NewRecoverer(repairer Repairer) *Recoverer {
	if repairer == nil {
		repairer = TruncationRepair{}
	}
	return &Recoverer{repairer: repairer}
}

func (r *Recoverer) Recover(text string) (*RawQuiz, error) {
	cleaned := stripCodeFences(text)
	if cleaned == "" {
		return nil, &ParseError{Err: fmt.Errorf("empty response text")}
	}

	quiz, err := decodeRawQuiz(cleaned)
	if err != nil {
		repaired, ok := r.repairer.Repair(cleaned)
		if !ok {
			return nil, &ParseError{Err: err}
		}
		quiz = repaired
	}

	if len(quiz.Questions) == 0 {
		return nil, &EmptyResultError{}
	}
	return quiz, nil
}

// decodeRawQuiz also accepts a bare array of questions.
func decodeRawQuiz(s string) (*RawQuiz, error) {
	if strings.HasPrefix(s, "[") {
		var questions []RawQuestion
		if err := json.Unmarshal([]byte(s), &questions); err != nil {
			return nil, err
		}
		return &RawQuiz{Questions: questions}, nil
	}

	var quiz RawQuiz
	if err := json.Unmarshal([]byte(s), &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s != "" && s[0] != '{' && s[0] != '[' {
		if i := strings.IndexAny(s, "{["); i >= 0 {
			s = s[i:]
		}
	}
	return s
}

// TruncationRepair handles output cut off mid-question: it closes every open
// array and object after the last complete question and reparses. Braces
// inside JSON strings are not structure, so code-heavy question text does
// not confuse the cut.
type TruncationRepair struct{}

func (TruncationRepair) Repair(text string) (*RawQuiz, bool) {
	cuts := elementEnds(text)
	for i := len(cuts) - 1; i >= 0; i-- {
		c := cuts[i]
		if quiz, err := decodeRawQuiz(text[:c.end] + c.closers); err == nil && len(quiz.Questions) > 0 {
			return quiz, true
		}
	}
	return nil, false
}

// cutPoint is the end of an object that sits directly inside an array,
// with the closers that would make the prefix up to it complete.
type cutPoint struct {
	end     int
	closers string
}

func elementEnds(text string) []cutPoint {
	var (
		stack    []byte
		cuts     []cutPoint
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return cuts
			}
			stack = stack[:len(stack)-1]
			if c == '}' && len(stack) > 0 && stack[len(stack)-1] == '[' {
				cuts = append(cuts, cutPoint{end: i + 1, closers: closersFor(stack)})
			}
		}
	}
	return cuts
}

func closersFor(stack []byte) string {
	b := make([]byte, 0, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '[' {
			b = append(b, ']')
		} else {
			b = append(b, '}')
		}
	}
	return string(b)
}
