package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"quizforge-backend/internal/models"
)

const (
	generationTemperature = 0.4
	// MaxInlineBytes is the decoded size above which a PDF is sent as extracted text.
	MaxInlineBytes = 20 * 1024 * 1024

	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePDF  = "application/pdf"
)

type ExamStyle struct {
	ID          string
	Label       string
	Instruction string
}

var examStyles = map[string]ExamStyle{
	"standard": {
		ID:          "standard",
		Label:       "Standard",
		Instruction: "Write clear, classroom-style questions that test understanding of the core ideas.",
	},
	"board": {
		ID:          "board",
		Label:       "Board Exam",
		Instruction: "Follow the pattern of school board examinations: precise wording, syllabus-aligned concepts, and mark-appropriate depth.",
	},
	"competitive": {
		ID:          "competitive",
		Label:       "Competitive Exam",
		Instruction: "Write tricky, concept-heavy questions in the style of entrance examinations, with plausible distractors.",
	},
	"olympiad": {
		ID:          "olympiad",
		Label:       "Olympiad",
		Instruction: "Write challenging problems that require multi-step reasoning beyond textbook recall.",
	},
	"university": {
		ID:          "university",
		Label:       "University",
		Instruction: "Write questions at undergraduate level that probe analysis, application and critical evaluation.",
	},
	"interview": {
		ID:          "interview",
		Label:       "Interview Prep",
		Instruction: "Phrase questions the way an interviewer would, focusing on practical understanding and trade-offs.",
	},
}

// LookupExamStyle never fails; an unknown id has no instruction.
func LookupExamStyle(id string) ExamStyle {
	key := strings.ToLower(strings.TrimSpace(id))
	if style, ok := examStyles[key]; ok {
		return style
	}
	if key == "" {
		return ExamStyle{ID: "standard", Label: "Standard"}
	}
	return ExamStyle{ID: id, Label: id}
}

// TranscriptFetcher resolves a video URL into plain transcript text.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, videoURL string) (string, error)
}

// PromptAssembler turns a GenerationRequest into the provider payload.
type PromptAssembler struct {
	transcripts    TranscriptFetcher
	extractor      *FileExtractService
	candidateCount int
}

func NewPromptAssembler(transcripts TranscriptFetcher, extractor *FileExtractService, candidateCount int) *PromptAssembler {
	if candidateCount < 1 {
		candidateCount = 1
	}
	if extractor == nil {
		extractor = NewFileExtractService()
	}
	return &PromptAssembler{
		transcripts:    transcripts,
		extractor:      extractor,
		candidateCount: candidateCount,
	}
}

// Assemble fetches the transcript first when a video URL is present; a failed
// fetch is returned as a TranscriptFetchError and nothing else is built.
func (a *PromptAssembler) Assemble(ctx context.Context, req *models.GenerationRequest) (*GenerateRequest, error) {
	var transcript string
	if req.YoutubeURL != "" {
		if a.transcripts == nil {
			return nil, &TranscriptFetchError{URL: req.YoutubeURL, Err: fmt.Errorf("no transcript source configured")}
		}
		t, err := a.transcripts.FetchTranscript(ctx, req.YoutubeURL)
		if err != nil {
			return nil, &TranscriptFetchError{URL: req.YoutubeURL, Err: err}
		}
		transcript = t
	}

	parts := []Part{{Text: buildQuizPrompt(req)}}

	attachmentParts, err := a.attachmentParts(req.FileData)
	if err != nil {
		return nil, err
	}
	parts = append(parts, attachmentParts...)

	if transcript != "" {
		var b strings.Builder
		b.WriteString("Video transcript:\n---TRANSCRIPT START---\n")
		b.WriteString(transcript)
		b.WriteString("\n---TRANSCRIPT END---\n")
		parts = append(parts, Part{Text: b.String()})
	}

	return &GenerateRequest{
		Contents: []Content{{Role: "user", Parts: parts}},
		GenerationConfig: GenerationConfig{
			Temperature:      generationTemperature,
			CandidateCount:   a.candidateCount,
			ResponseMimeType: "application/json",
			ResponseSchema:   quizResponseSchema(),
		},
	}, nil
}

// AttachmentError is a client mistake in fileData, reported before streaming starts.
type AttachmentError struct {
	Index int
	Err   error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("fileData[%d]: %v", e.Index, e.Err)
}

func (e *AttachmentError) Unwrap() error { return e.Err }

// ValidateAttachments checks mime types and base64 payloads without building a prompt.
func ValidateAttachments(files models.Attachments) error {
	for i, f := range files {
		if normalizeMime(f.MimeType) == "" {
			return &AttachmentError{Index: i, Err: fmt.Errorf("mimeType is required")}
		}
		if _, err := base64.StdEncoding.DecodeString(f.Data); err != nil {
			return &AttachmentError{Index: i, Err: fmt.Errorf("data is not valid base64")}
		}
	}
	return nil
}

// attachmentParts keeps the request order. DOCX is never accepted inline by
// the provider, and oversize PDFs exceed the inline limit, so both become text.
func (a *PromptAssembler) attachmentParts(files models.Attachments) ([]Part, error) {
	var parts []Part
	for i, f := range files {
		mime := normalizeMime(f.MimeType)
		if mime == "" {
			return nil, &AttachmentError{Index: i, Err: fmt.Errorf("mimeType is required")}
		}
		raw, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, &AttachmentError{Index: i, Err: fmt.Errorf("data is not valid base64")}
		}

		if mime == mimeDOCX || (mime == mimePDF && len(raw) > MaxInlineBytes) {
			text, err := a.extractor.ExtractText(raw, mime)
			if err != nil {
				return nil, &AttachmentError{Index: i, Err: err}
			}
			parts = append(parts, Part{Text: fmt.Sprintf("Attached document %d:\n---DOCUMENT START---\n%s\n---DOCUMENT END---\n", i+1, text)})
			continue
		}

		parts = append(parts, Part{InlineData: &InlineData{MimeType: mime, Data: f.Data}})
	}
	return parts, nil
}

func normalizeMime(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.Index(m, ";"); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	return m
}

var documentTopicPattern = regexp.MustCompile(`(?i)^\s*(the\s+)?(attached|uploaded)\s+(document|file)s?\s*$`)

// IsDocumentTopic reports whether the topic is the placeholder the client
// sends when the questions should come from the attachments.
func IsDocumentTopic(topic string) bool {
	return strings.TrimSpace(topic) == "" || documentTopicPattern.MatchString(topic)
}

func buildQuizPrompt(req *models.GenerationRequest) string {
	var b strings.Builder
	style := LookupExamStyle(req.ExamStyleID)

	b.WriteString("You are an expert examiner. Create a quiz as structured JSON.\n\n")

	switch {
	case IsDocumentTopic(req.Topic) && len(req.FileData) > 0:
		b.WriteString("Source: base every question strictly on the attached document(s).\n")
	case strings.TrimSpace(req.Topic) == "" && req.YoutubeURL != "":
		b.WriteString("Source: base every question on the video transcript provided below.\n")
	default:
		b.WriteString(fmt.Sprintf("Topic: %s\n", strings.TrimSpace(req.Topic)))
		if len(req.FileData) > 0 || req.YoutubeURL != "" {
			b.WriteString("Use the attached material as the primary source.\n")
		}
	}

	if req.Difficulty != "" {
		b.WriteString(fmt.Sprintf("Difficulty: %s\n", req.Difficulty))
	}

	b.WriteString(fmt.Sprintf("Exam style: %s\n", style.Label))
	if style.Instruction != "" {
		b.WriteString(style.Instruction)
		b.WriteString("\n")
	}

	types := requestedTypes(req.Types)
	b.WriteString(fmt.Sprintf("Question types: %s. Distribute the questions across these types.\n", strings.Join(types, ", ")))
	if req.TotalMarks > 0 {
		b.WriteString(fmt.Sprintf("Total marks: %d. Distribute them across the questions so they add up to exactly %d.\n", req.TotalMarks, req.TotalMarks))
	}

	b.WriteString(fmt.Sprintf(`
STRICT RULES:
- Generate EXACTLY %d questions. Not more, not fewer.
- "marks" must be a positive whole number for every question. No fractions or decimals.
- "type" must be one of: MCQ, TrueFalse, ShortAnswer, Essay, FillInTheBlank.
- MCQ questions have exactly 4 options. TrueFalse questions have the options ["True", "False"]. Other types use an empty options array.
- Do NOT prefix options with letters or numbers (no "A)", "b.", "1.", "(c)").
- "correctAnswer" repeats the exact text of the correct option; for other types it is the model answer.
- "explanation" is one or two sentences explaining why the answer is correct.
- Return only the JSON object {"title": string, "questions": [...]}.
`, req.QuestionCount))

	return b.String()
}

// requestedTypes keeps the first occurrence of each type, case-insensitively.
func requestedTypes(types []string) []string {
	seen := make(map[string]bool, len(types))
	var out []string
	for _, t := range types {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return []string{string(models.QuestionTypeMCQ)}
	}
	return out
}

func quizResponseSchema() *Schema {
	str := func() *Schema { return &Schema{Type: "STRING"} }

	question := &Schema{
		Type: "OBJECT",
		Properties: map[string]*Schema{
			"text":          str(),
			"type":          str(),
			"options":       {Type: "ARRAY", Items: str()},
			"correctAnswer": str(),
			"explanation":   str(),
			"marks":         {Type: "INTEGER"},
		},
		Required: []string{"text", "type", "options", "correctAnswer", "explanation", "marks"},
	}

	return &Schema{
		Type: "OBJECT",
		Properties: map[string]*Schema{
			"title":     str(),
			"questions": {Type: "ARRAY", Items: question},
		},
		Required: []string{"title", "questions"},
	}
}
