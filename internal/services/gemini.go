package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ContentProvider is the upstream generative API. Both endpoints receive the
// same payload; Stream hands back the raw body, which is a JSON array of
// partial GenerateResponse objects.
type ContentProvider interface {
	Generate(ctx context.Context, route ModelRoute, req *GenerateRequest) (*GenerateResponse, error)
	Stream(ctx context.Context, route ModelRoute, req *GenerateRequest) (io.ReadCloser, error)
}

type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64 payloads exactly as the client sent them.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GenerationConfig struct {
	Temperature      float32 `json:"temperature"`
	CandidateCount   int     `json:"candidateCount,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Index        int      `json:"index,omitempty"`
	Content      *Content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

// Text joins the text parts of a candidate.
func (c Candidate) Text() string {
	if c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// GeminiClient talks to the Generative Language REST API.
type GeminiClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGeminiClient leaves timeouts to the caller's context; streaming bodies
// can legitimately take minutes.
func NewGeminiClient(baseURL string, httpClient *http.Client) *GeminiClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GeminiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *GeminiClient) Generate(ctx context.Context, route ModelRoute, req *GenerateRequest) (*GenerateResponse, error) {
	resp, err := c.post(ctx, route, "generateContent", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newNetworkError(fmt.Errorf("failed to read response: %w", err))
	}

	var out GenerateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("decode generateContent response: %w", err)}
	}
	return &out, nil
}

func (c *GeminiClient) Stream(ctx context.Context, route ModelRoute, req *GenerateRequest) (io.ReadCloser, error) {
	resp, err := c.post(ctx, route, "streamGenerateContent", req)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoStreamBody
	}
	return resp.Body, nil
}

// post returns the response only for 2xx statuses; the caller owns the body.
func (c *GeminiClient) post(ctx context.Context, route ModelRoute, method string, payload *GenerateRequest) (*http.Response, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, url.PathEscape(route.Model), method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", route.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newNetworkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, newStatusError(resp.StatusCode, string(raw))
	}
	return resp, nil
}
