package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

var testRoute = ModelRoute{Model: "gemini-2.0-flash", APIKey: "test-key"}

func TestGeminiClient_GenerateSendsPayloadAndKey(t *testing.T) {
	var gotPath, gotKey string
	var gotBody GenerateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"title\":"},{"text":"\"T\"}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	client := NewGeminiClient(srv.URL+"/", nil)
	payload := &GenerateRequest{
		Contents:         []Content{{Role: "user", Parts: []Part{{Text: "hello"}}}},
		GenerationConfig: GenerationConfig{Temperature: 0.4, CandidateCount: 2},
	}

	resp, err := client.Generate(context.Background(), testRoute, payload)
	require.NoError(t, err)

	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, 2, gotBody.GenerationConfig.CandidateCount)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, `{"title":"T"}`, resp.Candidates[0].Text())
}

func TestGeminiClient_StatusErrorsAreTagged(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   ProviderErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, ProviderTransient},
		{"overloaded", http.StatusServiceUnavailable, ProviderTransient},
		{"bad request", http.StatusBadRequest, ProviderOther},
		{"server error", http.StatusInternalServerError, ProviderOther},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"nope"}}`, tc.status)
			}))
			defer srv.Close()

			client := NewGeminiClient(srv.URL, nil)

			_, err := client.Generate(context.Background(), testRoute, &GenerateRequest{})
			var pe *ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.kind, pe.Kind)
			assert.Equal(t, tc.status, pe.StatusCode)

			_, err = client.Stream(context.Background(), testRoute, &GenerateRequest{})
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tc.status, pe.StatusCode)
		})
	}
}

func TestGeminiClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewGeminiClient(url, nil).Generate(context.Background(), testRoute, &GenerateRequest{})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ProviderNetwork, pe.Kind)
	assert.Zero(t, pe.StatusCode)
}

func TestGeminiClient_StreamReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		w.Write([]byte(`[{"candidates":[{"content":{"parts":[{"text":"a"}]}}]}]`))
	}))
	defer srv.Close()

	body, err := NewGeminiClient(srv.URL, nil).Stream(context.Background(), testRoute, &GenerateRequest{})
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"text":"a"`)
}

func TestGeminiClient_StreamWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := NewGeminiClient(srv.URL, nil).Stream(context.Background(), testRoute, &GenerateRequest{})
	assert.ErrorIs(t, err, ErrNoStreamBody)
}

func TestToGenaiParts(t *testing.T) {
	parts, err := toGenaiParts([]Content{{Parts: []Part{
		{Text: "instructions"},
		{InlineData: &InlineData{MimeType: "application/pdf", Data: "JVBERi0="}},
	}}})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, genai.Text("instructions"), parts[0])
	blob, ok := parts[1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", blob.MIMEType)
	assert.Equal(t, []byte("%PDF-"), blob.Data)

	_, err = toGenaiParts([]Content{{Parts: []Part{{InlineData: &InlineData{MimeType: "image/png", Data: "***"}}}}})
	assert.Error(t, err)
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(quizResponseSchema())
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, genai.TypeArray, s.Properties["questions"].Type)
	assert.Equal(t, genai.TypeInteger, s.Properties["questions"].Items.Properties["marks"].Type)
	assert.Nil(t, toGenaiSchema(nil))
}

func TestFromGenaiResponse(t *testing.T) {
	resp := fromGenaiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("{\"a\":"), genai.Text("1}")}}},
			nil,
			{Content: nil},
		},
	})
	require.Len(t, resp.Candidates, 2)
	assert.Equal(t, `{"a":1}`, resp.Candidates[0].Text())
	assert.Equal(t, "", resp.Candidates[1].Text())
}

func TestClassifySDKError(t *testing.T) {
	err := classifySDKError(&googleapi.Error{Code: http.StatusServiceUnavailable, Message: "overloaded"})
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ProviderTransient, pe.Kind)

	err = classifySDKError(errors.New("dial tcp: refused"))
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, ProviderNetwork, pe.Kind)
}
