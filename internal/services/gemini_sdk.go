package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiSDKClient serves the same ContentProvider contract through the
// official Go SDK. One genai.Client is kept per credential.
type GeminiSDKClient struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
	opts    []option.ClientOption
}

func NewGeminiSDKClient(opts ...option.ClientOption) *GeminiSDKClient {
	return &GeminiSDKClient{
		clients: make(map[string]*genai.Client),
		opts:    opts,
	}
}

func (c *GeminiSDKClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, client := range c.clients {
		client.Close()
		delete(c.clients, key)
	}
}

func (c *GeminiSDKClient) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[apiKey]; ok {
		return client, nil
	}
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, c.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.clients[apiKey] = client
	return client, nil
}

func (c *GeminiSDKClient) prepare(ctx context.Context, route ModelRoute, req *GenerateRequest) (*genai.GenerativeModel, []genai.Part, error) {
	client, err := c.clientFor(ctx, route.APIKey)
	if err != nil {
		return nil, nil, newNetworkError(err)
	}

	model := client.GenerativeModel(route.Model)
	cfg := req.GenerationConfig
	model.SetTemperature(cfg.Temperature)
	if cfg.CandidateCount > 0 {
		model.SetCandidateCount(int32(cfg.CandidateCount))
	}
	model.ResponseMIMEType = cfg.ResponseMimeType
	model.ResponseSchema = toGenaiSchema(cfg.ResponseSchema)

	parts, err := toGenaiParts(req.Contents)
	if err != nil {
		return nil, nil, err
	}
	return model, parts, nil
}

func (c *GeminiSDKClient) Generate(ctx context.Context, route ModelRoute, req *GenerateRequest) (*GenerateResponse, error) {
	model, parts, err := c.prepare(ctx, route, req)
	if err != nil {
		return nil, err
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifySDKError(err)
	}
	return fromGenaiResponse(resp), nil
}

// Stream re-encodes the SDK iterator as the same JSON array the REST
// endpoint returns, so the ingester does not care which client is in use.
func (c *GeminiSDKClient) Stream(ctx context.Context, route ModelRoute, req *GenerateRequest) (io.ReadCloser, error) {
	model, parts, err := c.prepare(ctx, route, req)
	if err != nil {
		return nil, err
	}

	iter := model.GenerateContentStream(ctx, parts...)
	first, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrNoStreamBody
	}
	if err != nil {
		return nil, classifySDKError(err)
	}

	pr, pw := io.Pipe()
	go func() {
		enc := json.NewEncoder(pw)
		if _, err := io.WriteString(pw, "["); err != nil {
			return
		}
		if err := enc.Encode(fromGenaiResponse(first)); err != nil {
			pw.CloseWithError(err)
			return
		}
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				io.WriteString(pw, "]")
				pw.Close()
				return
			}
			if err != nil {
				pw.CloseWithError(classifySDKError(err))
				return
			}
			if _, err := io.WriteString(pw, ","); err != nil {
				return
			}
			if err := enc.Encode(fromGenaiResponse(resp)); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
	}()
	return pr, nil
}

func toGenaiParts(contents []Content) ([]genai.Part, error) {
	var parts []genai.Part
	for _, content := range contents {
		for _, p := range content.Parts {
			switch {
			case p.InlineData != nil:
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("attachment %s is not valid base64: %w", p.InlineData.MimeType, err)
				}
				parts = append(parts, genai.Blob{MIMEType: p.InlineData.MimeType, Data: data})
			case p.Text != "":
				parts = append(parts, genai.Text(p.Text))
			}
		}
	}
	return parts, nil
}

var genaiTypes = map[string]genai.Type{
	"OBJECT":  genai.TypeObject,
	"ARRAY":   genai.TypeArray,
	"STRING":  genai.TypeString,
	"INTEGER": genai.TypeInteger,
	"NUMBER":  genai.TypeNumber,
	"BOOLEAN": genai.TypeBoolean,
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:     genaiTypes[s.Type],
		Items:    toGenaiSchema(s.Items),
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *GenerateResponse {
	out := &GenerateResponse{}
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		var text string
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text += string(t)
				}
			}
		}
		out.Candidates = append(out.Candidates, Candidate{
			Index:        int(cand.Index),
			Content:      &Content{Role: "model", Parts: []Part{{Text: text}}},
			FinishReason: cand.FinishReason.String(),
		})
	}
	return out
}

func classifySDKError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		pe := newStatusError(gerr.Code, gerr.Message)
		pe.Err = err
		return pe
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) && aerr.HTTPCode() > 0 {
		pe := newStatusError(aerr.HTTPCode(), aerr.Reason())
		pe.Err = err
		return pe
	}
	return newNetworkError(err)
}
