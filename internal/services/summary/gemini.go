package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/killallgit/echonote-api/internal/models"
	"google.golang.org/genai"
)

// ContentGenerator is the subset of genai.Models used here
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSummarizer summarizes with a Gemini model returning JSON
type GeminiSummarizer struct {
	models ContentGenerator
	model  string
}

// NewGeminiSummarizer creates a summarizer backed by the Gemini API
func NewGeminiSummarizer(ctx context.Context, apiKey, model string) (*GeminiSummarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	return NewGeminiSummarizerWithModels(client.Models, model), nil
}

// NewGeminiSummarizerWithModels creates a summarizer around an existing generator
func NewGeminiSummarizerWithModels(models ContentGenerator, model string) *GeminiSummarizer {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiSummarizer{models: models, model: model}
}

// Name returns the provider name
func (s *GeminiSummarizer) Name() string {
	return "gemini"
}

// Summarize implements Summarizer
func (s *GeminiSummarizer) Summarize(ctx context.Context, transcript string, language models.Language) (*Summary, error) {
	temperature := float32(0.3)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: SystemPrompt(language)}},
		},
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	}

	resp, err := s.models.GenerateContent(ctx, s.model, []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: UserPrompt(transcript, language)}}},
	}, cfg)
	if err != nil {
		return nil, fmt.Errorf("genai generate: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonStop {
		return nil, fmt.Errorf("unexpected finish reason: %s", candidate.FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}

	return parseSummary(sb.String())
}
