package summary

import (
	"context"
	"fmt"

	"github.com/killallgit/echonote-api/internal/models"
	"github.com/killallgit/echonote-api/pkg/logging"
	"github.com/sashabaranov/go-openai"
)

// ChatCompleter is the subset of the OpenAI client used here
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAISummarizer summarizes with an OpenAI chat model in JSON mode
type OpenAISummarizer struct {
	client ChatCompleter
	model  string
}

// NewOpenAISummarizer creates a summarizer backed by the OpenAI API
func NewOpenAISummarizer(apiKey, model string) *OpenAISummarizer {
	return NewOpenAISummarizerWithClient(openai.NewClient(apiKey), model)
}

// NewOpenAISummarizerWithClient creates a summarizer around an existing client
func NewOpenAISummarizerWithClient(client ChatCompleter, model string) *OpenAISummarizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAISummarizer{client: client, model: model}
}

// Name returns the provider name
func (s *OpenAISummarizer) Name() string {
	return "openai"
}

// Summarize implements Summarizer
func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string, language models.Language) (*Summary, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(language)},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(transcript, language)},
		},
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	logging.Debugf("OpenAI summary usage: prompt=%d completion=%d tokens",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return parseSummary(resp.Choices[0].Message.Content)
}
