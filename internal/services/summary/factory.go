package summary

import (
	"context"
	"fmt"
	"log"

	"github.com/killallgit/echonote-api/pkg/config"
)

// NewFromConfig builds the invoker for the configured provider
func NewFromConfig(ctx context.Context, cfg config.SummarizationConfig) (*Invoker, error) {
	var (
		s   Summarizer
		err error
	)

	switch cfg.Provider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Printf("[WARN] No OpenAI API key configured, using basic summarizer")
			s = BasicSummarizer{}
			break
		}
		s = NewOpenAISummarizer(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case "gemini", "":
		if cfg.GeminiAPIKey == "" {
			log.Printf("[WARN] No Gemini API key configured, using basic summarizer")
			s = BasicSummarizer{}
			break
		}
		s, err = NewGeminiSummarizer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini summarizer: %w", err)
		}
	case "basic":
		s = BasicSummarizer{}
	default:
		return nil, fmt.Errorf("unsupported summarization provider: %q", cfg.Provider)
	}

	opts := []InvokerOption{}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if _, basic := s.(BasicSummarizer); cfg.FallbackBasic && !basic {
		opts = append(opts, WithFallback(BasicSummarizer{}))
	}

	return NewInvoker(s, opts...), nil
}
