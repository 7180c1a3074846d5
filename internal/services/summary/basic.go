package summary

import (
	"context"
	"strings"

	"github.com/killallgit/echonote-api/internal/models"
)

// BasicSummarizer builds an extractive summary from the first three and
// last two sentences. It needs no external service.
type BasicSummarizer struct{}

// Name returns the provider name
func (BasicSummarizer) Name() string {
	return "basic"
}

// Summarize implements Summarizer
func (BasicSummarizer) Summarize(ctx context.Context, transcript string, language models.Language) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(transcript)
	if text == "" {
		return &Summary{Summary: unavailable(language)}, nil
	}

	sentences := strings.Split(text, ". ")
	if len(sentences) > 5 {
		picked := append([]string{}, sentences[:3]...)
		sentences = append(picked, sentences[len(sentences)-2:]...)
	}

	prefix := "Automatic meeting summary:\n\n"
	if language == models.LanguageItalian {
		prefix = "Riassunto automatico della riunione:\n\n"
	}

	return &Summary{Summary: prefix + strings.Join(sentences, ". ")}, nil
}

func unavailable(language models.Language) string {
	if language == models.LanguageItalian {
		return "Riassunto non disponibile."
	}
	return "Summary not available."
}
