// Package summary produces a meeting summary and action items from a
// stitched transcript.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/killallgit/echonote-api/internal/models"
)

// Summarizer calls a summarization capability
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, language models.Language) (*Summary, error)
	Name() string
}

// Summary is the structured result of summarization
type Summary struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
}

// Render formats the summary and key points as the job's summary text
func (s *Summary) Render(language models.Language) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(s.Summary))

	if len(s.KeyPoints) > 0 {
		heading := "Key Points:"
		if language == models.LanguageItalian {
			heading = "Punti chiave:"
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(heading)
		for i, p := range s.KeyPoints {
			fmt.Fprintf(&b, "\n%d. %s", i+1, strings.TrimSpace(p))
		}
	}

	return b.String()
}

const italianPrompt = `Analizza questa trascrizione di una riunione e fornisci:

1. Riassunto: un riassunto conciso dei punti principali discussi (2-3 paragrafi massimo)
2. Punti chiave: i punti più importanti
3. Azioni da intraprendere: le azioni concrete da completare, con eventuali responsabili se menzionati

Rispondi in italiano con un oggetto JSON con i campi "summary" (stringa), "key_points" (lista di stringhe) e "action_items" (lista di stringhe).`

const englishPrompt = `Analyze this meeting transcription and provide:

1. Summary: a concise summary of the main points discussed (2-3 paragraphs maximum)
2. Key Points: the most important points
3. Action Items: concrete actions to be completed, with responsible parties if mentioned

Respond in English with a JSON object with the fields "summary" (string), "key_points" (list of strings) and "action_items" (list of strings).`

// SystemPrompt returns the instruction for the given language
func SystemPrompt(language models.Language) string {
	if language == models.LanguageItalian {
		return italianPrompt
	}
	return englishPrompt
}

// UserPrompt wraps the transcript for the model
func UserPrompt(transcript string, language models.Language) string {
	label := "Transcription:"
	if language == models.LanguageItalian {
		label = "Trascrizione:"
	}
	return label + "\n" + transcript
}

// parseSummary decodes a model response, tolerating markdown code fences
func parseSummary(content string) (*Summary, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty response")
	}

	var s Summary
	if err := json.Unmarshal([]byte(content), &s); err != nil {
		extracted := extractJSONFromMarkdown(content)
		if err := json.Unmarshal([]byte(extracted), &s); err != nil {
			return nil, fmt.Errorf("failed to parse summary response as JSON: %w", err)
		}
	}

	if strings.TrimSpace(s.Summary) == "" && len(s.KeyPoints) == 0 && len(s.ActionItems) == 0 {
		return nil, fmt.Errorf("summary response has no content")
	}

	return &s, nil
}

func extractJSONFromMarkdown(content string) string {
	if i := strings.Index(content, "```"); i >= 0 {
		rest := content[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	if i, j := strings.Index(content, "{"), strings.LastIndex(content, "}"); i >= 0 && j > i {
		return content[i : j+1]
	}
	return content
}
