package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("translation is not configured")

// generateFunc sends a prompt and returns the raw model text.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini translates subtitle lines with a Gemini model.
type Gemini struct {
	generate generateFunc
	model    string
	logger   *slog.Logger
}

// NewGemini creates a translator. An empty apiKey yields a translator whose
// calls fail with ErrNotConfigured.
func NewGemini(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Gemini, error) {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gemini{model: model, logger: logger}
	if apiKey == "" {
		return g, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := float32(0.2)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		return responseText(resp)
	}
	return g, nil
}

// Configured reports whether calls can reach the model.
func (g *Gemini) Configured() bool {
	return g != nil && g.generate != nil
}

// Translate implements subtitle.Translator.
func (g *Gemini) Translate(ctx context.Context, lines []string, lang string) ([]string, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	name, ok := Languages[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", lang)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	prompt, err := buildPrompt(lines, name)
	if err != nil {
		return nil, err
	}
	text, err := g.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	out, err := parseLines(text)
	if err != nil {
		return nil, err
	}
	if len(out) != len(lines) {
		g.logger.Warn("translation changed the line count", "lang", lang, "sent", len(lines), "received", len(out))
		return nil, fmt.Errorf("model returned %d lines for %d", len(out), len(lines))
	}
	return out, nil
}

func buildPrompt(lines []string, language string) (string, error) {
	payload, err := json.Marshal(lines)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("Translate each English subtitle line in the JSON array below into ")
	sb.WriteString(language)
	sb.WriteString(".\nReturn only a JSON array of strings with exactly ")
	fmt.Fprintf(&sb, "%d", len(lines))
	sb.WriteString(" elements, in the same order. Do not merge, split or omit lines.\n\n")
	sb.Write(payload)
	return sb.String(), nil
}

func parseLines(text string) ([]string, error) {
	cleaned := cleanJSONBlock(text)
	var out []string
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON response: %w", err)
	}
	return out, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
