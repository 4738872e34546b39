package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiOracle parses drafts with Google's Gemini API.
type GeminiOracle struct {
	client  *genai.Client
	model   string
	lexicon Lexicon
}

// NewGeminiOracle creates an oracle from an API key.
func NewGeminiOracle(ctx context.Context, apiKey, model string, lex Lexicon) (*GeminiOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiOracle{client: client, model: model, lexicon: lex}, nil
}

// draftJSON is the response shape requested from the model.
type draftJSON struct {
	Date        string `json:"date"`
	Deadline    string `json:"deadline"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Description string `json:"description"`
	Rule        string `json:"rule"`
	Supplier    string `json:"supplier"`
}

func (o *GeminiOracle) ParseDraft(ctx context.Context, text, locale string, today civil.Date) (*model.Draft, error) {
	resp, err := o.client.Models.GenerateContent(ctx, o.model,
		genai.Text(Prompt(text, locale, today, o.lexicon)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0),
		})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	return DecodeDraft(resp.Text())
}

// Prompt builds the instruction sent to the model.
func Prompt(text, locale string, today civil.Date, lex Lexicon) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s (%s). The user writes in locale %q.\n", today, today.In(time.UTC).Weekday(), locale)
	b.WriteString("Extract a task from the message below and answer with one JSON object with the keys ")
	b.WriteString(`"date" (YYYY-MM-DD or empty), "deadline" (HH:MM or empty), "category", "subcategory", `)
	b.WriteString(`"description" (the task itself without date/time words), "supplier" and "rule". `)
	b.WriteString(`"rule" is empty unless the task repeats; then use exactly one of "every <N> days", `)
	b.WriteString(`"every <Weekday>" or "on <Mon,Wed,...>".` + "\n")
	if len(lex.Categories) > 0 {
		fmt.Fprintf(&b, "Known categories: %s.\n", strings.Join(lex.Categories, ", "))
	}
	if len(lex.Points) > 0 {
		fmt.Fprintf(&b, "Known subcategories (points): %s.\n", strings.Join(lex.Points, ", "))
	}
	if len(lex.Suppliers) > 0 {
		fmt.Fprintf(&b, "Known suppliers: %s.\n", strings.Join(lex.Suppliers, ", "))
	}
	b.WriteString("Message:\n")
	b.WriteString(text)
	return b.String()
}

// DecodeDraft reads the model's JSON answer. Markdown code fences are tolerated.
func DecodeDraft(raw string) (*model.Draft, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var dj draftJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &dj); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	if strings.TrimSpace(dj.Description) == "" {
		return nil, nil
	}
	d := &model.Draft{
		Deadline:    strings.TrimSpace(dj.Deadline),
		Category:    strings.TrimSpace(dj.Category),
		Subcategory: strings.TrimSpace(dj.Subcategory),
		Description: strings.TrimSpace(dj.Description),
		Rule:        strings.TrimSpace(dj.Rule),
		Supplier:    strings.TrimSpace(dj.Supplier),
	}
	if dj.Date != "" {
		if date, err := civil.ParseDate(strings.TrimSpace(dj.Date)); err == nil {
			d.Date, d.HasDate = date, true
		}
	}
	return d, nil
}
