package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"facet/internal/schema"
)

// GeminiConfig configures the Gemini generation backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// Gemini implements Generator using Gemini structured output: the legal
// label set is enforced at the API level through an enum-constrained
// response schema, so label narrowing is model-visible, not just
// prompt-visible.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) ([]Candidate, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(req.Schema),
		Temperature:      genai.Ptr(g.temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Instructions), config)
	if err != nil {
		return nil, err
	}
	return parseClassifications(resp.Text(), req.Schema.Field)
}

// responseSchema builds the constrained output contract for one call:
// an object with a classifications array whose label property is an enum
// over exactly the legal label names, in offer order.
func responseSchema(ls schema.LabelSchema) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"classifications": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"excerpt": {
							Type:        genai.TypeString,
							Description: "Exact text excerpt",
						},
						"reasoning": {
							Type:        genai.TypeString,
							Description: "Classification reasoning",
						},
						ls.Field: {
							Type: genai.TypeString,
							Enum: ls.Names(),
						},
						"sentiment": {
							Type: genai.TypeString,
							Enum: schema.Sentiments,
						},
					},
					Required: []string{"excerpt", "reasoning", ls.Field, "sentiment"},
				},
			},
		},
		Required: []string{"classifications"},
	}
}

// parseClassifications decodes the structured response envelope. The
// label key varies per stage, so entries decode as loose maps first.
func parseClassifications(text, field string) ([]Candidate, error) {
	text = cleanJSONOutput(text)
	if text == "" {
		return nil, nil
	}

	var envelope struct {
		Classifications []map[string]string `json:"classifications"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("parsing generation output: %w", err)
	}

	out := make([]Candidate, 0, len(envelope.Classifications))
	for _, m := range envelope.Classifications {
		out = append(out, Candidate{
			Excerpt:   m["excerpt"],
			Reasoning: m["reasoning"],
			Label:     m[field],
			Sentiment: m["sentiment"],
		})
	}
	return out, nil
}

func cleanJSONOutput(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
