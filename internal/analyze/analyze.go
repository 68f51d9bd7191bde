// Package analyze wraps the LLM call that turns extracted text into a
// structured annotation. The contract with the rest of the pipeline is
// absolute: Analyze always returns a usable annotation, falling back to
// a deterministic placeholder when the model call fails or the response
// cannot be coerced into shape. An item is never lost because the model
// misbehaved.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nadavhl/secondbrain/internal/storage"
)

// analyzerInputCap bounds the text submitted to the model.
const analyzerInputCap = 30000

// maxTags caps the tag list on any annotation, parsed or fallback.
const maxTags = 5

// FallbackTag marks annotations produced by the deterministic fallback
// rather than the model.
const FallbackTag = "failed"

// generator is what the analyzer needs from the Gemini client.
type generator interface {
	Configured() bool
	GenerateJSON(ctx context.Context, model, prompt string) (string, error)
	GenerateVisionJSON(ctx context.Context, model string, image []byte, mimeType, prompt string) (string, error)
}

// Input is the extracted content handed to Analyze.
type Input struct {
	URL          string
	Title        string
	Text         string
	ContentType  string
	ExistingTags []string
}

// Annotation is the structured result of analysis. All fields the
// pipeline depends on (title, summary, category, tags) are always
// populated.
type Annotation struct {
	Title           string          `json:"title"`
	Summary         string          `json:"summary"`
	DetailedSummary string          `json:"detailed_summary,omitempty"`
	Category        string          `json:"category"`
	Tags            []string        `json:"tags"`
	Concepts        []string        `json:"key_concepts,omitempty"`
	Language        string          `json:"language,omitempty"`
	Confidence      string          `json:"confidence,omitempty"`
	Takeaway        string          `json:"key_takeaway,omitempty"`
	Recipe          *storage.Recipe `json:"recipe,omitempty"`
}

// Degraded reports whether this annotation is the deterministic
// fallback rather than real model output.
func (a Annotation) Degraded() bool {
	return len(a.Tags) == 1 && a.Tags[0] == FallbackTag
}

// Analyzer produces annotations via an LLM.
type Analyzer struct {
	client generator
	model  string
	log    *slog.Logger
}

// NewAnalyzer creates an Analyzer using the given client and model name.
func NewAnalyzer(client generator, model string, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{client: client, model: model, log: log}
}

// Analyze annotates extracted text. On any model failure it returns the
// deterministic fallback annotation instead of an error.
func (a *Analyzer) Analyze(ctx context.Context, input Input) Annotation {
	if !a.client.Configured() {
		a.log.Warn("analyzer has no model credential, using fallback annotation")
		return fallbackAnnotation(input)
	}

	raw, err := a.client.GenerateJSON(ctx, a.model, buildPrompt(input))
	if err != nil {
		a.log.Warn("analysis call failed", "url", input.URL, "error", err)
		return fallbackAnnotation(input)
	}

	ann, err := parseAnnotation(raw)
	if err != nil {
		a.log.Warn("analysis response malformed", "url", input.URL, "error", err)
		return fallbackAnnotation(input)
	}
	return normalize(ann, input)
}

// AnalyzeImage annotates an image through the vision path. The caption
// is the text the user sent alongside the image, if any.
func (a *Analyzer) AnalyzeImage(ctx context.Context, image []byte, mimeType, caption string, existingTags []string) Annotation {
	input := Input{Title: caption, Text: caption, ContentType: storage.SourceImage, ExistingTags: existingTags}

	if !a.client.Configured() || len(image) == 0 {
		return fallbackAnnotation(input)
	}

	raw, err := a.client.GenerateVisionJSON(ctx, a.model, image, mimeType, buildImagePrompt(caption, existingTags))
	if err != nil {
		a.log.Warn("image analysis call failed", "error", err)
		return fallbackAnnotation(input)
	}

	ann, err := parseAnnotation(raw)
	if err != nil {
		a.log.Warn("image analysis response malformed", "error", err)
		return fallbackAnnotation(input)
	}
	return normalize(ann, input)
}

// parseAnnotation coerces the model's response into an Annotation. The
// model occasionally wraps the object in a single-element list or in
// markdown fences; both are unwrapped here. Anything else malformed is
// an error, mapped to the fallback by the caller.
func parseAnnotation(raw string) (Annotation, error) {
	trimmed := stripFences(raw)
	if trimmed == "" {
		return Annotation{}, fmt.Errorf("empty response")
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return Annotation{}, fmt.Errorf("decode response list: %w", err)
		}
		if len(list) != 1 {
			return Annotation{}, fmt.Errorf("response list has %d elements", len(list))
		}
		trimmed = string(list[0])
	}

	var ann Annotation
	if err := json.Unmarshal([]byte(trimmed), &ann); err != nil {
		return Annotation{}, fmt.Errorf("decode annotation: %w", err)
	}
	if ann.Title == "" && ann.Summary == "" {
		return Annotation{}, fmt.Errorf("annotation missing title and summary")
	}
	return ann, nil
}

// normalize fills the fields the pipeline requires to be non-empty and
// bounds the tag list.
func normalize(ann Annotation, input Input) Annotation {
	if ann.Title == "" {
		ann.Title = input.Title
	}
	if ann.Title == "" {
		ann.Title = input.URL
	}
	if ann.Summary == "" {
		ann.Summary = ann.Title
	}
	if ann.Category == "" {
		ann.Category = "General"
	}

	seen := make(map[string]bool)
	tags := ann.Tags[:0]
	for _, t := range ann.Tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, t)
		if len(tags) == maxTags {
			break
		}
	}
	ann.Tags = tags
	if len(ann.Tags) == 0 {
		ann.Tags = []string{strings.ToLower(ann.Category)}
	}
	return ann
}

// fallbackAnnotation is the deterministic placeholder used whenever the
// model cannot produce one.
func fallbackAnnotation(input Input) Annotation {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = input.URL
	}
	if title == "" {
		title = "Saved item"
	}
	return Annotation{
		Title:      title,
		Summary:    "Automatic analysis was unavailable for this item.",
		Category:   "General",
		Tags:       []string{FallbackTag},
		Confidence: "low",
	}
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
