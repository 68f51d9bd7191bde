package analyze

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// categories is the fixed vocabulary the model must pick from. The
// category stays in English regardless of the content's language so
// grouping works across a mixed-language corpus.
var categories = []string{
	"Technology", "Science", "Health", "Business", "Finance",
	"Productivity", "Recipes", "Travel", "Culture", "Sports",
	"Politics", "Education", "General",
}

const promptRules = `You are a knowledge-base curator. Analyze the content and respond with a single JSON object, no markdown, no commentary.

Rules:
1. Detect the language of the content and set "language" to its ISO 639-1 code. Write "title", "summary", "detailed_summary", "tags" and "key_takeaway" in that language.
2. "category" must be exactly one of: %s. Always in English.
3. "tags": exactly 3 to 4 short tags. Prefer reusing tags from the existing list below over inventing near-duplicates.
4. "summary": 1-2 factual sentences. No evaluative adjectives.
5. "detailed_summary": a short overview paragraph, then bulleted key points, then a "why it matters" line if warranted. Omit for trivial content.
6. "key_concepts": up to 5 named concepts or entities the content is about, in English.
7. "key_takeaway": the single most useful point, one sentence.
8. "confidence": "high", "medium" or "low" based on how much real content you were given.
9. Only if the content is food-preparation instructions: set category to "Recipes" and add a "recipe" object with "ingredients" (list), "instructions" (list) and optional "servings", "prepTime", "cookTime". Never add "recipe" otherwise.

JSON fields: title, summary, detailed_summary, category, tags, key_concepts, language, confidence, key_takeaway, recipe.`

// buildPrompt assembles the analysis instruction for extracted text.
func buildPrompt(input Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, promptRules, strings.Join(categories, ", "))

	sb.WriteString("\n\nExisting tags: ")
	if len(input.ExistingTags) > 0 {
		sb.WriteString(strings.Join(input.ExistingTags, ", "))
	} else {
		sb.WriteString("(none yet)")
	}

	if input.ContentType != "" {
		fmt.Fprintf(&sb, "\nSource type: %s", input.ContentType)
	}
	if input.URL != "" {
		fmt.Fprintf(&sb, "\nSource URL: %s", input.URL)
	}
	if input.Title != "" {
		fmt.Fprintf(&sb, "\nScraped title: %s", input.Title)
	}

	sb.WriteString("\n\nContent:\n")
	sb.WriteString(capInput(input.Text))
	return sb.String()
}

// buildImagePrompt assembles the vision-path instruction. The model
// sees the image itself; the prompt carries the caption and the same
// JSON contract.
func buildImagePrompt(caption string, existingTags []string) string {
	var sb strings.Builder
	sb.WriteString("Describe what this image contains, transcribe any text visible in it, then analyze it as saved knowledge.\n\n")
	fmt.Fprintf(&sb, promptRules, strings.Join(categories, ", "))

	sb.WriteString("\n\nExisting tags: ")
	if len(existingTags) > 0 {
		sb.WriteString(strings.Join(existingTags, ", "))
	} else {
		sb.WriteString("(none yet)")
	}

	if caption = strings.TrimSpace(caption); caption != "" {
		fmt.Fprintf(&sb, "\n\nUser's caption for the image:\n%s", capInput(caption))
	}
	return sb.String()
}

func capInput(text string) string {
	if len(text) <= analyzerInputCap {
		return text
	}
	cut := text[:analyzerInputCap]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
