// Package graph computes the related-items edges for a newly saved
// item. Vector retrieval proposes candidates; an LLM pass keeps only
// the ones with a real connection. Linking is best-effort enrichment:
// every failure path returns an empty list and never blocks the save.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nadavhl/secondbrain/internal/retrieval"
	"github.com/nadavhl/secondbrain/internal/storage"
)

// candidateCount is how many nearest neighbors the vector stage hands
// to the verification stage.
const candidateCount = 10

type vectorSearcher interface {
	Search(ownerID string, vector []float32, topK int) ([]retrieval.Scored, error)
}

type itemGetter interface {
	GetItem(id string) (storage.Item, error)
}

type generator interface {
	Configured() bool
	GenerateJSON(ctx context.Context, model, prompt string) (string, error)
}

// Linker finds meaningfully related items in a user's corpus.
type Linker struct {
	vectors vectorSearcher
	items   itemGetter
	client  generator
	model   string
	log     *slog.Logger
}

func NewLinker(vectors vectorSearcher, items itemGetter, client generator, model string, log *slog.Logger) *Linker {
	if log == nil {
		log = slog.Default()
	}
	return &Linker{vectors: vectors, items: items, client: client, model: model, log: log}
}

// NewItem describes the item being linked. It may not be persisted yet;
// the ID is only used to exclude the item from its own candidates.
type NewItem struct {
	ID        string
	OwnerID   string
	Title     string
	Summary   string
	Concepts  []string
	Embedding []float32
}

// verdict is the shape the verification model answers with.
type verdict struct {
	Related []struct {
		ID             string   `json:"id"`
		Reason         string   `json:"reason"`
		Similarity     float64  `json:"similarity"`
		CommonConcepts []string `json:"commonConcepts"`
	} `json:"related"`
}

// FindRelated runs both phases. The vector stage is the recall filter,
// the model stage the precision filter: a candidate the model does not
// return is dropped no matter how close its vector was.
func (l *Linker) FindRelated(ctx context.Context, item NewItem) []storage.RelatedLink {
	if len(item.Embedding) == 0 || !l.client.Configured() {
		return nil
	}

	scored, err := l.vectors.Search(item.OwnerID, item.Embedding, candidateCount+1)
	if err != nil {
		l.log.Warn("candidate retrieval failed", "owner", item.OwnerID, "error", err)
		return nil
	}

	type candidate struct {
		item  storage.Item
		score float64
	}
	candidates := make(map[string]candidate)
	var order []string
	for _, s := range scored {
		if s.ItemID == item.ID {
			continue
		}
		if len(order) == candidateCount {
			break
		}
		it, err := l.items.GetItem(s.ItemID)
		if err != nil {
			l.log.Warn("candidate load failed", "item", s.ItemID, "error", err)
			continue
		}
		candidates[s.ItemID] = candidate{item: it, score: s.Score}
		order = append(order, s.ItemID)
	}
	if len(order) == 0 {
		return nil
	}

	prompt := buildVerificationPrompt(item, order, func(id string) storage.Item {
		return candidates[id].item
	})
	raw, err := l.client.GenerateJSON(ctx, l.model, prompt)
	if err != nil {
		l.log.Warn("link verification failed", "owner", item.OwnerID, "error", err)
		return nil
	}

	var v verdict
	if err := json.Unmarshal([]byte(stripFences(raw)), &v); err != nil {
		l.log.Warn("link verification response malformed", "error", err)
		return nil
	}

	var links []storage.RelatedLink
	for _, r := range v.Related {
		c, ok := candidates[r.ID]
		if !ok {
			// The model invented an ID; precision beats recall here.
			continue
		}
		sim := r.Similarity
		if sim == 0 {
			sim = c.score
		}
		links = append(links, storage.RelatedLink{
			TargetID:       r.ID,
			Title:          c.item.Title,
			Reason:         r.Reason,
			Similarity:     sim,
			SharedConcepts: r.CommonConcepts,
		})
	}
	return links
}

func buildVerificationPrompt(item NewItem, order []string, lookup func(string) storage.Item) string {
	var sb strings.Builder
	sb.WriteString(`You connect items in a personal knowledge base. Below is a newly saved item and candidate items that are nearby in embedding space. Select ONLY candidates with a meaningful connection to the new item: a shared thesis, an opposing position, supporting or contradicting evidence. Mere keyword or topic overlap is NOT a connection.

Respond with a single JSON object, no markdown:
{"related": [{"id": "...", "reason": "one sentence on how they connect", "similarity": 0.0-1.0, "commonConcepts": ["..."]}]}

Return {"related": []} if nothing truly connects.`)

	fmt.Fprintf(&sb, "\n\nNEW ITEM:\nTitle: %s\nSummary: %s\n", item.Title, item.Summary)
	if len(item.Concepts) > 0 {
		fmt.Fprintf(&sb, "Concepts: %s\n", strings.Join(item.Concepts, ", "))
	}

	sb.WriteString("\nCANDIDATES:\n")
	for _, id := range order {
		c := lookup(id)
		fmt.Fprintf(&sb, "- id: %s\n  title: %s\n  summary: %s\n", id, c.Title, c.Summary)
		if len(c.Concepts) > 0 {
			fmt.Fprintf(&sb, "  concepts: %s\n", strings.Join(c.Concepts, ", "))
		}
	}
	return sb.String()
}

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
