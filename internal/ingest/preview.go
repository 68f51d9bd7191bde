package ingest

import (
	"context"

	"github.com/nadavhl/secondbrain/internal/analyze"
	"github.com/nadavhl/secondbrain/internal/graph"
	"github.com/nadavhl/secondbrain/internal/retrieval"
	"github.com/nadavhl/secondbrain/internal/storage"
)

// Preview runs extraction, analysis, embedding and (when an owner is
// known) graph linking for a URL without persisting anything. The
// returned item is what Process would have saved, minus the identity
// and timestamps.
func (o *Orchestrator) Preview(ctx context.Context, ownerID, url, caption string) storage.Item {
	var tags []string
	if ownerID != "" {
		if t, err := o.store.UserTags(ownerID); err == nil {
			tags = t
		}
	}

	res := o.extractor.ExtractWithCaption(ctx, url, caption)
	ann := o.analyzer.Analyze(ctx, analyze.Input{
		URL:          url,
		Title:        res.Title,
		Text:         res.Text,
		ContentType:  res.ContentType,
		ExistingTags: tags,
	})

	var links []storage.RelatedLink
	if ownerID != "" {
		if embedding, err := o.embedder.Embed(ctx, retrieval.ItemText(ann.Title, ann.Summary, ann.Tags)); err == nil {
			links = o.linker.FindRelated(ctx, graph.NewItem{
				OwnerID:   ownerID,
				Title:     ann.Title,
				Summary:   ann.Summary,
				Concepts:  ann.Concepts,
				Embedding: embedding,
			})
		}
	}

	sourceType := res.ContentType
	if ann.Recipe != nil {
		sourceType = storage.SourceRecipe
	}

	return storage.Item{
		OwnerID:         ownerID,
		URL:             url,
		SourceType:      sourceType,
		OriginalTitle:   res.Title,
		Title:           ann.Title,
		Summary:         ann.Summary,
		DetailedSummary: ann.DetailedSummary,
		Category:        ann.Category,
		Tags:            ann.Tags,
		Concepts:        ann.Concepts,
		Language:        ann.Language,
		Confidence:      ann.Confidence,
		Takeaway:        ann.Takeaway,
		Recipe:          ann.Recipe,
		ReadTime:        readTime(res.Text, ann.Degraded()),
		Status:          "unread",
		Related:         links,
		ReminderStatus:  storage.ReminderNone,
	}
}
