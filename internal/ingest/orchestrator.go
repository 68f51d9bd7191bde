// Package ingest runs the processing pipeline behind the webhook's
// fast acknowledgment: extract, analyze, embed, link, persist, remind,
// reply. The one rule the whole package is built around: a submission
// from a known sender is never lost. Enrichment stages degrade, the
// save happens regardless, and only a persistence failure can fail a
// work item.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nadavhl/secondbrain/internal/analyze"
	"github.com/nadavhl/secondbrain/internal/extract"
	"github.com/nadavhl/secondbrain/internal/graph"
	"github.com/nadavhl/secondbrain/internal/notify"
	"github.com/nadavhl/secondbrain/internal/reminder"
	"github.com/nadavhl/secondbrain/internal/retrieval"
	"github.com/nadavhl/secondbrain/internal/storage"
)

// readTimeDivisor converts extracted text length to estimated minutes.
const readTimeDivisor = 1500

// Store is the slice of the storage layer the pipeline writes through.
type Store interface {
	GetUser(id string) (storage.User, error)
	UserTags(ownerID string) ([]string, error)
	SaveItem(it storage.Item) error
	SetLastSavedItem(userID, itemID string) error
	SetReminder(itemID string, dueMS int64, profile string) error
	SetPendingStatus(id, status string) error
}

// Extractor turns a URL (plus any caption) into extracted content.
type Extractor interface {
	ExtractWithCaption(ctx context.Context, url, caption string) extract.Result
}

// Analyzer produces annotations for text and images.
type Analyzer interface {
	Analyze(ctx context.Context, input analyze.Input) analyze.Annotation
	AnalyzeImage(ctx context.Context, image []byte, mimeType, caption string, existingTags []string) analyze.Annotation
}

// Embedder produces the retrieval vector for an item.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorInserter stores an item's embedding.
type VectorInserter interface {
	Insert(rec retrieval.Record) error
}

// Linker computes related-item edges.
type Linker interface {
	FindRelated(ctx context.Context, item graph.NewItem) []storage.RelatedLink
}

// MediaFetcher downloads inbound media attachments.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

// Orchestrator sequences the pipeline for one pending work item.
type Orchestrator struct {
	store     Store
	extractor Extractor
	analyzer  Analyzer
	embedder  Embedder
	vectors   VectorInserter
	linker    Linker
	media     MediaFetcher
	sender    notify.Sender
	appURL    string
	log       *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(store Store, extractor Extractor, analyzer Analyzer, embedder Embedder,
	vectors VectorInserter, linker Linker, media MediaFetcher, sender notify.Sender,
	appURL string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		extractor: extractor,
		analyzer:  analyzer,
		embedder:  embedder,
		vectors:   vectors,
		linker:    linker,
		media:     media,
		sender:    sender,
		appURL:    appURL,
		log:       log,
		now:       time.Now,
	}
}

// Process runs the full pipeline for one claimed work item. It returns
// an error only when the final persist fails; every earlier stage
// degrades in place so the save still happens.
func (o *Orchestrator) Process(ctx context.Context, p storage.PendingItem) error {
	user, err := o.store.GetUser(p.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner %s: %w", p.OwnerID, err)
	}

	tags, err := o.store.UserTags(p.OwnerID)
	if err != nil {
		o.log.Warn("tag vocabulary unavailable", "owner", p.OwnerID, "error", err)
	}

	o.setStatus(p.ID, storage.PendingScraping)
	res, ann := o.extractAndAnalyze(ctx, p, tags)

	itemID := uuid.NewString()
	links := o.enrich(ctx, itemID, p.OwnerID, ann)

	sourceType := res.ContentType
	if ann.Recipe != nil {
		sourceType = storage.SourceRecipe
	}
	if sourceType == "" {
		sourceType = storage.SourceOther
	}

	item := storage.Item{
		ID:              itemID,
		OwnerID:         p.OwnerID,
		URL:             p.URL,
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
		ReminderProfile: profileOrDefault(user.ReminderProfile),
		CreatedAt:       o.now().UnixMilli(),
	}

	o.setStatus(p.ID, storage.PendingSaving)
	if err := o.store.SaveItem(item); err != nil {
		return fmt.Errorf("persist item for %s: %w", p.OwnerID, err)
	}
	if err := o.store.SetLastSavedItem(user.ID, itemID); err != nil {
		o.log.Warn("last-saved pointer not updated", "user", user.ID, "error", err)
	}

	reply := o.scheduleReminder(p, item)
	if err := o.sender.Send(ctx, user.PhoneNumber, reply); err != nil {
		o.log.Warn("reply delivery failed", "user", user.ID, "error", err)
	}
	return nil
}

// extractAndAnalyze runs the content stages. Both already degrade
// internally; this only chooses between the URL path and the image
// path.
func (o *Orchestrator) extractAndAnalyze(ctx context.Context, p storage.PendingItem, tags []string) (extract.Result, analyze.Annotation) {
	if p.HasMedia() {
		res := extract.Result{ContentType: storage.SourceImage}
		image, mime, err := o.media.FetchMedia(ctx, p.MediaURL)
		if err != nil {
			o.log.Warn("media download failed", "pending", p.ID, "error", err)
		}
		if mime == "" {
			mime = p.MediaMIME
		}
		o.setStatus(p.ID, storage.PendingAnalyzing)
		ann := o.analyzer.AnalyzeImage(ctx, image, mime, p.RawText, tags)
		res.Title = ann.Title
		return res, ann
	}

	res := o.extractor.ExtractWithCaption(ctx, p.URL, p.RawText)
	o.setStatus(p.ID, storage.PendingAnalyzing)
	ann := o.analyzer.Analyze(ctx, analyze.Input{
		URL:          p.URL,
		Title:        res.Title,
		Text:         res.Text,
		ContentType:  res.ContentType,
		ExistingTags: tags,
	})
	return res, ann
}

// enrich computes the embedding, then stores the vector and runs the
// graph link concurrently; the linker only needs the embedding itself,
// not the stored row. Both halves are best-effort.
func (o *Orchestrator) enrich(ctx context.Context, itemID, ownerID string, ann analyze.Annotation) []storage.RelatedLink {
	embedding, err := o.embedder.Embed(ctx, retrieval.ItemText(ann.Title, ann.Summary, ann.Tags))
	if err != nil {
		o.log.Warn("embedding failed", "item", itemID, "error", err)
		return nil
	}

	var links []storage.RelatedLink
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		links = o.linker.FindRelated(gctx, graph.NewItem{
			ID:        itemID,
			OwnerID:   ownerID,
			Title:     ann.Title,
			Summary:   ann.Summary,
			Concepts:  ann.Concepts,
			Embedding: embedding,
		})
		return nil
	})
	g.Go(func() error {
		if err := o.vectors.Insert(retrieval.Record{
			ItemID:    itemID,
			OwnerID:   ownerID,
			Embedding: embedding,
			CreatedAt: o.now().UnixMilli(),
		}); err != nil {
			o.log.Warn("vector insert failed", "item", itemID, "error", err)
		}
		return nil
	})
	_ = g.Wait()

	return links
}

// scheduleReminder applies any reminder intent in the inbound text and
// picks the reply message.
func (o *Orchestrator) scheduleReminder(p storage.PendingItem, item storage.Item) string {
	if due, ok := reminder.ParseIntent(p.RawText, o.now()); ok {
		if err := o.store.SetReminder(item.ID, due.UnixMilli(), item.ReminderProfile); err != nil {
			o.log.Warn("reminder not scheduled", "item", item.ID, "error", err)
		} else {
			return notify.FormatReminderSet(item.Title, due)
		}
	}

	if (analyze.Annotation{Tags: item.Tags}).Degraded() {
		return notify.FormatDegradedSave(item)
	}
	return notify.FormatSaveConfirmation(item, o.appURL)
}

func (o *Orchestrator) setStatus(id, status string) {
	if err := o.store.SetPendingStatus(id, status); err != nil {
		o.log.Warn("pending status not updated", "pending", id, "status", status, "error", err)
	}
}

func readTime(text string, degraded bool) int {
	if degraded {
		return 0
	}
	minutes := len(text) / readTimeDivisor
	if minutes < 1 {
		return 1
	}
	return minutes
}

func profileOrDefault(profile string) string {
	if profile == "" {
		return reminder.ProfileSmart
	}
	return profile
}
