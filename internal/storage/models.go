package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Source types detected from the submitted URL.
const (
	SourceWeb    = "web"
	SourceTweet  = "tweet"
	SourceVideo  = "video"
	SourceImage  = "image"
	SourceRecipe = "recipe"
	SourcePDF    = "pdf"
	SourceOther  = "other"
)

// Reminder states for an item.
const (
	ReminderNone      = "none"
	ReminderPending   = "pending"
	ReminderCompleted = "completed"
)

// Pending work item states.
const (
	PendingQueued     = "queued"
	PendingProcessing = "processing"
	PendingScraping   = "scraping"
	PendingAnalyzing  = "analyzing"
	PendingSaving     = "saving"
	PendingDone       = "done"
	PendingFailed     = "failed"
)

type User struct {
	ID               string `json:"id"`
	PhoneNumber      string `json:"phoneNumber"`
	RemindersEnabled bool   `json:"remindersEnabled"`
	ReminderProfile  string `json:"reminderProfile"`
	LastSavedItemID  string `json:"lastSavedItemId,omitempty"`
	CreatedAt        int64  `json:"createdAt"` // epoch ms
}

// RelatedLink is one edge in the knowledge graph, computed once at item
// creation relative to the corpus at that time.
type RelatedLink struct {
	TargetID       string   `json:"id"`
	Title          string   `json:"title"`
	Reason         string   `json:"reason"`
	Similarity     float64  `json:"similarity"`
	SharedConcepts []string `json:"commonConcepts"`
}

// Recipe is the optional structured recipe extracted for cooking content.
type Recipe struct {
	Ingredients  []string `json:"ingredients"`
	Instructions []string `json:"instructions"`
	Servings     string   `json:"servings,omitempty"`
	PrepTime     string   `json:"prepTime,omitempty"`
	CookTime     string   `json:"cookTime,omitempty"`
}

// Item is the durable unit of knowledge.
type Item struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"ownerId"`
	URL             string        `json:"url"`
	SourceType      string        `json:"sourceType"`
	OriginalTitle   string        `json:"originalTitle,omitempty"`
	Title           string        `json:"title"`
	Summary         string        `json:"summary"`
	DetailedSummary string        `json:"detailedSummary,omitempty"`
	Category        string        `json:"category"`
	Tags            []string      `json:"tags"`
	Concepts        []string      `json:"concepts,omitempty"`
	Language        string        `json:"language,omitempty"`
	Confidence      string        `json:"confidence,omitempty"`
	Takeaway        string        `json:"takeaway,omitempty"`
	Recipe          *Recipe       `json:"recipe,omitempty"`
	ReadTime        int           `json:"estimatedReadTime"`
	Status          string        `json:"status"`
	Related         []RelatedLink `json:"related,omitempty"`
	ReminderStatus  string        `json:"reminderStatus"`
	NextReminderAt  *int64        `json:"nextReminderAt,omitempty"` // epoch ms
	ReminderCount   int           `json:"reminderCount"`
	ReminderProfile string        `json:"reminderProfile"`
	CreatedAt       int64         `json:"createdAt"` // epoch ms
}

// PendingItem is a queue entry bridging the fast webhook ack and the slow
// background processing. Deleted on success, retained on failure.
type PendingItem struct {
	ID        string
	OwnerID   string
	URL       string
	RawText   string
	MediaURL  string
	MediaMIME string
	Status    string
	Attempts  int
	LastError string
	CreatedAt int64 // epoch ms
}

// HasMedia reports whether the pending item carries an inbound media
// attachment instead of (or in addition to) a URL.
func (p PendingItem) HasMedia() bool {
	return p.MediaURL != ""
}
