package retrieval

// VectorStore is the interface for embedding storage and similarity search.
// The implementation uses SQLite with brute-force cosine similarity over
// per-owner partitions; corpora are small enough (hundreds to low thousands
// of items per user) that a scan is cheaper than maintaining an ANN index.
type VectorStore interface {
	// Insert stores (or replaces) the embedding for an item.
	Insert(rec Record) error

	// Search returns the top-K most similar item IDs within an owner's
	// corpus, ordered by descending cosine similarity.
	Search(ownerID string, vector []float32, topK int) ([]Scored, error)

	// Get returns the stored embedding for an item, or nil if absent.
	Get(itemID string) ([]float32, error)

	// Delete removes the embedding for an item.
	Delete(itemID string) error

	// Count returns the number of stored embeddings for an owner.
	Count(ownerID string) (int, error)
}

// Record is one stored embedding.
type Record struct {
	ItemID    string
	OwnerID   string
	Embedding []float32
	CreatedAt int64 // epoch ms
}

// Scored is a search hit: an item ID with its cosine similarity.
type Scored struct {
	ItemID string
	Score  float64
}
