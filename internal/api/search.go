package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/nadavhl/secondbrain/internal/storage"
)

const defaultSearchLimit = 5

// handleSearch embeds the query and runs nearest-neighbor retrieval
// over the owner's corpus. Raw vectors never leave the server; item
// timestamps are epoch-ms already.
func handleSearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		ownerID := r.URL.Query().Get("ownerId")
		if ownerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ownerId is required")
			return
		}

		limit := defaultSearchLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		vector, err := deps.Embedder.Embed(r.Context(), query)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "embedding query: %v", err)
			return
		}

		scored, err := deps.Vectors.Search(ownerID, vector, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "vector search: %v", err)
			return
		}

		ids := make([]string, 0, len(scored))
		scores := make(map[string]float64, len(scored))
		for _, s := range scored {
			ids = append(ids, s.ItemID)
			scores[s.ItemID] = s.Score
		}

		items, err := deps.Store.GetItems(ids)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading items: %v", err)
			return
		}

		type result struct {
			Item  storage.Item `json:"item"`
			Score float64      `json:"score"`
		}
		results := make([]result, 0, len(items))
		for _, it := range items {
			results = append(results, result{Item: it, Score: scores[it.ID]})
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

		writeJSON(w, http.StatusOK, map[string]any{
			"results": results,
			"count":   len(results),
		})
	}
}
