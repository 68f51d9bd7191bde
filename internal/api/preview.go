package api

import (
	"encoding/json"
	"net/http"
)

type previewRequest struct {
	URL     string `json:"url"`
	Caption string `json:"caption"`
	OwnerID string `json:"ownerId"`
}

// handlePreview runs the pipeline for a URL without persisting and
// returns the record a save would have produced.
func handlePreview(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}

		item := deps.Preview.Preview(r.Context(), req.OwnerID, req.URL, req.Caption)
		writeJSON(w, http.StatusOK, item)
	}
}
