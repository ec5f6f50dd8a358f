package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/moussadar/moussadar/internal/portal/sync"
)

// submitBatch handles POST /api/sync/offline. Malformed batches are
// rejected before anything is written; per-action failures are reported in
// the result and do not fail the request.
func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

	batch, err := sync.ParseBatch(body)
	if err != nil {
		s.fail(w, badRequest("Missing userId or actions array"))
		return
	}

	result, err := s.deps.Sync.SubmitBatch(r.Context(), batch.UserID, batch.Actions)
	if err != nil {
		s.fail(w, internal("Failed to sync offline data", err))
		return
	}
	writeData(w, result)
}

func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Sync.ListPending(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.fail(w, internal("Failed to fetch pending sync items", err))
		return
	}
	writeList(w, items)
}

func (s *Server) markSynced(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ItemIDs json.RawMessage `json:"itemIds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	ids, err := sync.ParseItemIDs(body.ItemIDs)
	if errors.Is(err, sync.ErrInvalidItemIDs) {
		s.fail(w, badRequest("itemIds must be an array"))
		return
	}
	if err != nil {
		s.fail(w, internal("Failed to mark items as synced", err))
		return
	}

	updated, err := s.deps.Sync.MarkSynced(r.Context(), ids)
	if err != nil {
		s.fail(w, internal("Failed to mark items as synced", err))
		return
	}
	writeData(w, map[string]any{
		"updatedCount": updated,
		"message":      fmt.Sprintf("%d items marked as synced", updated),
	})
}

func (s *Server) syncStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Sync.Stats(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.fail(w, internal("Failed to fetch sync statistics", err))
		return
	}
	writeData(w, stats)
}
