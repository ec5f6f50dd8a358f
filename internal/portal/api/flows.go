package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/moussadar/moussadar/internal/portal/db"
	"github.com/moussadar/moussadar/internal/portal/sync"
)

type trackingStep struct {
	ID        int     `json:"id"`
	Title     string  `json:"title"`
	Completed bool    `json:"completed"`
	Date      *string `json:"date"`
}

type statusLabel struct {
	FR string `json:"fr"`
	AR string `json:"ar"`
}

type tracking struct {
	RequestID           string         `json:"requestId"`
	Status              string         `json:"status"`
	StatusLabel         statusLabel    `json:"statusLabel"`
	EstimatedCompletion string         `json:"estimatedCompletion"`
	Steps               []trackingStep `json:"steps"`
}

func (s *Server) requestDocument(w http.ResponseWriter, r *http.Request) {
	var req sync.DocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	requestID, err := s.deps.Sync.RequestDocument(r.Context(), req)
	if errors.Is(err, sync.ErrMissingFields) {
		s.fail(w, badRequest("Missing required fields"))
		return
	}
	if err != nil {
		s.fail(w, internal("Failed to submit document request", err))
		return
	}

	writeData(w, map[string]string{
		"requestId": requestID,
		"message":   "Document request submitted successfully",
	})
}

// trackDocument reports a fixed processing timeline relative to now. Real
// tracking is not backed by any store yet.
func (s *Server) trackDocument(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now().UTC()
	stamp := func(d time.Duration) *string {
		v := now.Add(d).Format(time.RFC3339Nano)
		return &v
	}

	writeData(w, tracking{
		RequestID: chi.URLParam(r, "requestId"),
		Status:    "processing",
		StatusLabel: statusLabel{
			FR: "En cours de traitement",
			AR: "قيد المعالجة",
		},
		EstimatedCompletion: *stamp(7 * 24 * time.Hour),
		Steps: []trackingStep{
			{ID: 1, Title: "Demande reçue", Completed: true, Date: stamp(-2 * 24 * time.Hour)},
			{ID: 2, Title: "Vérification des documents", Completed: true, Date: stamp(-24 * time.Hour)},
			{ID: 3, Title: "Traitement en cours"},
			{ID: 4, Title: "Document prêt"},
		},
	})
}

func (s *Server) startProcedure(w http.ResponseWriter, r *http.Request) {
	var req sync.ProcedureStart
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	sessionID, err := s.deps.Sync.StartProcedure(r.Context(), req)
	if errors.Is(err, sync.ErrMissingFields) {
		s.fail(w, badRequest("Missing required fields"))
		return
	}
	if err != nil {
		s.fail(w, internal("Failed to start procedure", err))
		return
	}

	writeData(w, map[string]string{
		"sessionId": sessionID,
		"message":   "Procedure started successfully",
	})
}

func (s *Server) updateProgress(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentStep *int            `json:"currentStep"`
		Status      *string         `json:"status"`
		Data        json.RawMessage `json:"data"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}

	err := s.deps.Sync.UpdateProgress(r.Context(), chi.URLParam(r, "sessionId"), db.ProcedureProgress{
		CurrentStep: body.CurrentStep,
		Status:      body.Status,
		Data:        body.Data,
	})
	if err != nil {
		s.fail(w, lookupError(err, "Procedure session not found", "Failed to update progress"))
		return
	}

	writeData(w, map[string]string{"message": "Progress updated successfully"})
}
