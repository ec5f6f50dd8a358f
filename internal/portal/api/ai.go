package api

import (
	"net/http"

	"github.com/moussadar/moussadar/internal/portal/chat"
	"github.com/moussadar/moussadar/internal/portal/schema"
)

// bodyLang parses an optional lang field from a request body.
func bodyLang(w http.ResponseWriter, raw string) (schema.Lang, bool) {
	lang, err := schema.ParseLang(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported language")
		return "", false
	}
	return lang, true
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message *string `json:"message"`
		Lang    string  `json:"lang"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}
	lang, ok := bodyLang(w, body.Lang)
	if !ok {
		return
	}
	if body.Message == nil || chat.ValidateMessage(*body.Message) != nil {
		s.fail(w, badRequest(chat.ErrInvalidMessage.Error()))
		return
	}

	reply, err := s.deps.Chat.Respond(r.Context(), *body.Message, lang)
	if err != nil {
		s.fail(w, internal("Failed to process message", err))
		return
	}
	writeData(w, reply)
}

func (s *Server) suggestions(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	suggestions, err := s.deps.Chat.Suggestions(r.Context(), r.URL.Query().Get("category"), lang)
	if err != nil {
		s.fail(w, internal("Failed to fetch suggestions", err))
		return
	}
	writeData(w, suggestions)
}

func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MessageID *string `json:"messageId"`
		Helpful   *bool   `json:"helpful"`
		Lang      string  `json:"lang"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeDecodeError(w, err)
		return
	}
	lang, ok := bodyLang(w, body.Lang)
	if !ok {
		return
	}
	if body.MessageID == nil || body.Helpful == nil {
		s.fail(w, badRequest("messageId and helpful are required"))
		return
	}

	updated, err := s.deps.Chat.Feedback(r.Context(), *body.MessageID, *body.Helpful, lang)
	if err != nil {
		s.fail(w, internal("Failed to record feedback", err))
		return
	}
	writeData(w, map[string]any{
		"message": "Feedback recorded successfully",
		"updated": updated,
	})
}
