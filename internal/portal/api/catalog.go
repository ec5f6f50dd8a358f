package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/moussadar/moussadar/internal/portal/db"
)

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	services, err := s.deps.DB.ListServices(r.Context(), db.CatalogFilter{
		Lang:        lang,
		Category:    q.Get("category"),
		Search:      q.Get("search"),
		OfflineOnly: q.Get("offline") == "true",
	})
	if err != nil {
		s.fail(w, internal("Failed to fetch services", err))
		return
	}
	writeList(w, services)
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	service, err := s.deps.DB.GetService(r.Context(), chi.URLParam(r, "id"), lang)
	if err != nil {
		s.fail(w, lookupError(err, "Service not found", "Failed to fetch service"))
		return
	}
	writeData(w, service)
}

func (s *Server) serviceCategories(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	categories, err := s.deps.DB.ServiceCategories(r.Context(), lang)
	if err != nil {
		s.fail(w, internal("Failed to fetch categories", err))
		return
	}
	writeData(w, categories)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	documents, err := s.deps.DB.ListDocuments(r.Context(), db.CatalogFilter{
		Lang:   lang,
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		s.fail(w, internal("Failed to fetch documents", err))
		return
	}
	writeList(w, documents)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	document, err := s.deps.DB.GetDocument(r.Context(), chi.URLParam(r, "id"), lang)
	if err != nil {
		s.fail(w, lookupError(err, "Document not found", "Failed to fetch document"))
		return
	}
	writeData(w, document)
}

func (s *Server) listProcedures(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	procedures, err := s.deps.DB.ListProcedures(r.Context(), db.CatalogFilter{
		Lang:       lang,
		Category:   q.Get("category"),
		Difficulty: q.Get("difficulty"),
		Search:     q.Get("search"),
	})
	if err != nil {
		s.fail(w, internal("Failed to fetch procedures", err))
		return
	}
	writeList(w, procedures)
}

func (s *Server) getProcedure(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	procedure, err := s.deps.DB.GetProcedure(r.Context(), chi.URLParam(r, "id"), lang)
	if err != nil {
		s.fail(w, lookupError(err, "Procedure not found", "Failed to fetch procedure"))
		return
	}
	writeData(w, procedure)
}

func (s *Server) procedureCategories(w http.ResponseWriter, r *http.Request) {
	lang, ok := langParam(w, r)
	if !ok {
		return
	}
	categories, err := s.deps.DB.ProcedureCategories(r.Context(), lang)
	if err != nil {
		s.fail(w, internal("Failed to fetch categories", err))
		return
	}
	writeData(w, categories)
}
