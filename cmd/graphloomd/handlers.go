package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/graphloom/graphloom"
	"github.com/graphloom/graphloom/kg"
)

type handler struct {
	engine graphloom.Engine
}

func newHandler(engine graphloom.Engine) *handler {
	return &handler{engine: engine}
}

type ingestRequest struct {
	ProjectID  string            `json:"project_id"`
	DocumentID string            `json:"document_id,omitempty"`
	Content    string            `json:"content,omitempty"`
	Path       string            `json:"path,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type ingestResponse struct {
	DocID   string `json:"doc_id"`
	Elapsed string `json:"elapsed"`
}

// handleIngest accepts either inline content or a server-local file path
// and runs it through the full pipeline. The call blocks until the
// document is COMPLETED or FAILED.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Content == "" && req.Path == "" {
		writeError(w, http.StatusBadRequest, "either content or path is required")
		return
	}

	meta := make(map[string]string, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta[kg.MetaProjectID] = req.ProjectID

	start := time.Now()
	var (
		docID string
		err   error
	)
	if req.Path != "" {
		docID, err = h.engine.IngestFile(r.Context(), req.Path, meta)
	} else {
		docID, err = h.engine.Ingest(r.Context(), kg.Document{
			ID:       req.DocumentID,
			Content:  req.Content,
			Metadata: meta,
		})
	}
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, graphloom.ErrProjectIDRequired):
			status = http.StatusBadRequest
		case errors.Is(err, graphloom.ErrUnsupportedFormat):
			status = http.StatusUnsupportedMediaType
		}
		slog.Error("ingest failed", "doc_id", docID, "error", err)
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		DocID:   docID,
		Elapsed: time.Since(start).Round(time.Millisecond).String(),
	})
}

func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if docs == nil {
		docs = []kg.DocumentStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	st, err := h.engine.Status(r.Context(), docID)
	if err != nil {
		if errors.Is(err, graphloom.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	if err := h.engine.Delete(r.Context(), docID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": docID})
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
