package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/datasage-io/datasage/internal/errs"
	"github.com/datasage-io/datasage/internal/export"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts one CSV file as multipart form data under the "file"
// field and registers it as the session's dataset.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "upload requires a csv file under the 'file' field", err))
		return
	}
	defer file.Close()

	if err := checkCSVUpload(header); err != nil {
		s.writeError(w, err)
		return
	}

	info, err := s.sessionFor(r).Upload(r.Context(), header.Filename, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// checkCSVUpload rejects anything that does not present as CSV; content is
// still parsed defensively afterwards.
func checkCSVUpload(header *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == ".csv" {
		return nil
	}
	ct := header.Header.Get("Content-Type")
	if ct == "text/csv" || ct == "application/csv" {
		return nil
	}
	return errs.New(errs.ErrKindInvalidInput, "only csv uploads are supported")
}

type queryRequest struct {
	Question string `json:"question"`
	UseModel bool   `json:"use_model"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "request body is not valid json", err))
		return
	}

	answer, err := s.sessionFor(r).Ask(r.Context(), req.Question, req.UseModel)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

type visualizeRequest struct {
	Rows    []map[string]any `json:"rows"`
	Columns []string         `json:"columns"`
}

// handleVisualize selects charts for the posted rows, or for the session's
// last query result when the body is empty.
func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, errs.Wrap(errs.ErrKindInvalidInput, "request body is not valid json", err))
		return
	}

	rows, columns := req.Rows, req.Columns
	if len(columns) == 0 {
		last, err := s.sessionFor(r).LastResult()
		if err != nil {
			s.writeError(w, err)
			return
		}
		rows, columns = last.Rows, last.Columns
	}

	charts := s.selector.Select(rows, columns)
	writeJSON(w, http.StatusOK, map[string]any{"charts": charts})
}

// handleExport streams the last query result as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	last, err := s.sessionFor(r).LastResult()
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="result.csv"`)
	if err := export.EncodeRows(w, last.Columns, last.Rows); err != nil {
		s.log.With().Err(err).Logger().Error("export write failed")
	}
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessionFor(r).Info()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}
