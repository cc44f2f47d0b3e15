// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pdiddy/claimgraph/internal/docstore"
	"github.com/pdiddy/claimgraph/internal/jobs"
	"github.com/pdiddy/claimgraph/pkg/types"
)

// maxAskBytes bounds the JSON body of a question.
const maxAskBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

type submitResponse struct {
	DocumentID string         `json:"document_id"`
	JobID      string         `json:"job_id"`
	JobState   types.JobState `json:"job_state"`
	Duplicate  bool           `json:"duplicate"`
}

type documentResponse struct {
	Document types.Document `json:"document"`
	Job      *types.Job     `json:"job,omitempty"`
}

type jobResponse struct {
	JobID   string          `json:"job_id"`
	Attempt int             `json:"attempt"`
	State   types.JobState  `json:"state"`
	Error   *types.JobError `json:"error,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
	Context  struct {
		DocumentIDs []string `json:"document_ids"`
	} `json:"context"`
}

type rescanResponse struct {
	Added int `json:"added"`
}

// handleSubmit accepts a multipart upload in field "file" or the raw file
// as the request body with the name in ?filename=.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	filename, data, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "document exceeds the upload limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "empty document"})
		return
	}

	sub, err := s.pipeline.Submit(r.Context(), filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		DocumentID: sub.Document.ID,
		JobID:      sub.Job.ID,
		JobState:   sub.Job.State,
		Duplicate:  sub.Duplicate,
	})
}

func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return r.URL.Query().Get("filename"), data, err
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return "", nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil, errors.New(`multipart field "file" is required`)
		}
		if err != nil {
			return "", nil, err
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		return part.FileName(), data, err
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.pipeline.Documents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []types.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.pipeline.Document(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := documentResponse{Document: doc}
	job, err := s.pipeline.Status(r.Context(), id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
	case err != nil:
		s.writeError(w, r, err)
		return
	default:
		resp.Job = &job
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.pipeline.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleResubmit(w http.ResponseWriter, r *http.Request) {
	job, err := s.pipeline.Resubmit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func toJobResponse(job types.Job) jobResponse {
	return jobResponse{JobID: job.ID, Attempt: job.Attempt, State: job.State, Error: job.Error}
}

// handleAsk answers with 200 whether the result is an answer or a refusal.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxAskBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "question is required"})
		return
	}

	ans, err := s.answers.Answer(r.Context(), types.Question{
		Text:        req.Question,
		DocumentIDs: req.Context.DocumentIDs,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	added, err := s.rescanner.Rescan(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rescanResponse{Added: len(added)})
}

// writeError maps store and job errors to status codes. Server errors are
// logged with their error values.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, jobs.ErrJobActive):
		status = http.StatusConflict
	}
	if status >= http.StatusInternalServerError {
		s.log.Err("request failed", err, "method", r.Method, "path", r.URL.Path)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // header already committed
}
