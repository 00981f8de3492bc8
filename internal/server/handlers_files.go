package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// similarLimit is how many neighbours GET /file/{name}/chunks/{index}/similar returns.
const similarLimit = 3

// UploadResponse is the body of POST /file/upload.
type UploadResponse struct {
	FileName string `json:"fileName"`
	Chunks   int    `json:"chunks"`
}

// HandleUploadFile handles POST /file/upload (multipart field "file").
func (h *Handlers) HandleUploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "multipart field \"file\" is required")
		return
	}
	defer func() { _ = file.Close() }()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) || len(name) > model.MaxNameLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid file name")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "read upload: "+err.Error())
		return
	}

	n, err := h.ingester.Ingest(r.Context(), name, data)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, UploadResponse{FileName: name, Chunks: n})
}

// HandleClearFiles handles DELETE /file/delete.
func (h *Handlers) HandleClearFiles(w http.ResponseWriter, r *http.Request) {
	if err := h.ingester.Clear(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.MessageResponse{Message: "All files deleted."})
}

// HandleDeleteFile handles DELETE /file/delete/{name}.
func (h *Handlers) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.ingester.DeleteFile(r.Context(), name); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.MessageResponse{Message: "File " + name + " deleted."})
}

// HandleListFiles handles GET /file/list.
func (h *Handlers) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.library.ListFiles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if files == nil {
		files = []model.File{}
	}
	writeJSON(w, r, http.StatusOK, files)
}

// HandleFileChunks handles GET /file/{name}/chunks.
func (h *Handlers) HandleFileChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.library.ChunksOfFile(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeChunks(w, r, chunks)
}

// HandleScoredChunks handles POST /file/{name}/chunks: every chunk of the
// file scored against the query, best first.
func (h *Handlers) HandleScoredChunks(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	vec, err := h.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("embed query: %w", err))
		return
	}
	chunks, err := h.library.ChunksWithScore(r.Context(), r.PathValue("name"), vec)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeChunks(w, r, chunks)
}

// HandleSimilarChunks handles GET /file/{name}/chunks/{index}/similar.
func (h *Handlers) HandleSimilarChunks(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "chunk index must be a non-negative integer")
		return
	}
	chunks, err := h.library.SimilarChunks(r.Context(), r.PathValue("name"), index, similarLimit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeChunks(w, r, chunks)
}

func writeChunks(w http.ResponseWriter, r *http.Request, chunks []model.Chunk) {
	if chunks == nil {
		chunks = []model.Chunk{}
	}
	writeJSON(w, r, http.StatusOK, chunks)
}
