package server

import (
	"net/http"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// HandleValidate handles GET /simulation/validate.
func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	report, err := h.validator.Validate(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

// HandleRun handles POST /simulation/run.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req model.QueryRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	result, err := h.simulator.Simulate(r.Context(), req.Query)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleLastResult handles GET /simulation/result.
func (h *Handlers) HandleLastResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.simulator.LastResult()
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
