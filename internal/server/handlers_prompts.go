package server

import (
	"net/http"

	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// HandlePromptTemplate handles GET /prompt/template/{kind}.
func (h *Handlers) HandlePromptTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.prompts.Template(model.TemplateKind(r.PathValue("kind")))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tmpl)
}

// HandleListPrompts handles GET /prompt/list.
func (h *Handlers) HandleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.prompts.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if prompts == nil {
		prompts = []model.Prompt{}
	}
	writeJSON(w, r, http.StatusOK, prompts)
}

// HandleListPromptNames handles GET /prompt/list/name.
func (h *Handlers) HandleListPromptNames(w http.ResponseWriter, r *http.Request) {
	names, err := h.prompts.Names(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, r, http.StatusOK, names)
}

// HandleCreatePrompt handles POST /prompt.
func (h *Handlers) HandleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var p model.Prompt
	if err := decodeJSON(w, r, &p, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.prompts.Create(r.Context(), p); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.MessageResponse{Message: "Prompt " + p.Name + " saved."})
}

// HandleUpdatePrompt handles PUT /prompt.
func (h *Handlers) HandleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var p model.Prompt
	if err := decodeJSON(w, r, &p, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.prompts.Update(r.Context(), p); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.MessageResponse{Message: "Prompt " + p.Name + " updated."})
}

// HandleDeletePrompt handles DELETE /prompt/{name}.
func (h *Handlers) HandleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.prompts.Delete(r.Context(), name); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.MessageResponse{Message: "Prompt " + name + " deleted."})
}
