package server

import (
	"net/http"

	"github.com/Mike1ife/RAGentFlow/internal/graph"
	"github.com/Mike1ife/RAGentFlow/internal/model"
)

// GraphExport is the body of GET /graph/export.
type GraphExport struct {
	Format  string `json:"format"`
	Content string `json:"content"`
}

// HandleGraphList handles GET /graph/list.
func (h *Handlers) HandleGraphList(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.Graph(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, g)
}

// HandleGraphExport handles GET /graph/export?format=mermaid|json.
func (h *Handlers) HandleGraphExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = graph.FormatMermaid
	}
	if format != graph.FormatMermaid && format != graph.FormatJSON {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "format must be mermaid or json")
		return
	}
	g, err := h.graph.Graph(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	out, err := graph.Export(g, format)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, GraphExport{Format: format, Content: string(out)})
}

// HandleSetEntry handles PUT /graph/entry/{name}.
func (h *Handlers) HandleSetEntry(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.graph.SetEntry(r.Context(), name); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.MessageResponse{Message: "Entry node set to " + name + "."})
}

// HandleAddAgent handles POST /graph/agent.
func (h *Handlers) HandleAddAgent(w http.ResponseWriter, r *http.Request) {
	var node model.AgentNode
	if err := decodeJSON(w, r, &node, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.graph.AddNode(r.Context(), node); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, node)
}

// HandleUpdateAgent handles PUT /graph/agent/{name}. The body may rename
// the node; its edges and entry flag follow.
func (h *Handlers) HandleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var node model.AgentNode
	if err := decodeJSON(w, r, &node, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.graph.UpdateNode(r.Context(), r.PathValue("name"), node); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, node)
}

// HandleDeleteAgent handles DELETE /graph/agent/{name}.
func (h *Handlers) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.graph.DeleteNode(r.Context(), name); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.MessageResponse{Message: "Agent " + name + " deleted."})
}

// HandleAddEdge handles POST /graph/edge.
func (h *Handlers) HandleAddEdge(w http.ResponseWriter, r *http.Request) {
	var e model.Edge
	if err := decodeJSON(w, r, &e, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.graph.AddEdge(r.Context(), e); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// HandleUpdateEdge handles PUT /graph/edge.
func (h *Handlers) HandleUpdateEdge(w http.ResponseWriter, r *http.Request) {
	var e model.Edge
	if err := decodeJSON(w, r, &e, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := h.graph.UpdateEdge(r.Context(), e); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, e)
}

// HandleDeleteEdge handles DELETE /graph/edge/{src}/{dest}.
func (h *Handlers) HandleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	src, dest := r.PathValue("src"), r.PathValue("dest")
	if err := h.graph.DeleteEdge(r.Context(), src, dest); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.MessageResponse{Message: "Edge " + src + " → " + dest + " deleted."})
}

// HandleResetGraph handles POST /graph/reset.
func (h *Handlers) HandleResetGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.graph.Reset(r.Context()); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	g, err := h.graph.Graph(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, g)
}
