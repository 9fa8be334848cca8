package handlers

import (
	"net/http"

	"github.com/Brownie44l1/digitpad/internal/web"
)

// Index serves the drawing page. The canvas uses the preview size so the
// model's view lines up with the drawing.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := web.Index.Execute(w, web.Page{CanvasSize: h.previewSize}); err != nil {
		h.logger.Error("Rendering index: %v", err)
	}
}
