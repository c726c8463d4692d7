package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/evolve/internal/storage"
)

// ImageHandler serves encrypted avatar blobs from the image directory.
type ImageHandler struct {
	fs *storage.FS
}

// NewImageHandler creates a handler rooted at the encrypted image directory.
func NewImageHandler(fs *storage.FS) *ImageHandler {
	return &ImageHandler{fs: fs}
}

// ServeFile handles GET /images/{file}. Only .enc blobs are served.
func (h *ImageHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if !strings.HasSuffix(name, ".enc") {
		http.NotFound(w, r)
		return
	}
	abs, err := h.fs.Path(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !h.fs.Exists(name) {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	http.ServeFile(w, r, abs)
}
