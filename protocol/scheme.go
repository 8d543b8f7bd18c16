// Copyright © 2024 Vortex Studio.

package protocol

import (
	"io"
	"net/http"
	"strings"

	"github.com/vortexstudio/vortex/internal/scheme"
)

// SchemeHandler serves http://vortex/<relative-path> requests from the
// embedded UI by delegating to internal/scheme.Handler (spec 4.M).
type SchemeHandler struct {
	resolver *scheme.Handler
}

// NewSchemeHandler wraps resolver as an http.Handler.
func NewSchemeHandler(resolver *scheme.Handler) *SchemeHandler {
	return &SchemeHandler{resolver: resolver}
}

func (h *SchemeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/")
	f, contentType, err := h.resolver.Resolve(rel)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", contentType)
	io.Copy(w, f)
}
