// Copyright © 2024 Vortex Studio.

package scheme

import (
	"archive/zip"
	"io"
	"mime"
	"os"
	"path"
	"strings"
)

// Handler resolves a vortex:// request path against a root directory on
// disk, falling back to a bundled zip archive when one is present —
// adapted from the teacher's asset Locator (GetResource's disk-or-zip
// convention), narrowed from "find any asset type under its own
// convention directory" to "serve one file under one root to the
// embedded UI".
type Handler struct {
	root   string
	bundle *zip.ReadCloser // non-nil if a packaged resource bundle was found.
}

// NewHandler returns a Handler rooted at dir. If bundlePath names a
// readable zip archive it is consulted first, the way the teacher's
// locator preferred a packaged assets.zip over loose files in a
// production build.
func NewHandler(dir, bundlePath string) *Handler {
	h := &Handler{root: dir}
	if bundlePath != "" {
		if reader, err := zip.OpenReader(bundlePath); err == nil {
			h.bundle = reader
		}
	}
	return h
}

// Resolve opens relPath for reading and reports its MIME type derived
// from the file extension. The caller is responsible for closing file.
func (h *Handler) Resolve(relPath string) (file io.ReadCloser, contentType string, err error) {
	clean := strings.TrimPrefix(path.Clean("/"+relPath), "/")
	contentType = mimeFor(clean)

	if h.bundle != nil {
		for _, f := range h.bundle.File {
			if f.Name == clean {
				rc, err := f.Open()
				if err != nil {
					return nil, contentType, err
				}
				return rc, contentType, nil
			}
		}
	}

	f, err := os.Open(path.Join(h.root, clean))
	if err != nil {
		return nil, contentType, err
	}
	return f, contentType, nil
}

func mimeFor(relPath string) string {
	ext := path.Ext(relPath)
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Close releases the bundled zip reader, if one was opened.
func (h *Handler) Close() error {
	if h.bundle != nil {
		return h.bundle.Close()
	}
	return nil
}
