// Copyright © 2024 Vortex Studio.

package scheme

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestHandlerResolveFromDisk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}

	h := NewHandler(dir, "")
	defer h.Close()

	f, contentType, err := h.Resolve("index.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()

	if contentType != "text/html; charset=utf-8" {
		t.Errorf("expected text/html content type, got %q", contentType)
	}
	body, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("unexpected read error: %v", err)
	}
	if string(body) != "<html></html>" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestHandlerResolveCleansPathTraversal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}

	h := NewHandler(dir, "")
	defer h.Close()

	// "../../etc/passwd" must clean down to a path rooted at dir, not
	// escape it; since that cleaned relative path doesn't exist, Resolve
	// should fail rather than read outside dir.
	if _, _, err := h.Resolve("../../etc/passwd"); err == nil {
		t.Errorf("expected resolving an escaping path to fail")
	}

	f, _, err := h.Resolve("../app.js")
	if err != nil {
		t.Fatalf("expected a traversal that cleans back to an in-root file to resolve, got: %v", err)
	}
	f.Close()
}

func TestHandlerResolveMissingFile(t *testing.T) {
	h := NewHandler(t.TempDir(), "")
	defer h.Close()

	if _, _, err := h.Resolve("missing.html"); err == nil {
		t.Errorf("expected an error resolving a file that doesn't exist")
	}
}

func TestHandlerUnknownExtensionFallsBackToOctetStream(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.vortexbin"), []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}

	h := NewHandler(dir, "")
	defer h.Close()

	f, contentType, err := h.Resolve("data.vortexbin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer f.Close()
	if contentType != "application/octet-stream" {
		t.Errorf("expected application/octet-stream fallback, got %q", contentType)
	}
}
