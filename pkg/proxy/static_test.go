package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

func staticDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile := func(rel, content string) {
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeFile("index.html", "<h1>home</h1>")
	writeFile("app.js", "console.log(1)")
	writeFile("docs/readme.txt", "docs")
	return dir
}

func TestStaticMountMatch(t *testing.T) {
	m := compileStatic(config.StaticFileConfig{Path: "/assets", Root: "."})

	tests := []struct {
		path      string
		wantRel   string
		wantMatch bool
	}{
		{path: "/assets", wantRel: "", wantMatch: true},
		{path: "/assets/app.js", wantRel: "app.js", wantMatch: true},
		{path: "/assets/css/site.css", wantRel: "css/site.css", wantMatch: true},
		{path: "/assetsfoo", wantMatch: false},
		{path: "/other", wantMatch: false},
	}
	for _, tt := range tests {
		rel, ok := m.match(tt.path)
		if ok != tt.wantMatch {
			t.Errorf("match(%q) = %v, want %v", tt.path, ok, tt.wantMatch)
			continue
		}
		if ok && rel != tt.wantRel {
			t.Errorf("match(%q) rel = %q, want %q", tt.path, rel, tt.wantRel)
		}
	}
}

func TestStaticServeFile(t *testing.T) {
	m := compileStatic(config.StaticFileConfig{Path: "/assets", Root: staticDir(t)})

	rec := httptest.NewRecorder()
	m.serve(rec, httptest.NewRequest("GET", "/assets/app.js", nil), "app.js")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "console.log(1)" {
		t.Errorf("body = %q, want file contents", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "javascript") {
		t.Errorf("Content-Type = %q, want a javascript type", ct)
	}
}

func TestStaticServeIndex(t *testing.T) {
	m := compileStatic(config.StaticFileConfig{Path: "/", Root: staticDir(t)})

	rec := httptest.NewRecorder()
	m.serve(rec, httptest.NewRequest("GET", "/", nil), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "home") {
		t.Errorf("body = %q, want index file", rec.Body.String())
	}
}

func TestStaticDirectoryListing(t *testing.T) {
	dir := staticDir(t)

	// docs/ has no index file.
	withListing := compileStatic(config.StaticFileConfig{Path: "/", Root: dir, DirectoryListing: true})
	rec := httptest.NewRecorder()
	withListing.serve(rec, httptest.NewRequest("GET", "/docs", nil), "docs")
	if rec.Code != http.StatusOK {
		t.Fatalf("listing status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "readme.txt") {
		t.Errorf("listing body missing entry: %q", rec.Body.String())
	}

	withoutListing := compileStatic(config.StaticFileConfig{Path: "/", Root: dir})
	rec = httptest.NewRecorder()
	withoutListing.serve(rec, httptest.NewRequest("GET", "/docs", nil), "docs")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without listing = %d, want 404", rec.Code)
	}
}

func TestStaticRejectsTraversal(t *testing.T) {
	dir := staticDir(t)
	outside := filepath.Join(filepath.Dir(dir), "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := compileStatic(config.StaticFileConfig{Path: "/assets", Root: dir})
	rec := httptest.NewRecorder()
	m.serve(rec, httptest.NewRequest("GET", "/assets/x", nil), "../secret.txt")

	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatal("traversal escaped the mount root")
	}
}

func TestStaticMethodNotAllowed(t *testing.T) {
	m := compileStatic(config.StaticFileConfig{Path: "/assets", Root: staticDir(t)})

	rec := httptest.NewRecorder()
	m.serve(rec, httptest.NewRequest("POST", "/assets/app.js", nil), "app.js")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); !strings.Contains(allow, "GET") {
		t.Errorf("Allow = %q, want to include GET", allow)
	}
}

func TestStaticMissingFile(t *testing.T) {
	m := compileStatic(config.StaticFileConfig{Path: "/assets", Root: staticDir(t)})

	rec := httptest.NewRecorder()
	m.serve(rec, httptest.NewRequest("GET", "/assets/nope.js", nil), "nope.js")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
