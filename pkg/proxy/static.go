package proxy

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Evoker-Industries/Janus/pkg/config"
)

// staticMount serves one static file mount. Mounts are checked before
// proxy routes, in declaration order.
type staticMount struct {
	prefix  string
	root    string
	index   string
	listing bool
}

func compileStatic(cfg config.StaticFileConfig) *staticMount {
	index := cfg.Index
	if index == "" {
		index = config.DefaultIndexFile
	}
	return &staticMount{
		prefix:  cfg.Path,
		root:    cfg.Root,
		index:   index,
		listing: cfg.DirectoryListing,
	}
}

// match reports whether the request path falls under the mount prefix and
// returns the path relative to it.
func (m *staticMount) match(requestPath string) (rel string, ok bool) {
	if requestPath == m.prefix {
		return "", true
	}
	base := m.prefix
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if strings.HasPrefix(requestPath, base) {
		return requestPath[len(base):], true
	}
	return "", false
}

func (m *staticMount) serve(w http.ResponseWriter, r *http.Request, rel string) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Cleaning with a leading slash keeps ".." from escaping the root.
	clean := path.Clean("/" + rel)
	fsPath := filepath.Join(m.root, filepath.FromSlash(clean))

	info, err := os.Stat(fsPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if !info.IsDir() {
		http.ServeFile(w, r, fsPath)
		return
	}

	indexPath := filepath.Join(fsPath, m.index)
	if _, err := os.Stat(indexPath); err == nil {
		http.ServeFile(w, r, indexPath)
		return
	}
	if m.listing {
		m.serveListing(w, r, fsPath, clean)
		return
	}
	http.NotFound(w, r)
}

// serveListing renders a minimal HTML directory listing.
func (m *staticMount) serveListing(w http.ResponseWriter, r *http.Request, fsPath, urlPath string) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		http.Error(w, "failed to read directory", http.StatusInternalServerError)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>Index of %s</title></head><body>\n",
		html.EscapeString(urlPath))
	fmt.Fprintf(w, "<h1>Index of %s</h1>\n<ul>\n", html.EscapeString(urlPath))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		escaped := html.EscapeString(name)
		fmt.Fprintf(w, "<li><a href=\"%s\">%s</a></li>\n", escaped, escaped)
	}
	fmt.Fprint(w, "</ul>\n</body></html>\n")
}
