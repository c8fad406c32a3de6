//go:build ui_embed

// Package ui serves the operator web interface.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// The frontend build output is embedded with: go build -tags ui_embed .

//go:embed all:dist
var distFS embed.FS

// Handler serves the embedded frontend. Paths without an extension that
// do not name a file fall back to index.html for client-side routing.
func Handler() (http.Handler, error) {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean(r.URL.Path)
		if st, statErr := fs.Stat(fsys, strings.TrimPrefix(p, "/")); statErr == nil && !st.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}
		if !strings.Contains(path.Base(p), ".") {
			r.URL.Path = "/"
		}
		fileServer.ServeHTTP(w, r)
	}), nil
}
