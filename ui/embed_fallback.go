//go:build !ui_embed

// Package ui serves the operator web interface.
package ui

import (
	_ "embed"
	"net/http"
)

//go:embed operator.html
var operatorPage []byte

// Handler serves a single-page operator console with live previews and
// trigger controls. The API docs stay at /docs.
func Handler() (http.Handler, error) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" && r.URL.Path != "/index.html" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(operatorPage)
	}), nil
}
