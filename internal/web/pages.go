package web

import (
	"net/http"

	"github.com/kozaktomas/selfie-finder/internal/web/static"
)

// serveScanPage serves the guest selfie page. The page reads the event id
// from its own URL.
func (s *Server) serveScanPage(w http.ResponseWriter, r *http.Request) {
	page, err := static.Index()
	if err != nil {
		http.Error(w, "scan page not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

// assetHandler serves the scan page's scripts and styles.
func assetHandler() http.Handler {
	files := http.FileServerFS(static.FS())
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
