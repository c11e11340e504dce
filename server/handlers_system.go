package server

import (
	"io/fs"
	"net/http"
	"path"
)

type health struct {
	Status   string `json:"status"`
	Online   bool   `json:"online"`
	Sessions int    `json:"sessions"`
}

// HealthHandler reports liveness. The console stays up while the API is offline.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, health{
			Status:   "ok",
			Online:   s.status.Online(),
			Sessions: s.sessions.Len(),
		})
	}
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file := path.Clean(r.PathValue("file"))
		if file == "" || file == "." {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		if _, err := fs.Stat(StaticFilesFS(), file); err != nil {
			logError(r.Method, r.URL.Path, err)
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		http.ServeFileFS(w, r, StaticFilesFS(), file)
	}
}
