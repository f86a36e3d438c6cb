package stream

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// fileTable maps opaque tokens to local files the viewer may display, such
// as generated images. Only registered paths are ever served.
type fileTable struct {
	mu      sync.RWMutex
	byToken map[string]string
	byPath  map[string]string
}

func newFileTable() *fileTable {
	return &fileTable{
		byToken: make(map[string]string),
		byPath:  make(map[string]string),
	}
}

func (t *fileTable) register(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if token, ok := t.byPath[path]; ok {
		return token
	}
	token := uuid.NewString()
	t.byToken[token] = path
	t.byPath[path] = token
	return token
}

func (t *fileTable) lookup(token string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	path, ok := t.byToken[token]
	return path, ok
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	path, ok := s.files.lookup(r.PathValue("token"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.NotFound(w, r)
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(path))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "max-age=3600")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
