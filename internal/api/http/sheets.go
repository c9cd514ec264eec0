package http

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/gabarito/internal/answerkey"
	auth "github.com/mind-engage/gabarito/internal/auth/middleware"
	"github.com/mind-engage/gabarito/internal/storage"
)

// MountSheets serves stored sheet images. Keys are sheets/<owner>/<key>/<file>;
// only the owner may read them.
func MountSheets(r chi.Router, bs storage.BlobStore, logger *zap.Logger) {
	// GET /sheets/*   -> returns the blob at whatever follows /sheets/
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		owner, _, _ := strings.Cut(rest, "/")
		if owner != auth.SubjectFromContext(r.Context()) {
			writeError(w, r, logger, answerkey.ErrForbidden)
			return
		}
		rc, err := bs.Get("sheets/" + rest)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidKey) || errors.Is(err, fs.ErrNotExist) {
				writeJSON(w, http.StatusNotFound, errorBody{"NotFound", "folha não encontrada"})
				return
			}
			writeError(w, r, logger, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(rest))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = io.Copy(w, rc)
	})
}
