package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/volunteer-admission/internal/artifact"
	"github.com/Shivanand-hulikatti/volunteer-admission/internal/logging"
)

// ServeArtifact handles GET /id-cards/*
// Streams a stored identity document to the identity that uploaded it.
// Documents owned by anyone else are reported as missing.
func ServeArtifact(store artifact.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		if err := artifact.ValidateKey(key); err != nil {
			writeError(w, http.StatusNotFound, "not found", "")
			return
		}
		if artifact.KeyOwner(key) != artifact.OwnerSegment(IdentityFromContext(r.Context()).Subject) {
			writeError(w, http.StatusNotFound, "not found", "")
			return
		}
		rc, contentType, err := store.Open(r.Context(), key)
		switch {
		case errors.Is(err, artifact.ErrNotFound), errors.Is(err, artifact.ErrInvalidKey):
			writeError(w, http.StatusNotFound, "not found", "")
			return
		case errors.Is(err, artifact.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, "document storage unavailable", "")
			return
		case err != nil:
			logging.Ctx(r.Context()).Error().Err(err).Str("key", key).Msg("open artifact")
			writeError(w, http.StatusInternalServerError, "failed to read document", "")
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "private, no-store")
		_, _ = io.Copy(w, rc)
	}
}
