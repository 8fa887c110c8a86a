package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ServeFile streams a stored artifact after verifying its signed-URL
// parameters. Unsigned or expired requests are rejected before any disk
// access happens.
func (a *App) ServeFile(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	if bucket == "" || key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "bucket and key required")
		return
	}

	expires, err := strconv.ParseInt(r.URL.Query().Get("exp"), 10, 64)
	if err != nil {
		a.error(w, http.StatusForbidden, "forbidden", "missing or malformed signature")
		return
	}
	sig := r.URL.Query().Get("sig")
	if err := a.Signer.Verify(bucket, key, expires, sig); err != nil {
		a.error(w, http.StatusForbidden, "forbidden", "signature invalid or expired")
		return
	}

	data, err := a.Store.Read(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.error(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		a.Logger.Error().Err(err).Str("bucket", bucket).Str("key", key).Msg("handlers: file read failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to read file")
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(key))
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
