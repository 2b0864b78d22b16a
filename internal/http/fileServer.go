package http

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"parley/internal/models"
)

type mediaOpener interface {
	Open(id string) (models.Media, io.ReadCloser, error)
}

// NewMediaHandler serves GET /media/{id}. Only images and audio are shown
// inline; anything else is sent as an attachment.
func NewMediaHandler(media mediaOpener, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		meta, body, err := media.Open(id)
		if errors.Is(err, models.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			log.Error("failed to open media", "id", id, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		defer func() { _ = body.Close() }()

		disposition := "attachment"
		if strings.HasPrefix(meta.MimeType, "image/") || strings.HasPrefix(meta.MimeType, "audio/") {
			disposition = "inline"
		}

		w.Header().Set("Content-Type", meta.MimeType)
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
		w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": meta.Name}))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")

		if _, err := io.Copy(w, body); err != nil {
			log.Debug("media download interrupted", "id", id, "error", err)
		}
	}
}
