package attachment

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/shared/httpx"
)

const (
	defaultPresignTTL = 15 * time.Minute
	maxPresignTTL     = 7 * 24 * time.Hour
	multipartMemory   = 32 << 20
)

type Handler struct {
	manager *Manager
	log     *slog.Logger
}

func NewHandler(router *http.ServeMux, manager *Manager, log *slog.Logger) {
	h := &Handler{manager: manager, log: log}

	router.Handle("GET /rooms/{code}/attachments", httpx.Wrap(log, h.list))
	router.Handle("POST /rooms/{code}/attachments", httpx.Wrap(log, h.upload))
	router.Handle("GET /attachments/{id}", httpx.Wrap(log, h.download))
	router.Handle("GET /attachments/{id}/url", httpx.Wrap(log, h.presign))
	router.Handle("DELETE /attachments/{id}", httpx.Wrap(log, h.delete))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	items, err := h.manager.List(r.Context(), r.PathValue("code"))
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, ListResponse{Attachments: items}, http.StatusOK)
	return nil
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) error {
	// Slack over the file limit covers multipart framing; the exact limit
	// is checked against the part size by the manager.
	r.Body = http.MaxBytesReader(w, r.Body, h.manager.MaxUploadBytes()+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return apperr.TooLarge("attachment.upload", "request body too large")
		}
		return apperr.Validation("attachment.upload", "expected multipart form with a file field")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return apperr.Validation("attachment.upload", "missing file field")
	}
	defer file.Close()

	a, err := h.manager.Upload(r.Context(), UploadInput{
		RoomCode:  r.PathValue("code"),
		FileName:  header.Filename,
		Body:      file,
		MimeType:  header.Header.Get("Content-Type"),
		SizeBytes: header.Size,
	})
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, a, http.StatusCreated)
	return nil
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	d, err := h.manager.Download(r.Context(), id)
	if err != nil {
		return err
	}
	defer d.Body.Close()

	w.Header().Set("Content-Type", d.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.FileName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, d.Body); err != nil {
		h.log.Warn("download interrupted", "id", id, "error", err)
	}
	return nil
}

func (h *Handler) presign(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	ttl := time.Duration(httpx.QueryInt(r, "ttl_seconds", int(defaultPresignTTL/time.Second))) * time.Second
	if ttl <= 0 || ttl > maxPresignTTL {
		return apperr.Validation("attachment.presign", "ttl_seconds must be between 1 and 604800")
	}
	u, err := h.manager.PresignDownload(r.Context(), id, ttl)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, PresignResponse{URL: u.String(), ExpiresIn: int64(ttl / time.Second)}, http.StatusOK)
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	id, err := parseID(r)
	if err != nil {
		return err
	}
	if err := h.manager.Delete(r.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func parseID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("attachment", "invalid attachment id")
	}
	return id, nil
}
