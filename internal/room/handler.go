package room

import (
	"log/slog"
	"net/http"

	"github.com/venkatram-2005/Quick-Share/internal/shared/httpx"
)

type Handler struct {
	service *Service
	log     *slog.Logger
}

// NewHandler registers the room routes. limitCreate, when set, wraps room
// creation only.
func NewHandler(router *http.ServeMux, service *Service, log *slog.Logger, limitCreate func(http.Handler) http.Handler) {
	h := &Handler{service: service, log: log}

	create := httpx.Wrap(log, h.create)
	if limitCreate != nil {
		create = limitCreate(create)
	}
	router.Handle("POST /rooms", create)
	router.Handle("GET /rooms/{code}", httpx.Wrap(log, h.get))
	router.Handle("PUT /rooms/{code}/content", httpx.Wrap(log, h.updateContent))
	router.Handle("DELETE /rooms/{code}", httpx.Wrap(log, h.delete))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) error {
	req, err := httpx.Decode[CreateRoomRequest](r)
	if err != nil {
		return err
	}
	room, err := h.service.CreateRoom(r.Context(), req.TTLHours)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, NewRoomResponse(room, h.service.Now()), http.StatusCreated)
	return nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	room, err := h.service.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, NewRoomResponse(room, h.service.Now()), http.StatusOK)
	return nil
}

func (h *Handler) updateContent(w http.ResponseWriter, r *http.Request) error {
	// JSON escaping can grow the body well past the content itself; the
	// exact bound is enforced by the service.
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.service.opts.MaxContentBytes)*6+1024)
	req, err := httpx.Decode[UpdateContentRequest](r)
	if err != nil {
		return err
	}
	room, err := h.service.UpdateContent(r.Context(), r.PathValue("code"), req.Content)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, NewRoomResponse(room, h.service.Now()), http.StatusOK)
	return nil
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.DeleteRoom(r.Context(), r.PathValue("code")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
