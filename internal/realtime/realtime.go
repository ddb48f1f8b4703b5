// Package realtime serves the room WebSocket: a snapshot on connect, then
// every change event for the room, plus content updates from the client.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/attachment"
	"github.com/venkatram-2005/Quick-Share/internal/feed"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/shared/httpx"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBuffer     = 16
	maxMessageSize = 8 << 20
)

type Rooms interface {
	GetRoom(ctx context.Context, code string) (*room.Room, error)
	UpdateContent(ctx context.Context, code, content string) (*room.Room, error)
	Now() time.Time
}

type Attachments interface {
	List(ctx context.Context, code string) ([]attachment.Attachment, error)
}

type Subscriber interface {
	Subscribe(code string) *feed.Subscription
}

type inbound struct {
	Type    string  `json:"type"`
	Content *string `json:"content,omitempty"`
}

type outbound struct {
	Type        string                  `json:"type"`
	Room        *room.RoomResponse      `json:"room,omitempty"`
	Attachments []attachment.Attachment `json:"attachments,omitempty"`
	Event       *feed.ChangeEvent       `json:"event,omitempty"`
	Revision    int64                   `json:"revision,omitempty"`
	Error       *httpx.APIError         `json:"error,omitempty"`

	closeCode   int
	closeReason string
}

type Handler struct {
	rooms    Rooms
	atts     Attachments
	feed     Subscriber
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(router *http.ServeMux, rooms Rooms, atts Attachments, sub Subscriber, log *slog.Logger) *Handler {
	h := &Handler{
		rooms: rooms,
		atts:  atts,
		feed:  sub,
		log:   log.With("component", "realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Rooms are anonymous and shared by code; any origin may join.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	router.Handle("GET /rooms/{code}/ws", httpx.Wrap(log, h.serve))
	return h
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) error {
	rm, err := h.rooms.GetRoom(r.Context(), r.PathValue("code"))
	if err != nil {
		return err
	}
	// Subscribe before taking the snapshot so nothing committed in between
	// is lost.
	sub := h.feed.Subscribe(rm.Code)
	defer sub.Close()

	rm, err = h.rooms.GetRoom(r.Context(), rm.Code)
	if err != nil {
		return err
	}
	atts, err := h.atts.List(r.Context(), rm.Code)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.log.Debug("upgrade failed", "code", rm.Code, "error", err)
		return nil
	}
	h.log.Debug("session opened", "code", rm.Code)

	resp := room.NewRoomResponse(rm, h.rooms.Now())
	snapshot := outbound{Type: "snapshot", Room: &resp, Attachments: atts}
	h.session(r.Context(), conn, sub, snapshot, rm.Revision)
	h.log.Debug("session closed", "code", rm.Code)
	return nil
}

func (h *Handler) session(parent context.Context, conn *websocket.Conn, sub *feed.Subscription, snapshot outbound, snapshotRev int64) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer conn.Close()

	out := make(chan outbound, sendBuffer)
	out <- snapshot

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, cancel, conn, out)
	}()
	go func() {
		defer wg.Done()
		pumpEvents(ctx, sub, snapshotRev, out)
	}()

	h.readLoop(ctx, conn, sub.Code(), out)
	cancel()
	wg.Wait()
}

// pumpEvents forwards feed events to the writer. Room events already
// reflected in the snapshot are skipped. When the subscription ends for
// being too slow the client is told why.
func pumpEvents(ctx context.Context, sub *feed.Subscription, snapshotRev int64, out chan<- outbound) {
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, feed.ErrSlowConsumer) {
				send(ctx, out, outbound{closeCode: websocket.ClosePolicyViolation, closeReason: "slow consumer"})
			}
			return
		}
		if ev.Entity == feed.EntityRoom && ev.Change == feed.ChangeUpdate && ev.Revision <= snapshotRev {
			continue
		}
		if ev.Entity == feed.EntityRoom && ev.Change == feed.ChangeDelete {
			send(ctx, out, outbound{Type: "event", Event: &ev})
			send(ctx, out, outbound{closeCode: websocket.CloseNormalClosure, closeReason: "room deleted"})
			return
		}
		if !send(ctx, out, outbound{Type: "event", Event: &ev}) {
			return
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan outbound) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cancel()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-out:
			if msg.closeCode != 0 {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(msg.closeCode, msg.closeReason), time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, code string, out chan<- outbound) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("read failed", "code", code, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			send(ctx, out, errorMessage(apperr.Validation("realtime", "malformed message")))
			continue
		}
		switch msg.Type {
		case "ping":
			send(ctx, out, outbound{Type: "pong"})
		case "update":
			if msg.Content == nil {
				send(ctx, out, errorMessage(apperr.Validation("realtime", "update requires content")))
				continue
			}
			rm, err := h.rooms.UpdateContent(ctx, code, *msg.Content)
			if err != nil {
				send(ctx, out, errorMessage(err))
				continue
			}
			send(ctx, out, outbound{Type: "ack", Revision: rm.Revision})
		default:
			send(ctx, out, errorMessage(apperr.Validation("realtime", "unknown message type")))
		}
	}
}

func errorMessage(err error) outbound {
	body := httpx.ErrorBody(err)
	return outbound{Type: "error", Error: &body}
}

func send(ctx context.Context, out chan<- outbound, msg outbound) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
