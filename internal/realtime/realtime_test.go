package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/attachment"
	"github.com/venkatram-2005/Quick-Share/internal/feed"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/shared/logx"
)

var now = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

// fakeRooms publishes through the bus the way the room service does.
type fakeRooms struct {
	mu   sync.Mutex
	room room.Room
	bus  *feed.Bus
}

func (f *fakeRooms) GetRoom(_ context.Context, code string) (*room.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.ToLower(code) != f.room.Code {
		return nil, apperr.NotFound("room.get", "", "room not found")
	}
	r := f.room
	return &r, nil
}

func (f *fakeRooms) UpdateContent(_ context.Context, code, content string) (*room.Room, error) {
	if len(content) > 10 {
		return nil, apperr.TooLarge("room.update_content", "too big")
	}
	f.mu.Lock()
	f.room.Content = content
	f.room.Revision++
	r := f.room
	f.mu.Unlock()
	ev, _ := feed.NewEvent(feed.EntityRoom, feed.ChangeUpdate, r.Code, r.Revision, r, now)
	f.bus.Deliver(ev)
	return &r, nil
}

func (f *fakeRooms) Now() time.Time { return now }

type noAttachments struct{}

func (noAttachments) List(context.Context, string) ([]attachment.Attachment, error) {
	return []attachment.Attachment{}, nil
}

func startServer(t *testing.T) (*httptest.Server, *fakeRooms, *feed.Bus) {
	t.Helper()
	bus := feed.NewBus(8, logx.Discard())
	rooms := &fakeRooms{
		room: room.Room{Code: "ab12cd", Content: "start", Revision: 3, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		bus:  bus,
	}
	mux := http.NewServeMux()
	NewHandler(mux, rooms, noAttachments{}, bus, logx.Discard())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rooms, bus
}

func dial(t *testing.T, srv *httptest.Server, code string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/" + code + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type message struct {
	Type     string             `json:"type"`
	Room     *room.RoomResponse `json:"room"`
	Event    *feed.ChangeEvent  `json:"event"`
	Revision int64              `json:"revision"`
	Error    *struct {
		Reason string `json:"reason"`
		Status int    `json:"status"`
	} `json:"error"`
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func waitSubscribers(t *testing.T, bus *feed.Bus, code string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bus.Subscribers(code) != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", bus.Subscribers(code), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionSnapshotEventsAndUpdates(t *testing.T) {
	srv, _, bus := startServer(t)
	a := dial(t, srv, "AB12CD")
	b := dial(t, srv, "ab12cd")

	for _, c := range []*websocket.Conn{a, b} {
		m := read(t, c)
		if m.Type != "snapshot" || m.Room == nil || m.Room.Content != "start" || m.Room.Revision != 3 {
			t.Fatalf("snapshot = %+v", m)
		}
	}
	waitSubscribers(t, bus, "ab12cd", 2)

	if err := a.WriteJSON(map[string]string{"type": "update", "content": "hello"}); err != nil {
		t.Fatal(err)
	}
	// b sees the change as an event; a sees the event and its ack in either order.
	m := read(t, b)
	if m.Type != "event" || m.Event.Revision != 4 || !strings.Contains(string(m.Event.Payload), `"hello"`) {
		t.Fatalf("b got %+v", m)
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		m := read(t, a)
		seen[m.Type] = true
		if m.Type == "ack" && m.Revision != 4 {
			t.Fatalf("ack revision = %d", m.Revision)
		}
	}
	if !seen["ack"] || !seen["event"] {
		t.Fatalf("a saw %v", seen)
	}

	if err := a.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	if m := read(t, a); m.Type != "pong" {
		t.Fatalf("want pong, got %+v", m)
	}

	if err := a.WriteJSON(map[string]string{"type": "update", "content": "far too long for the fake"}); err != nil {
		t.Fatal(err)
	}
	if m := read(t, a); m.Type != "error" || m.Error == nil || m.Error.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("want too_large error, got %+v", m)
	}
}

func TestSessionReleasesSubscriptionOnDisconnect(t *testing.T) {
	srv, _, bus := startServer(t)
	c := dial(t, srv, "ab12cd")
	read(t, c)
	waitSubscribers(t, bus, "ab12cd", 1)

	c.Close()
	waitSubscribers(t, bus, "ab12cd", 0)
}

func TestUnknownRoomRejectedBeforeUpgrade(t *testing.T) {
	srv, _, _ := startServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/zzzzzz/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resp = %v", resp)
	}
}

func TestPumpSkipsSnapshotRevisionsAndReportsEviction(t *testing.T) {
	bus := feed.NewBus(2, logx.Discard())
	sub := bus.Subscribe("ab12cd")
	for rev := int64(1); rev <= 3; rev++ {
		ev, _ := feed.NewEvent(feed.EntityRoom, feed.ChangeUpdate, "ab12cd", rev, nil, now)
		bus.Deliver(ev)
	}

	out := make(chan outbound, 8)
	pumpEvents(context.Background(), sub, 1, out)
	close(out)

	var got []outbound
	for m := range out {
		got = append(got, m)
	}
	if len(got) != 2 {
		t.Fatalf("messages = %+v", got)
	}
	if got[0].Type != "event" || got[0].Event.Revision != 2 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].closeCode != websocket.ClosePolicyViolation || got[1].closeReason != "slow consumer" {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestOutboundJSONShape(t *testing.T) {
	b, err := json.Marshal(outbound{Type: "pong"})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"pong"}` {
		t.Fatalf("got %s", b)
	}
}
