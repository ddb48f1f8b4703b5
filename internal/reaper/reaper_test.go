package reaper

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/venkatram-2005/Quick-Share/internal/clock"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/shared/logx"
	"github.com/venkatram-2005/Quick-Share/internal/storage/s3"
)

var t0 = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

type fakeRooms struct {
	mu      sync.Mutex
	clock   clock.Clock
	rooms   map[string]time.Time // code -> expires_at
	failing map[string]bool
	reaped  []string
}

func (f *fakeRooms) ListExpired(_ context.Context, limit int) ([]room.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	var out []room.Room
	for code, exp := range f.rooms {
		if !now.Before(exp) {
			out = append(out, room.Room{Code: code, ExpiresAt: exp})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRooms) Reap(_ context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[code] {
		return errors.New("db unavailable")
	}
	delete(f.rooms, code)
	f.reaped = append(f.reaped, code)
	return nil
}

func (f *fakeRooms) IsLive(_ context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.rooms[code]
	return ok && f.clock.Now().Before(exp), nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]time.Time
}

func (b *fakeBlobs) Walk(_ context.Context, prefix string, fn func(s3.Object) error) error {
	b.mu.Lock()
	var objs []s3.Object
	for k, mod := range b.objects {
		if strings.HasPrefix(k, prefix) {
			objs = append(objs, s3.Object{Key: k, LastModified: mod})
		}
	}
	b.mu.Unlock()
	for _, o := range objs {
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBlobs) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

type keySet map[string]bool

func (k keySet) HasKey(_ context.Context, key string) (bool, error) { return k[key], nil }
func (k keySet) RoomCodes(context.Context) ([]string, error)        { return nil, nil }
func (k keySet) PurgeRoom(context.Context, string) error            { return nil }

// metaRows maps a room code to its attachment row count.
type metaRows struct {
	keySet
	mu   sync.Mutex
	rows map[string]int
}

func (m *metaRows) RoomCodes(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for code := range m.rows {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

func (m *metaRows) PurgeRoom(_ context.Context, code string) error {
	m.mu.Lock()
	delete(m.rows, code)
	m.mu.Unlock()
	return nil
}

func TestSweepDeletesOnlyExpired(t *testing.T) {
	clk := clock.NewFake(t0)
	rooms := &fakeRooms{clock: clk, rooms: map[string]time.Time{
		"aaaaaa": t0.Add(time.Hour),
		"bbbbbb": t0.Add(2 * time.Hour),
		"cccccc": t0.Add(48 * time.Hour),
	}}
	r := New(rooms, &fakeBlobs{}, keySet{}, clk, logx.Discard(), Options{Batch: 1})

	clk.Advance(3 * time.Hour)
	n, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	if _, ok := rooms.rooms["cccccc"]; !ok {
		t.Fatal("live room was reaped")
	}

	n, err = r.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestSweepStopsWhenBatchFails(t *testing.T) {
	clk := clock.NewFake(t0)
	rooms := &fakeRooms{
		clock:   clk,
		rooms:   map[string]time.Time{"aaaaaa": t0},
		failing: map[string]bool{"aaaaaa": true},
	}
	r := New(rooms, &fakeBlobs{}, keySet{}, clk, logx.Discard(), Options{Batch: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if n, err := r.Sweep(context.Background()); n != 0 || err != nil {
			t.Errorf("n=%d err=%v", n, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep spun on a failing room")
	}
}

func TestReconcileRemovesOrphans(t *testing.T) {
	clk := clock.NewFake(t0)
	rooms := &fakeRooms{clock: clk, rooms: map[string]time.Time{"live01": t0.Add(24 * time.Hour)}}
	blobs := &fakeBlobs{objects: map[string]time.Time{
		"live01/1-x-kept.txt":     t0.Add(-time.Hour),
		"live01/2-x-orphan.txt":   t0.Add(-time.Hour),
		"live01/3-x-inflight.txt": t0.Add(-time.Minute),
		"gone01/4-x-stale.txt":    t0,
		"stray-root-object":       t0.Add(-time.Hour),
	}}
	keys := keySet{"live01/1-x-kept.txt": true}
	r := New(rooms, blobs, keys, clk, logx.Discard(), Options{OrphanGrace: 15 * time.Minute})

	n, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}
	for _, k := range []string{"live01/1-x-kept.txt", "live01/3-x-inflight.txt", "stray-root-object"} {
		if _, ok := blobs.objects[k]; !ok {
			t.Errorf("%s removed", k)
		}
	}
	for _, k := range []string{"live01/2-x-orphan.txt", "gone01/4-x-stale.txt"} {
		if _, ok := blobs.objects[k]; ok {
			t.Errorf("%s kept", k)
		}
	}
}

func TestReconcilePurgesRowsOfDeadRooms(t *testing.T) {
	clk := clock.NewFake(t0)
	rooms := &fakeRooms{clock: clk, rooms: map[string]time.Time{
		"live01": t0.Add(24 * time.Hour),
		"late01": t0.Add(-time.Minute),
	}}
	meta := &metaRows{keySet: keySet{}, rows: map[string]int{"live01": 2, "late01": 1, "gone01": 1}}
	r := New(rooms, &fakeBlobs{objects: map[string]time.Time{}}, meta, clk, logx.Discard(), Options{OrphanGrace: 15 * time.Minute})

	n, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("cleaned = %d, want 2", n)
	}
	if len(meta.rows) != 1 || meta.rows["live01"] != 2 {
		t.Fatalf("rows left = %v, want only live01", meta.rows)
	}
}

func TestRunDisabledAndCancel(t *testing.T) {
	clk := clock.NewFake(t0)
	rooms := &fakeRooms{clock: clk, rooms: map[string]time.Time{"aaaaaa": t0}}

	if err := New(rooms, &fakeBlobs{}, keySet{}, clk, logx.Discard(), Options{}).Run(context.Background()); err != nil {
		t.Fatalf("disabled run: %v", err)
	}
	if len(rooms.reaped) != 0 {
		t.Fatal("disabled reaper swept")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := New(rooms, &fakeBlobs{objects: map[string]time.Time{}}, keySet{}, clk, logx.Discard(), Options{Interval: 10 * time.Millisecond})
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		rooms.mu.Lock()
		n := len(rooms.reaped)
		rooms.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("run never swept")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
