package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/feed"
)

type memRepo struct {
	mu    sync.Mutex
	rooms map[string]Room
}

func newMemRepo() *memRepo { return &memRepo{rooms: map[string]Room{}} }

func (m *memRepo) Create(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.Code]; ok {
		return ErrCodeTaken
	}
	m.rooms[r.Code] = *r
	return nil
}

func (m *memRepo) GetByCode(_ context.Context, code string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok {
		return nil, apperr.NotFound("room.get", "", "room not found")
	}
	return &r, nil
}

func (m *memRepo) UpdateContent(_ context.Context, code, content string, now time.Time) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[code]
	if !ok || !now.Before(r.ExpiresAt) {
		return nil, apperr.NotFound("room.update_content", "", "room not found")
	}
	r.Content = content
	r.Revision++
	r.UpdatedAt = now
	m.rooms[code] = r
	return &r, nil
}

func (m *memRepo) Delete(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[code]
	delete(m.rooms, code)
	return ok, nil
}

func (m *memRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Room
	for _, r := range m.rooms {
		if !now.Before(r.ExpiresAt) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []feed.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev feed.ChangeEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) changes() []feed.ChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]feed.ChangeKind, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Change)
	}
	return out
}

type cascadeFunc func(ctx context.Context, code string) error

func (f cascadeFunc) PurgeRoom(ctx context.Context, code string) error { return f(ctx, code) }

func fixedCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}
