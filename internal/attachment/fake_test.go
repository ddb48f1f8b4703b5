package attachment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/feed"
	"github.com/venkatram-2005/Quick-Share/internal/storage/s3"
)

type memRepo struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]Attachment
	createErr error
}

func newMemRepo() *memRepo { return &memRepo{rows: map[uuid.UUID]Attachment{}} }

func (m *memRepo) Create(_ context.Context, a *Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.rows[a.ID] = *a
	return nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, apperr.NotFound("attachment.get", "", "attachment not found")
	}
	return &a, nil
}

func (m *memRepo) ListByRoom(_ context.Context, code string) ([]Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attachment
	for _, a := range m.rows {
		if a.RoomCode == code {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.After(out[j].UploadedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}

func (m *memRepo) DeleteByRoom(_ context.Context, code string) ([]Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attachment
	for id, a := range m.rows {
		if a.RoomCode == code {
			out = append(out, a)
			delete(m.rows, id)
		}
	}
	return out, nil
}

func (m *memRepo) KeyExists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.StorageKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) RoomCodes(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, a := range m.rows {
		if !seen[a.RoomCode] {
			seen[a.RoomCode] = true
			out = append(out, a.RoomCode)
		}
	}
	sort.Strings(out)
	return out, nil
}

// memBlobs keeps small bodies and only the size of large ones.
type memBlobs struct {
	mu        sync.Mutex
	afterPut  func(key string)
	data      map[string][]byte
	sizes     map[string]int64
	modified  map[string]time.Time
	removeErr error
	now       func() time.Time
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		data:     map[string][]byte{},
		sizes:    map[string]int64{},
		modified: map[string]time.Time{},
		now:      time.Now,
	}
}

const keepLimit = 1 << 20

func (b *memBlobs) Put(_ context.Context, key, _ string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	var n int64
	var err error
	if size <= keepLimit {
		n, err = io.Copy(&buf, io.LimitReader(r, size))
	} else {
		n, err = io.Copy(io.Discard, io.LimitReader(r, size))
	}
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.data[key] = buf.Bytes()
	b.sizes[key] = n
	b.modified[key] = b.now()
	hook := b.afterPut
	b.mu.Unlock()
	if hook != nil {
		hook(key)
	}
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[key]
	if !ok {
		return nil, 0, apperr.NotFound("blob.get", "", "blob not found")
	}
	return io.NopCloser(bytes.NewReader(d)), b.sizes[key], nil
}

func (b *memBlobs) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removeErr != nil {
		return b.removeErr
	}
	delete(b.data, key)
	delete(b.sizes, key)
	delete(b.modified, key)
	return nil
}

func (b *memBlobs) RemovePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removeErr != nil {
		return b.removeErr
	}
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			delete(b.data, k)
			delete(b.sizes, k)
			delete(b.modified, k)
		}
	}
	return nil
}

func (b *memBlobs) Walk(_ context.Context, prefix string, fn func(s3.Object) error) error {
	b.mu.Lock()
	var objs []s3.Object
	for k := range b.data {
		if strings.HasPrefix(k, prefix) {
			objs = append(objs, s3.Object{Key: k, Size: b.sizes[k], LastModified: b.modified[k]})
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

func (b *memBlobs) PresignGet(_ context.Context, key, _ string, _ time.Duration) (*url.URL, error) {
	return url.Parse("http://blobs.local/" + key + "?sig=x")
}

func (b *memBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.data {
		out = append(out, k)
	}
	return out
}

type liveRooms map[string]bool

func (l liveRooms) IsLive(_ context.Context, code string) (bool, error) { return l[code], nil }
func (l liveRooms) CodeLength() int                                     { return 6 }

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

var errBoom = errors.New("boom")
