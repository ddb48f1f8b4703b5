package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/clock"
	"github.com/venkatram-2005/Quick-Share/internal/feed"
	"github.com/venkatram-2005/Quick-Share/internal/metrics"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/storage/s3"
)

const defaultMimeType = "application/octet-stream"

// Blobs is the slice of the blob store the manager needs.
type Blobs interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Remove(ctx context.Context, key string) error
	RemovePrefix(ctx context.Context, prefix string) error
	Walk(ctx context.Context, prefix string, fn func(s3.Object) error) error
	PresignGet(ctx context.Context, key, fileName string, ttl time.Duration) (*url.URL, error)
}

// Rooms answers whether a code names a live room.
type Rooms interface {
	IsLive(ctx context.Context, code string) (bool, error)
	CodeLength() int
}

type UploadInput struct {
	RoomCode  string
	FileName  string
	Body      io.Reader
	MimeType  string
	SizeBytes int64
}

type Download struct {
	Body     io.ReadCloser
	FileName string
	MimeType string
	Size     int64
}

type Manager struct {
	repo      Repository
	blobs     Blobs
	rooms     Rooms
	pub       feed.Publisher
	clock     clock.Clock
	log       *slog.Logger
	maxUpload int64
	ioTimeout time.Duration
}

func NewManager(repo Repository, blobs Blobs, rooms Rooms, pub feed.Publisher, clk clock.Clock, log *slog.Logger, maxUpload int64, ioTimeout time.Duration) *Manager {
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	return &Manager{
		repo:      repo,
		blobs:     blobs,
		rooms:     rooms,
		pub:       pub,
		clock:     clk,
		log:       log.With("component", "attachment"),
		maxUpload: maxUpload,
		ioTimeout: ioTimeout,
	}
}

func (m *Manager) MaxUploadBytes() int64 { return m.maxUpload }

// Upload stores the body and then its metadata. If the metadata insert
// fails the blob is removed again, best effort.
func (m *Manager) Upload(ctx context.Context, in UploadInput) (*Attachment, error) {
	const op = "attachment.upload"
	switch {
	case in.SizeBytes < 0:
		return nil, apperr.Validation(op, "size must not be negative")
	case in.SizeBytes > m.maxUpload:
		return nil, apperr.TooLarge(op, fmt.Sprintf("file exceeds %d bytes", m.maxUpload))
	case strings.TrimSpace(in.FileName) == "":
		return nil, apperr.Validation(op, "file name is required")
	case in.Body == nil:
		return nil, apperr.Validation(op, "file body is required")
	}
	code, ok := room.NormalizeCode(in.RoomCode, m.rooms.CodeLength())
	if !ok {
		return nil, apperr.Validation(op, "invalid room code")
	}
	live, err := m.isLive(ctx, code)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, apperr.Validation(op, "room is not live")
	}

	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	now := m.clock.Now()
	key, err := storageKey(code, in.FileName, now)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	body := &countingReader{r: io.LimitReader(in.Body, in.SizeBytes+1)}
	if err := m.blobs.Put(ctx, key, mimeType, body, in.SizeBytes); err != nil {
		return nil, err
	}
	if body.n != in.SizeBytes {
		m.removeBlob(ctx, key, "upload_size_mismatch")
		return nil, apperr.Validation(op, fmt.Sprintf("declared size %d but read %d bytes", in.SizeBytes, body.n))
	}

	a := &Attachment{
		ID:         uuid.New(),
		RoomCode:   code,
		FileName:   in.FileName,
		StorageKey: key,
		SizeBytes:  in.SizeBytes,
		MimeType:   mimeType,
		UploadedAt: now,
	}
	mctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if err := m.repo.Create(mctx, a); err != nil {
		m.removeBlob(ctx, key, "upload_compensation")
		if apperr.Is(err, apperr.KindTransient) {
			return nil, err
		}
		return nil, apperr.Storage(op, err)
	}
	// The room may have been purged while the body was streaming; its
	// cascade ran before this row existed.
	live, err = m.isLive(ctx, code)
	if err == nil && !live {
		m.dropUpload(ctx, a)
		return nil, apperr.Validation(op, "room is not live")
	}
	if err != nil {
		m.log.Warn("post-upload liveness check failed", "room", code, "id", a.ID, "error", err)
	}

	metrics.AttachmentsUploaded.Inc()
	metrics.AttachmentBytes.Add(float64(a.SizeBytes))
	m.log.Info("attachment uploaded", "room", code, "id", a.ID, "size", a.SizeBytes)
	m.publish(ctx, feed.ChangeInsert, a)
	return a, nil
}

// List returns the room's attachments, newest first.
func (m *Manager) List(ctx context.Context, roomCode string) ([]Attachment, error) {
	code, ok := room.NormalizeCode(roomCode, m.rooms.CodeLength())
	if !ok {
		return nil, apperr.Validation("attachment.list", "invalid room code")
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	out, err := m.repo.ListByRoom(ctx, code)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Attachment{}
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.repo.Get(ctx, id)
}

// Download opens the attachment body. The caller closes Body.
func (m *Manager) Download(ctx context.Context, id uuid.UUID) (*Download, error) {
	a, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	body, size, err := m.blobs.Get(ctx, a.StorageKey)
	if err != nil {
		return nil, err
	}
	return &Download{Body: body, FileName: a.FileName, MimeType: a.MimeType, Size: size}, nil
}

func (m *Manager) PresignDownload(ctx context.Context, id uuid.UUID, ttl time.Duration) (*url.URL, error) {
	a, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.blobs.PresignGet(ctx, a.StorageKey, a.FileName, ttl)
}

// Delete removes the blob, then the metadata. A blob failure is logged and
// does not stop the metadata delete.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "attachment.delete"
	a, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	m.removeBlob(ctx, a.StorageKey, "delete_blob")

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	removed, err := m.repo.Delete(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindTransient) {
			return err
		}
		return apperr.Storage(op, err)
	}
	if !removed {
		return apperr.NotFound(op, apperr.ReasonNotFound, "attachment not found")
	}
	m.publish(ctx, feed.ChangeDelete, a)
	return nil
}

// PurgeRoom drops every blob under the room's prefix and every metadata
// row for the code.
func (m *Manager) PurgeRoom(ctx context.Context, roomCode string) error {
	var errs []error
	if err := m.blobs.RemovePrefix(ctx, roomCode+"/"); err != nil {
		errs = append(errs, fmt.Errorf("remove blobs: %w", err))
	}
	removed, err := m.repo.DeleteByRoom(ctx, roomCode)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete metadata: %w", err))
	}
	for i := range removed {
		m.publish(ctx, feed.ChangeDelete, &removed[i])
	}
	if len(removed) > 0 {
		m.log.Info("room attachments purged", "room", roomCode, "count", len(removed))
	}
	return errors.Join(errs...)
}

// RoomCodes lists every room code that still has metadata rows.
func (m *Manager) RoomCodes(ctx context.Context) ([]string, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.repo.RoomCodes(ctx)
}

// HasKey reports whether any metadata row points at key.
func (m *Manager) HasKey(ctx context.Context, key string) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.repo.KeyExists(ctx, key)
}

func (m *Manager) isLive(ctx context.Context, code string) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.rooms.IsLive(ctx, code)
}

func (m *Manager) dropUpload(ctx context.Context, a *Attachment) {
	dctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if _, err := m.repo.Delete(dctx, a.ID); err != nil {
		metrics.CompensationFailures.WithLabelValues("upload_dead_room").Inc()
		m.log.Warn("dangling attachment delete failed", "room", a.RoomCode, "id", a.ID, "error", err)
	}
	m.removeBlob(ctx, a.StorageKey, "upload_dead_room")
}

func (m *Manager) removeBlob(ctx context.Context, key, reason string) {
	if err := m.blobs.Remove(ctx, key); err != nil {
		metrics.CompensationFailures.WithLabelValues(reason).Inc()
		m.log.Warn("blob remove failed", "key", key, "reason", reason, "error", err)
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.ioTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.ioTimeout)
}

func (m *Manager) publish(ctx context.Context, change feed.ChangeKind, a *Attachment) {
	ev, err := feed.NewEvent(feed.EntityAttachment, change, a.RoomCode, 0, a, m.clock.Now())
	if err != nil {
		m.log.Error("encode attachment event", "id", a.ID, "error", err)
		return
	}
	if err := m.pub.Publish(ctx, ev); err != nil {
		m.log.Warn("publish attachment event failed", "id", a.ID, "change", change, "error", err)
	}
}

// storageKey builds "{code}/{unixMillis}-{nonce}-{name}". The nonce keeps
// two same-named uploads in one millisecond apart.
func storageKey(code, fileName string, now time.Time) (string, error) {
	nonce, err := gonanoid.Generate(room.CodeAlphabet, 6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d-%s-%s", code, now.UnixMilli(), nonce, sanitizeFileName(fileName)), nil
}

// RoomFromKey returns the room code a storage key is namespaced under.
func RoomFromKey(key string) string {
	code, _, ok := strings.Cut(key, "/")
	if !ok {
		return ""
	}
	return code
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		out = "file"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
