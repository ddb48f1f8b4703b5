package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/venkatram-2005/Quick-Share/configs"
	"github.com/venkatram-2005/Quick-Share/internal/apperr"
	"github.com/venkatram-2005/Quick-Share/internal/clock"
	"github.com/venkatram-2005/Quick-Share/internal/feed"
	"github.com/venkatram-2005/Quick-Share/internal/metrics"
)

// Cascader removes everything a room owns. Registered by the attachment
// manager so deleting a room takes its files with it.
type Cascader interface {
	PurgeRoom(ctx context.Context, code string) error
}

type Options struct {
	CodeLength      int
	CodeRetries     int
	MaxContentBytes int
	IOTimeout       time.Duration
	Codes           CodeGenerator
}

func OptionsFromConfig(cfg *configs.Config) Options {
	return Options{
		CodeLength:      cfg.CodeLength,
		CodeRetries:     cfg.CodeRetries,
		MaxContentBytes: cfg.MaxContentBytes,
		IOTimeout:       cfg.IOTimeout,
	}
}

type Service struct {
	repo  Repository
	pub   feed.Publisher
	clock clock.Clock
	log   *slog.Logger
	opts  Options

	mu       sync.RWMutex
	cascades []Cascader
}

func NewService(repo Repository, pub feed.Publisher, clk clock.Clock, log *slog.Logger, opts Options) *Service {
	if opts.CodeLength == 0 {
		opts.CodeLength = 6
	}
	if opts.CodeRetries == 0 {
		opts.CodeRetries = 5
	}
	if opts.MaxContentBytes == 0 {
		opts.MaxContentBytes = 1 << 20
	}
	if opts.Codes == nil {
		opts.Codes = NanoidCodes(opts.CodeLength)
	}
	return &Service{
		repo:  repo,
		pub:   pub,
		clock: clk,
		log:   log.With("component", "room"),
		opts:  opts,
	}
}

func (s *Service) RegisterCascade(c Cascader) {
	s.mu.Lock()
	s.cascades = append(s.cascades, c)
	s.mu.Unlock()
}

func (s *Service) CodeLength() int { return s.opts.CodeLength }

func (s *Service) Now() time.Time { return s.clock.Now() }

func (s *Service) CreateRoom(ctx context.Context, ttlHours int) (*Room, error) {
	const op = "room.create"
	if ttlHours < configs.MinTTLHours || ttlHours > configs.MaxTTLHours {
		return nil, apperr.Validation(op, fmt.Sprintf("ttl_hours must be between %d and %d", configs.MinTTLHours, configs.MaxTTLHours))
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for attempt := 1; attempt <= s.opts.CodeRetries; attempt++ {
		code, err := s.opts.Codes()
		if err != nil {
			return nil, apperr.Storage(op, fmt.Errorf("generate code: %w", err))
		}
		now := s.clock.Now()
		room := &Room{
			ID:        uuid.New(),
			Code:      code,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(time.Duration(ttlHours) * time.Hour),
		}
		err = s.repo.Create(ctx, room)
		if errors.Is(err, ErrCodeTaken) {
			metrics.CodeCollisions.Inc()
			s.log.Debug("room code collision", "code", code, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.RoomsCreated.Inc()
		s.log.Info("room created", "code", room.Code, "expires_at", room.ExpiresAt)
		s.publish(ctx, feed.ChangeInsert, room.Code, room.Revision, room)
		return room, nil
	}
	return nil, apperr.Conflict(op, fmt.Sprintf("no free room code after %d attempts", s.opts.CodeRetries))
}

// GetRoom returns the live room for code. A room found past its expiry is
// deleted on the spot and reported as NotFound with reason expired.
func (s *Service) GetRoom(ctx context.Context, code string) (*Room, error) {
	const op = "room.get"
	code, err := s.normalize(op, code)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	room, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Expired(s.clock.Now()) {
		if err := s.deleteRoom(ctx, code, "lazy"); err != nil {
			s.log.Warn("lazy expiry delete failed", "code", code, "error", err)
		}
		return nil, apperr.NotFound(op, apperr.ReasonExpired, "room has expired")
	}
	return room, nil
}

// UpdateContent overwrites the room's content. Concurrent writers are not
// coordinated; the last commit wins.
func (s *Service) UpdateContent(ctx context.Context, code, content string) (*Room, error) {
	const op = "room.update_content"
	if len(content) > s.opts.MaxContentBytes {
		return nil, apperr.TooLarge(op, fmt.Sprintf("content exceeds %d bytes", s.opts.MaxContentBytes))
	}
	if _, err := s.GetRoom(ctx, code); err != nil {
		return nil, err
	}
	code, _ = NormalizeCode(code, s.opts.CodeLength)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	room, err := s.repo.UpdateContent(ctx, code, content, s.clock.Now())
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			// Expired or deleted between the read and the write.
			return nil, apperr.NotFound(op, apperr.ReasonExpired, "room has expired")
		}
		return nil, err
	}
	metrics.ContentUpdates.Inc()
	s.publish(ctx, feed.ChangeUpdate, room.Code, room.Revision, room)
	return room, nil
}

// DeleteRoom removes the room and everything it owns. Deleting an absent
// room succeeds.
func (s *Service) DeleteRoom(ctx context.Context, code string) error {
	code, err := s.normalize("room.delete", code)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.deleteRoom(ctx, code, "explicit")
}

// Reap deletes a room the sweeper found expired.
func (s *Service) Reap(ctx context.Context, code string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.deleteRoom(ctx, code, "sweep")
}

func (s *Service) ListExpired(ctx context.Context, limit int) ([]Room, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.ListExpired(ctx, s.clock.Now(), limit)
}

// IsLive reports whether code names a room that exists and has not expired.
// Unlike GetRoom it never deletes.
func (s *Service) IsLive(ctx context.Context, code string) (bool, error) {
	code, ok := NormalizeCode(code, s.opts.CodeLength)
	if !ok {
		return false, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	room, err := s.repo.GetByCode(ctx, code)
	if apperr.Is(err, apperr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !room.Expired(s.clock.Now()), nil
}

func (s *Service) deleteRoom(ctx context.Context, code, cause string) error {
	s.mu.RLock()
	cascades := append([]Cascader(nil), s.cascades...)
	s.mu.RUnlock()

	for _, c := range cascades {
		if err := c.PurgeRoom(ctx, code); err != nil {
			metrics.CompensationFailures.WithLabelValues("purge_room").Inc()
			s.log.Warn("cascade purge failed", "code", code, "error", err)
		}
	}

	removed, err := s.repo.Delete(ctx, code)
	if err != nil {
		if apperr.Is(err, apperr.KindTransient) {
			return err
		}
		return apperr.Storage("room.delete", err)
	}
	if removed {
		metrics.RoomsDeleted.WithLabelValues(cause).Inc()
		s.log.Info("room deleted", "code", code, "cause", cause)
		s.publish(ctx, feed.ChangeDelete, code, 0, map[string]string{"code": code})
	}
	return nil
}

func (s *Service) normalize(op, code string) (string, error) {
	code, ok := NormalizeCode(code, s.opts.CodeLength)
	if !ok {
		return "", apperr.Validation(op, fmt.Sprintf("room code must be %d lowercase letters or digits", s.opts.CodeLength))
	}
	return code, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.IOTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.IOTimeout)
}

// publish runs after the commit; a feed failure is logged and the write
// still stands.
func (s *Service) publish(ctx context.Context, change feed.ChangeKind, code string, revision int64, payload any) {
	ev, err := feed.NewEvent(feed.EntityRoom, change, code, revision, payload, s.clock.Now())
	if err != nil {
		s.log.Error("encode room event", "code", code, "error", err)
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.Warn("publish room event failed", "code", code, "change", change, "error", err)
	}
}
