// Package reaper enforces room TTLs eagerly and removes blobs that no
// longer belong to anything.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/venkatram-2005/Quick-Share/configs"
	"github.com/venkatram-2005/Quick-Share/internal/attachment"
	"github.com/venkatram-2005/Quick-Share/internal/clock"
	"github.com/venkatram-2005/Quick-Share/internal/metrics"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/storage/s3"
)

type Rooms interface {
	ListExpired(ctx context.Context, limit int) ([]room.Room, error)
	Reap(ctx context.Context, code string) error
	IsLive(ctx context.Context, code string) (bool, error)
}

type Blobs interface {
	Walk(ctx context.Context, prefix string, fn func(s3.Object) error) error
	Remove(ctx context.Context, key string) error
}

// Attachments is the metadata side of reconciliation.
type Attachments interface {
	HasKey(ctx context.Context, key string) (bool, error)
	RoomCodes(ctx context.Context) ([]string, error)
	PurgeRoom(ctx context.Context, code string) error
}

type Options struct {
	Interval          time.Duration
	Batch             int
	OrphanGrace       time.Duration
	ReconcileInterval time.Duration
}

func OptionsFromConfig(cfg *configs.Config) Options {
	return Options{
		Interval:          cfg.SweepInterval,
		Batch:             cfg.SweepBatch,
		OrphanGrace:       cfg.OrphanGrace,
		ReconcileInterval: cfg.ReconcileInterval,
	}
}

type Reaper struct {
	rooms Rooms
	blobs Blobs
	atts  Attachments
	clock clock.Clock
	log   *slog.Logger
	opts  Options
}

func New(rooms Rooms, blobs Blobs, atts Attachments, clk clock.Clock, log *slog.Logger, opts Options) *Reaper {
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	return &Reaper{
		rooms: rooms,
		blobs: blobs,
		atts:  atts,
		clock: clk,
		log:   log.With("component", "reaper"),
		opts:  opts,
	}
}

// Sweep deletes expired rooms batch by batch until none are left or a
// whole batch fails. It returns how many rooms were deleted.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		expired, err := r.rooms.ListExpired(ctx, r.opts.Batch)
		if err != nil {
			return deleted, err
		}
		if len(expired) == 0 {
			break
		}
		ok := 0
		for _, rm := range expired {
			if err := r.rooms.Reap(ctx, rm.Code); err != nil {
				r.log.Warn("reap failed", "code", rm.Code, "error", err)
				continue
			}
			ok++
		}
		deleted += ok
		if ok == 0 || len(expired) < r.opts.Batch {
			break
		}
	}
	if deleted > 0 {
		r.log.Info("sweep finished", "deleted", deleted)
	}
	return deleted, nil
}

// Reconcile removes blobs whose room is gone, and blobs in live rooms that
// no metadata row references once they are older than the orphan grace.
// It then purges metadata rows left behind for rooms that no longer exist.
// It returns how many blobs and rooms were cleaned up.
func (r *Reaper) Reconcile(ctx context.Context) (int, error) {
	blobs, err := r.reconcileBlobs(ctx)
	if err != nil {
		return blobs, err
	}
	rooms, err := r.reconcileMetadata(ctx)
	return blobs + rooms, err
}

func (r *Reaper) reconcileBlobs(ctx context.Context) (int, error) {
	now := r.clock.Now()
	live := make(map[string]bool)
	removed := 0

	err := r.blobs.Walk(ctx, "", func(o s3.Object) error {
		code := attachment.RoomFromKey(o.Key)
		if code == "" {
			return nil
		}
		isLive, seen := live[code]
		if !seen {
			var err error
			isLive, err = r.rooms.IsLive(ctx, code)
			if err != nil {
				return err
			}
			live[code] = isLive
		}
		if isLive {
			if now.Sub(o.LastModified) < r.opts.OrphanGrace {
				return nil
			}
			referenced, err := r.atts.HasKey(ctx, o.Key)
			if err != nil {
				return err
			}
			if referenced {
				return nil
			}
		}
		if err := r.blobs.Remove(ctx, o.Key); err != nil {
			r.log.Warn("orphan remove failed", "key", o.Key, "error", err)
			return nil
		}
		removed++
		metrics.OrphansRemoved.Inc()
		return nil
	})
	if removed > 0 {
		r.log.Info("orphan blobs removed", "removed", removed)
	}
	return removed, err
}

// reconcileMetadata checks liveness fresh for each code so a room created
// during the blob walk is never purged.
func (r *Reaper) reconcileMetadata(ctx context.Context) (int, error) {
	codes, err := r.atts.RoomCodes(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		live, err := r.rooms.IsLive(ctx, code)
		if err != nil {
			return purged, err
		}
		if live {
			continue
		}
		if err := r.atts.PurgeRoom(ctx, code); err != nil {
			r.log.Warn("dangling metadata purge failed", "room", code, "error", err)
			continue
		}
		purged++
		metrics.DanglingRoomsPurged.Inc()
	}
	if purged > 0 {
		r.log.Info("dangling attachment metadata purged", "rooms", purged)
	}
	return purged, nil
}

// Run sweeps on every tick and reconciles on its own, slower cadence. It
// returns when ctx is cancelled. A zero interval disables the loop.
func (r *Reaper) Run(ctx context.Context) error {
	if r.opts.Interval <= 0 {
		r.log.Info("periodic sweep disabled")
		return nil
	}
	ticker := r.clock.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	var lastReconcile time.Time
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("sweep failed", "error", err)
		}
		if r.opts.ReconcileInterval > 0 && r.clock.Now().Sub(lastReconcile) >= r.opts.ReconcileInterval {
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reconcile failed", "error", err)
			}
			lastReconcile = r.clock.Now()
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
