package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/venkatram-2005/Quick-Share/configs"
	"github.com/venkatram-2005/Quick-Share/internal/attachment"
	"github.com/venkatram-2005/Quick-Share/internal/clock"
	"github.com/venkatram-2005/Quick-Share/internal/feed"
	"github.com/venkatram-2005/Quick-Share/internal/migrate"
	"github.com/venkatram-2005/Quick-Share/internal/ratelimit"
	"github.com/venkatram-2005/Quick-Share/internal/reaper"
	"github.com/venkatram-2005/Quick-Share/internal/room"
	"github.com/venkatram-2005/Quick-Share/internal/shared/db"
	"github.com/venkatram-2005/Quick-Share/internal/shared/redisx"
	"github.com/venkatram-2005/Quick-Share/internal/storage/s3"
)

// Container owns every long-lived handle of a process.
type Container struct {
	Config *configs.Config
	Log    *slog.Logger

	Store   *db.Store
	Redis   *redis.Client
	Blobs   *s3.Storage
	Feed    *feed.Feed
	Limiter *ratelimit.Limiter

	Rooms       *room.Service
	Attachments *attachment.Manager
	Reaper      *reaper.Reaper

	closers []func(context.Context) error
}

// Build connects to the stores and wires the services. On error everything
// opened so far is closed again.
func Build(ctx context.Context, cfg *configs.Config, log *slog.Logger) (_ *Container, err error) {
	c := &Container{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if c.Store, err = db.Open(ctx, cfg, log); err != nil {
		return nil, err
	}
	c.onClose(func(context.Context) error { return c.Store.Close() })
	if err = migrate.Up(ctx, c.Store, log); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err = migrate.AutoMigrateAll(c.Store); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	if cfg.FeedTransport == "redis" || cfg.RateLimitCreatePerMin > 0 {
		if c.Redis, err = redisx.Open(ctx, cfg.RedisAddr(), cfg.RedisPass); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.onClose(func(context.Context) error { return c.Redis.Close() })
		c.Limiter = ratelimit.New(c.Redis)
	}

	if c.Blobs, err = s3.New(s3.ConfigFrom(cfg)); err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	if err = c.Blobs.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("s3 bucket: %w", err)
	}

	transport, err := c.buildTransport()
	if err != nil {
		return nil, err
	}
	c.Feed = feed.New(feed.NewBus(cfg.FeedSubscriberBuffer, log.With("component", "feed")), transport, log.With("component", "feed"))
	c.onClose(func(context.Context) error { return c.Feed.Close() })

	clk := clock.Real()
	c.Rooms = room.NewService(room.NewRepository(c.Store), c.Feed, clk, log, room.OptionsFromConfig(cfg))
	c.Attachments = attachment.NewManager(attachment.NewRepository(c.Store), c.Blobs, c.Rooms, c.Feed, clk, log, cfg.MaxUploadBytes, cfg.IOTimeout)
	c.Rooms.RegisterCascade(c.Attachments)
	c.Reaper = reaper.New(c.Rooms, c.Blobs, c.Attachments, clk, log, reaper.OptionsFromConfig(cfg))

	log.Info("container ready", "config", cfg.String())
	return c, nil
}

func (c *Container) buildTransport() (feed.Transport, error) {
	cfg := c.Config
	codec, err := feed.CodecByName(cfg.FeedCodec)
	if err != nil {
		return nil, err
	}
	log := c.Log.With("component", "feed")
	switch cfg.FeedTransport {
	case "redis":
		return feed.NewRedisTransport(c.Redis, codec, log), nil
	case "kafka":
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		return feed.NewKafkaTransport(brokers, cfg.KafkaTopic, cfg.KafkaGroupID, codec, log), nil
	case "nats":
		nc, err := feed.DialNats(cfg.NatsURL, cfg.ServiceName, log)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		return feed.NewNatsTransport(nc, codec, log), nil
	default:
		return nil, nil
	}
}

func (c *Container) onClose(fn func(context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Close releases handles in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
