package feed

import (
	"context"
	"log/slog"

	"github.com/venkatram-2005/Quick-Share/internal/metrics"
)

// Transport carries events between instances. Run blocks, handing every
// received event to deliver, until ctx is cancelled.
type Transport interface {
	Name() string
	Publish(ctx context.Context, ev ChangeEvent) error
	Run(ctx context.Context, deliver func(ChangeEvent)) error
	Close() error
}

// Publisher is what mutating services depend on.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Feed ties the local bus to an optional transport. Without a transport
// events go straight to the bus; with one, every instance (this one
// included) receives them through the transport's Run loop.
type Feed struct {
	bus       *Bus
	transport Transport
	log       *slog.Logger
}

func New(bus *Bus, transport Transport, log *slog.Logger) *Feed {
	return &Feed{bus: bus, transport: transport, log: log}
}

func (f *Feed) Bus() *Bus { return f.bus }

func (f *Feed) Subscribe(code string) *Subscription { return f.bus.Subscribe(code) }

func (f *Feed) Publish(ctx context.Context, ev ChangeEvent) error {
	metrics.FeedPublished.WithLabelValues(string(ev.Entity), string(ev.Change)).Inc()
	if f.transport == nil {
		f.bus.Deliver(ev)
		return nil
	}
	if err := f.transport.Publish(ctx, ev); err != nil {
		f.log.Error("feed publish failed", "transport", f.transport.Name(), "room", ev.RoomCode, "error", err)
		return err
	}
	return nil
}

// Run pumps the transport into the bus. It returns immediately for the
// local-only feed.
func (f *Feed) Run(ctx context.Context) error {
	if f.transport == nil {
		return nil
	}
	f.log.Info("feed transport started", "transport", f.transport.Name())
	return f.transport.Run(ctx, f.bus.Deliver)
}

func (f *Feed) Close() error {
	if f.transport == nil {
		return nil
	}
	return f.transport.Close()
}
