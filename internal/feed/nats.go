package feed

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "quickshare.room."

type NatsTransport struct {
	nc    *nats.Conn
	codec Codec
	log   *slog.Logger
}

// DialNats connects with unlimited reconnects; subscriptions are restored
// by the client after a reconnect.
func DialNats(url, name string, log *slog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
}

func NewNatsTransport(nc *nats.Conn, codec Codec, log *slog.Logger) *NatsTransport {
	return &NatsTransport{nc: nc, codec: codec, log: log}
}

func (t *NatsTransport) Name() string { return "nats" }

func (t *NatsTransport) Publish(_ context.Context, ev ChangeEvent) error {
	b, err := t.codec.Marshal(ev)
	if err != nil {
		return err
	}
	return t.nc.Publish(natsSubjectPrefix+ev.RoomCode, b)
}

func (t *NatsTransport) Run(ctx context.Context, deliver func(ChangeEvent)) error {
	ch := make(chan *nats.Msg, 1024)
	sub, err := t.nc.ChanSubscribe(natsSubjectPrefix+"*", ch)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			var ev ChangeEvent
			if err := t.codec.Unmarshal(msg.Data, &ev); err != nil {
				t.log.Warn("nats feed: bad message", "subject", msg.Subject, "error", err)
				continue
			}
			deliver(ev)
		}
	}
}

func (t *NatsTransport) Close() error {
	t.nc.Close()
	return nil
}
