// Command seed fills a running instance with demo rooms through the HTTP
// API.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/pflag"

	"github.com/venkatram-2005/Quick-Share/internal/shared/logx"
)

type options struct {
	rooms       int
	ttlHours    int
	attachments int
}

func main() {
	baseURL := pflag.String("base-url", "http://localhost:8080", "API base URL")
	rooms := pflag.Int("rooms", 5, "number of rooms to create")
	ttl := pflag.Int("ttl-hours", 24, "TTL of each room")
	files := pflag.Int("files", 2, "attachments per room")
	seed := pflag.Int64("seed", 0, "random seed (0 picks one)")
	pflag.Parse()

	log := logx.New("", "info").With("cmd", "seed")
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gofakeit.Seed(*seed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	codes, err := run(ctx, newClient(*baseURL), options{rooms: *rooms, ttlHours: *ttl, attachments: *files}, log)
	if err != nil {
		log.Error("seeding failed", "error", err)
		os.Exit(1)
	}
	log.Info("seeding done", "rooms", strings.Join(codes, ","))
}

func run(ctx context.Context, c *client, opts options, log *slog.Logger) ([]string, error) {
	var codes []string
	for i := 0; i < opts.rooms; i++ {
		r, err := c.createRoom(ctx, opts.ttlHours)
		if err != nil {
			return codes, err
		}
		codes = append(codes, r.Code)

		content := gofakeit.Paragraph(2, 3, 12, "\n\n")
		if _, err := c.updateContent(ctx, r.Code, content); err != nil {
			return codes, err
		}
		for j := 0; j < opts.attachments; j++ {
			name := strings.ToLower(gofakeit.Word()) + ".txt"
			a, err := c.upload(ctx, r.Code, name, []byte(gofakeit.HipsterParagraph(1, 4, 10, "\n")))
			if err != nil {
				return codes, err
			}
			log.Debug("attachment seeded", "room", r.Code, "id", a.ID)
		}
		log.Info("room seeded", "code", r.Code, "expires_at", r.ExpiresAt)
	}
	return codes, nil
}
