package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// SpotsPubSub broadcasts "the grid changed" events so every consuming
// instance re-fetches and reconciles instead of trusting stale state.
type SpotsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewSpotsPubSub(rdb *redis.Client) *SpotsPubSub {
	return &SpotsPubSub{
		rdb:     rdb,
		channel: ChannelSpotsChanged(),
	}
}

type spotsChangedMsg struct {
	Type   string `json:"type"`
	Date   string `json:"date"`
	TsUnix int64  `json:"ts_unix"`
}

func (p *SpotsPubSub) PublishSpotsChanged(ctx context.Context, date string) error {
	msg := spotsChangedMsg{
		Type:   "spots_changed",
		Date:   date,
		TsUnix: time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *SpotsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, date string)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev spotsChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.Date != "" {
				handler(ctx, ev.Date)
			}
		}
	}
}
