package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/nsvirk/tickcollector/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

// TickPublisher fans out a lightweight notification per kind to Redis after
// every successful Batch Writer flush, generalized from the teacher's
// Postgres-LISTEN-to-Redis bridge (publish_service.go) into a direct
// publish the writer calls in-process -- there is no intermediate
// Postgres NOTIFY hop here since the writer already knows what it wrote.
// Downstream dashboards (out of scope to build) can tail
// ticks:{currency}:{kind} instead of polling the store. Publish failures
// are logged and dropped -- this path never blocks or retries.
type TickPublisher struct {
	client   *redis.Client
	currency string
}

// NewTickPublisher creates a TickPublisher for currency.
func NewTickPublisher(client *redis.Client, currency string) *TickPublisher {
	return &TickPublisher{client: client, currency: currency}
}

// PublishFlush notifies one Redis channel per kind that had rows committed
// in the just-completed flush.
func (p *TickPublisher) PublishFlush(kinds []string) {
	if p.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, kind := range kinds {
		channel := fmt.Sprintf("ticks:%s:%s", p.currency, kind)
		if err := p.client.Publish(ctx, channel, now).Err(); err != nil {
			zaplogger.Warn("failed to publish flush notification", zaplogger.Fields{
				"channel": channel, "error": err.Error(),
			})
		}
	}
}
