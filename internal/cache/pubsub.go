package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

// PubSubManager publishes logged swaps over Redis Pub/Sub and streams them back to subscribers.
type PubSubManager struct {
	client *redis.Client
	logger *logrus.Logger
}

var (
	_ storage.SwapEventPublisher  = (*PubSubManager)(nil)
	_ storage.SwapEventSubscriber = (*PubSubManager)(nil)
)

func NewPubSubManager(client *redis.Client, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// PairChannel is the pair-specific channel a swap is published to.
func PairChannel(pair string) string {
	return fmt.Sprintf("swaps:pair:%s", pair)
}

// PublishSwap sends the swap to the all-swaps channel and its pair channel in one pipeline.
func (p *PubSubManager) PublishSwap(ctx context.Context, l *models.SwapLog) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal swap log: %w", err)
	}

	channels := []string{
		constants.PubSubChannelSwaps,
		PairChannel(l.Pair()),
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish swap: %w", err)
	}
	return nil
}

// SubscribeSwaps streams swaps from the all-swaps channel until ctx is done.
func (p *PubSubManager) SubscribeSwaps(ctx context.Context) (<-chan *models.SwapLog, error) {
	return p.subscribe(ctx, p.client.Subscribe(ctx, constants.PubSubChannelSwaps))
}

// PSubscribeSwaps streams swaps from channels matching pattern, e.g. "swaps:pair:*".
func (p *PubSubManager) PSubscribeSwaps(ctx context.Context, pattern string) (<-chan *models.SwapLog, error) {
	return p.subscribe(ctx, p.client.PSubscribe(ctx, pattern))
}

func (p *PubSubManager) subscribe(ctx context.Context, ps *redis.PubSub) (<-chan *models.SwapLog, error) {
	// Wait for the subscription confirmation so callers see errors up front.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan *models.SwapLog, 64)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var l models.SwapLog
				if err := json.Unmarshal([]byte(msg.Payload), &l); err != nil {
					p.logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed swap event")
					continue
				}
				select {
				case out <- &l:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (p *PubSubManager) Close() error {
	return nil
}
