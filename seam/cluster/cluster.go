// Package cluster implements the cross-process relay seam of §4.F: a
// Broadcast call ships an event to peer bus instances over a shared
// channel. Grounded on bitechdev/pkg/eventbroker's RedisProvider (pub/sub
// over a go-redis client), simplified from streams/consumer-groups to
// plain pub/sub since the relay only needs best-effort fan-out, not
// durable delivery.
package cluster

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/TIVerse/neurobus"
)

// originMetadataKey tags a relayed event with the instance that first
// published it, so a receiving instance can recognize and drop its own
// echo instead of relaying forever.
const originMetadataKey = "_neurobus_origin"

// RedisRelay implements neurobus.ClusterRelay over a Redis pub/sub
// channel, plus Listen to feed received events back into a local Bus.
type RedisRelay struct {
	client     *redis.Client
	channel    string
	instanceID string
}

// RedisRelayConfig configures NewRedisRelay.
type RedisRelayConfig struct {
	Addr       string
	Password   string
	DB         int
	Channel    string
	InstanceID string
}

// NewRedisRelay builds a RedisRelay and verifies connectivity with a Ping.
func NewRedisRelay(ctx context.Context, cfg RedisRelayConfig) (*RedisRelay, error) {
	if cfg.Channel == "" {
		cfg.Channel = "neurobus:relay"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("neurobus/cluster: connecting to redis: %w", err)
	}

	return &RedisRelay{client: client, channel: cfg.Channel, instanceID: cfg.InstanceID}, nil
}

// Broadcast publishes e's JSON encoding to the shared channel, tagging it
// with this instance's id for loop prevention. An event that already
// carries an origin tag (one received from a peer, or an echo of this
// instance's own) is not re-broadcast.
func (r *RedisRelay) Broadcast(ctx context.Context, e *neurobus.Event) error {
	if origin, _ := e.Metadata()[originMetadataKey].(string); origin != "" {
		return nil
	}

	tagged := e
	if r.instanceID != "" {
		meta := e.Metadata()
		meta[originMetadataKey] = r.instanceID
		var err error
		tagged, err = neurobus.New(e.Topic(),
			neurobus.WithID(e.ID()),
			neurobus.WithTimestamp(e.Timestamp()),
			neurobus.WithData(e.Data()),
			neurobus.WithContext(e.Context()),
			neurobus.WithMetadata(meta),
			neurobus.WithParentID(e.ParentID()),
		)
		if err != nil {
			return fmt.Errorf("neurobus/cluster: tagging event for relay: %w", err)
		}
	}

	payload, err := tagged.ToJSON()
	if err != nil {
		return fmt.Errorf("neurobus/cluster: encoding event: %w", err)
	}

	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Listen subscribes to the shared channel and invokes onEvent for every
// received message whose origin differs from this instance's own id (to
// avoid replaying an echo of something this instance just broadcast). It
// blocks until ctx is canceled.
func (r *RedisRelay) Listen(ctx context.Context, onEvent func(*neurobus.Event)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := neurobus.FromJSON([]byte(msg.Payload))
			if err != nil {
				continue
			}
			if r.instanceID != "" && e.Metadata()[originMetadataKey] == r.instanceID {
				continue
			}
			onEvent(e)
		}
	}
}

// Close releases the underlying Redis client.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
