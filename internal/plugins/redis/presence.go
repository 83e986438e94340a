package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/koustubh-k/Synk-App/internal/core/contracts"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

type Options struct {
	InstanceID  string
	KeyPrefix   string
	InstanceTTL time.Duration
}

// RedisPresenceBackend keeps the aggregate presence set and the broadcast
// channel in Redis. Every call goes through a circuit breaker so an
// unreachable store fails fast instead of stalling connects.
type RedisPresenceBackend struct {
	rdb     *redis.Client
	log     *slog.Logger
	breaker *gobreaker.CircuitBreaker
	opts    Options
}

var (
	_ contracts.PresenceBackend  = (*RedisPresenceBackend)(nil)
	_ contracts.InstanceLiveness = (*RedisPresenceBackend)(nil)
)

func NewRedisPresenceBackend(log *slog.Logger, rdb *redis.Client, opts Options) *RedisPresenceBackend {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "{synk}"
	}
	if opts.InstanceTTL <= 0 {
		opts.InstanceTTL = 30 * time.Second
	}
	p := &RedisPresenceBackend{rdb: rdb, log: log, opts: opts}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-presence",
		MaxRequests: 1,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("redis presence - breaker - state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

func (p *RedisPresenceBackend) onlineKey() string {
	return p.opts.KeyPrefix + ":presence:online"
}

func (p *RedisPresenceBackend) instancesKey() string {
	return p.opts.KeyPrefix + ":presence:instances"
}

func (p *RedisPresenceBackend) instanceUsersKey(id string) string {
	return p.opts.KeyPrefix + ":presence:instance:" + id + ":users"
}

func (p *RedisPresenceBackend) aliveKey(id string) string {
	return p.opts.KeyPrefix + ":presence:instance:" + id + ":alive"
}

func (p *RedisPresenceBackend) execute(fn func() (any, error)) (any, error) {
	res, err := p.breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBridgeUnavailable, err)
	}
	return res, nil
}

func (p *RedisPresenceBackend) AddOnline(ctx context.Context, userID string) (bool, error) {
	res, err := p.execute(func() (any, error) {
		return addOnlineScript.Run(ctx, p.rdb,
			[]string{p.onlineKey(), p.instanceUsersKey(p.opts.InstanceID), p.instancesKey()},
			userID, p.opts.InstanceID,
		).Int64()
	})
	if err != nil {
		return false, err
	}
	return res.(int64) == 1, nil
}

func (p *RedisPresenceBackend) RemoveOnline(ctx context.Context, userID string) (bool, error) {
	res, err := p.execute(func() (any, error) {
		return removeOnlineScript.Run(ctx, p.rdb,
			[]string{p.onlineKey(), p.instanceUsersKey(p.opts.InstanceID)},
			userID,
		).Int64()
	})
	if err != nil {
		return false, err
	}
	return res.(int64) == 1, nil
}

func (p *RedisPresenceBackend) IsOnline(ctx context.Context, userIDs []string) ([]bool, error) {
	out := make([]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	res, err := p.execute(func() (any, error) {
		return p.rdb.HMGet(ctx, p.onlineKey(), userIDs...).Result()
	})
	if err != nil {
		return nil, err
	}
	for i, v := range res.([]any) {
		out[i] = v != nil
	}
	return out, nil
}

func (p *RedisPresenceBackend) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := p.execute(func() (any, error) {
		return nil, p.rdb.Publish(ctx, channel, payload).Err()
	})
	return err
}

// Subscribe confirms the subscription and then delivers until ctx is done.
// The go-redis PubSub reconnects on its own after transient failures.
func (p *RedisPresenceBackend) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	pubsub := p.rdb.Subscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe %s: %v", domain.ErrBridgeUnavailable, channel, err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handler([]byte(msg.Payload))
		}
	}
}

func (p *RedisPresenceBackend) Distributed() bool { return true }

// Heartbeat marks this process alive for InstanceTTL.
func (p *RedisPresenceBackend) Heartbeat(ctx context.Context) error {
	_, err := p.execute(func() (any, error) {
		pipe := p.rdb.TxPipeline()
		pipe.Set(ctx, p.aliveKey(p.opts.InstanceID), time.Now().Unix(), p.opts.InstanceTTL)
		pipe.SAdd(ctx, p.instancesKey(), p.opts.InstanceID)
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	return err
}

// ReapExpired subtracts every dead process from the aggregate set. The
// script claims an instance by removing it from the instance set, so only
// one reaper processes a given dead instance.
func (p *RedisPresenceBackend) ReapExpired(ctx context.Context) ([]string, error) {
	res, err := p.execute(func() (any, error) {
		return p.rdb.SMembers(ctx, p.instancesKey()).Result()
	})
	if err != nil {
		return nil, err
	}
	var offline []string
	for _, id := range res.([]string) {
		if id == p.opts.InstanceID {
			continue
		}
		users, err := p.release(ctx, id, "reap")
		if err != nil {
			return offline, err
		}
		if len(users) > 0 {
			p.log.InfoContext(ctx, "redis presence - reap expired - instance reclaimed", "instance_id", id, "offline_users", len(users))
		}
		offline = append(offline, users...)
	}
	return offline, nil
}

func (p *RedisPresenceBackend) InstanceUsers(ctx context.Context) ([]string, error) {
	res, err := p.execute(func() (any, error) {
		return p.rdb.SMembers(ctx, p.instanceUsersKey(p.opts.InstanceID)).Result()
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

// Release drops everything this process contributed.
func (p *RedisPresenceBackend) Release(ctx context.Context) ([]string, error) {
	return p.release(ctx, p.opts.InstanceID, "release")
}

func (p *RedisPresenceBackend) release(ctx context.Context, instanceID, mode string) ([]string, error) {
	res, err := p.execute(func() (any, error) {
		return releaseInstanceScript.Run(ctx, p.rdb,
			[]string{
				p.onlineKey(),
				p.instanceUsersKey(instanceID),
				p.instancesKey(),
				p.aliveKey(instanceID),
			},
			instanceID, mode,
		).StringSlice()
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}
