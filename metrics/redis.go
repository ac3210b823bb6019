package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig for creating a Redis sink
type RedisConfig struct {
	Addr     string        // Redis address (e.g., "localhost:6379")
	Password string        // Redis password (empty for no auth)
	DB       int           // Redis database number
	TTL      time.Duration // TTL for the per-route hashes (default: 24 hours)
	Buffer   int           // queued decisions before new ones are dropped (default: 1024)
}

type redisEvent struct {
	route   string
	allowed bool
}

// RedisSink exports per-route decision counts into Redis hashes named
// ratelimiter:stats:<route> with "allowed" and "denied" fields.
//
// Recording never blocks: decisions are queued and written by a background
// goroutine, and dropped when the queue is full.
type RedisSink struct {
	client  *redis.Client
	ttl     time.Duration
	events  chan redisEvent
	dropped atomic.Int64
	logger  *slog.Logger

	mu        sync.RWMutex // guards closed against sends on a closed queue
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewRedisSink connects to Redis and starts the writer goroutine.
// A nil logger uses slog.Default().
func NewRedisSink(config RedisConfig, logger *slog.Logger) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ttl := config.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	buffer := config.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &RedisSink{
		client: client,
		ttl:    ttl,
		events: make(chan redisEvent, buffer),
		logger: logger.With("component", "metrics.redis"),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// StatsKey returns the hash a route's counters are written to.
func StatsKey(route string) string {
	return "ratelimiter:stats:" + routeLabel(route)
}

// RecordRequest queues one decision for export. Decisions recorded
// after Close are counted as dropped.
func (s *RedisSink) RecordRequest(_, route string, allowed bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.events <- redisEvent{route: route, allowed: allowed}:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many decisions were discarded, because the queue was
// full or the sink was closed.
func (s *RedisSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *RedisSink) run() {
	defer close(s.done)
	for event := range s.events {
		if err := s.write(event); err != nil {
			s.logger.Warn("failed to export rate limit decision",
				"route", routeLabel(event.route),
				"error", err,
			)
		}
	}
}

func (s *RedisSink) write(event redisEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := StatsKey(event.route)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, Decision(event.allowed), 1)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// RouteCounts reads the exported counters of route.
func (s *RedisSink) RouteCounts(ctx context.Context, route string) (allowed, denied int64, err error) {
	values, err := s.client.HGetAll(ctx, StatsKey(route)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read route stats: %w", err)
	}
	if allowed, err = parseCount(values["allowed"]); err != nil {
		return 0, 0, err
	}
	if denied, err = parseCount(values["denied"]); err != nil {
		return 0, 0, err
	}
	return allowed, denied, nil
}

func parseCount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q: %w", v, err)
	}
	return n, nil
}

// Ping checks if Redis connection is alive
func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close flushes queued decisions and closes the Redis connection.
func (s *RedisSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()

		<-s.done
		err = s.client.Close()
	})
	return err
}
