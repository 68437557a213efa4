package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-sensor-publisher/internal/sensor"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/redis"
)

const (
	statusQueueSize    = 16
	statusWriteTimeout = 2 * time.Second
)

type statusUpdate struct {
	reading *sensor.Reading
	state   ConnectionState
	at      time.Time
}

// StatusMirror copies the latest reading and connection state to Redis so
// dashboards can see the publisher without subscribing to the topic. Keys
// expire after the configured TTL and are never read back by the agent.
type StatusMirror struct {
	redis  redis.Client
	cfg    *config.Config
	logger *slog.Logger
	ttl    time.Duration

	updates chan statusUpdate

	mu          sync.RWMutex
	lastReading *sensor.Reading
}

// NewStatusMirror creates a mirror writing through redisClient
func NewStatusMirror(redisClient redis.Client, cfg *config.Config, logger *slog.Logger) *StatusMirror {
	return &StatusMirror{
		redis:   redisClient,
		cfg:     cfg,
		logger:  logger,
		ttl:     time.Duration(cfg.RedisStatusTTL) * time.Second,
		updates: make(chan statusUpdate, statusQueueSize),
	}
}

// RecordReading queues a published reading; it never blocks
func (s *StatusMirror) RecordReading(r sensor.Reading) {
	s.mu.Lock()
	s.lastReading = &r
	s.mu.Unlock()

	s.enqueue(statusUpdate{reading: &r, at: time.Now()})
}

// RecordState queues a connection state change; it never blocks
func (s *StatusMirror) RecordState(state ConnectionState) {
	s.enqueue(statusUpdate{state: state, at: time.Now()})
}

// LastReading returns the most recently published reading
func (s *StatusMirror) LastReading() (sensor.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastReading == nil {
		return sensor.Reading{}, false
	}
	return *s.lastReading, true
}

func (s *StatusMirror) enqueue(u statusUpdate) {
	select {
	case s.updates <- u:
	default:
		s.logger.Debug("Status mirror queue full, dropping update")
	}
}

// Run writes queued updates until ctx is cancelled, then flushes what is
// still queued.
func (s *StatusMirror) Run(ctx context.Context) {
	for {
		select {
		case u := <-s.updates:
			s.apply(ctx, u)
		case <-ctx.Done():
			s.flush()
			return
		}
	}
}

func (s *StatusMirror) flush() {
	for {
		select {
		case u := <-s.updates:
			s.apply(context.Background(), u)
		default:
			return
		}
	}
}

func (s *StatusMirror) apply(ctx context.Context, u statusUpdate) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err := s.write(ctx, u); err != nil {
		s.logger.Warn("Failed to mirror publisher status", "error", err)
	}
}

func (s *StatusMirror) write(ctx context.Context, u statusUpdate) error {
	statusKey := redis.StatusKey(s.cfg.SensorSite, s.cfg.SensorName)

	fields := map[string]interface{}{
		"client_id":  s.cfg.MQTTClientID,
		"updated_at": u.at.UTC().UnixMilli(),
	}

	if u.reading != nil {
		payload, err := u.reading.Payload()
		if err != nil {
			return err
		}
		if err := s.redis.Set(ctx, redis.LatestReadingKey(s.cfg.SensorSite, s.cfg.SensorName), payload, s.ttl); err != nil {
			return err
		}
		fields["last_publish_ts"] = u.reading.Timestamp
		fields["last_value"] = fmt.Sprintf("%.2f", u.reading.Value)
	} else {
		fields["connection_state"] = u.state.String()
	}

	if err := s.redis.HSet(ctx, statusKey, fields); err != nil {
		return err
	}
	return s.redis.Expire(ctx, statusKey, s.ttl)
}
