package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saaga0h/jeeves-sensor-publisher/internal/sensor"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/metrics"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/mqtt"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/redis"
)

// Agent represents the sensor publisher agent: it keeps the broker session
// alive and publishes one synthetic reading per period.
type Agent struct {
	mqtt   mqtt.Client
	redis  redis.Client
	cfg    *config.Config
	logger *slog.Logger

	conn   *ConnectionManager
	loop   *PublishLoop
	mirror *StatusMirror

	lastPublish atomic.Int64
	published   atomic.Int64

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
	running  sync.WaitGroup
	stopOnce sync.Once
}

// NewAgent creates a new publisher agent. redisClient may be nil, in which
// case no status is mirrored.
func NewAgent(mqttClient mqtt.Client, redisClient redis.Client, generator sensor.Generator, cfg *config.Config, logger *slog.Logger) *Agent {
	conn := NewConnectionManager(mqttClient, cfg, logger)
	loop := NewPublishLoop(conn, mqttClient, generator, cfg, logger)

	a := &Agent{
		mqtt:   mqttClient,
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		loop:   loop,
	}
	loop.AddSink(a)

	if redisClient != nil {
		a.mirror = NewStatusMirror(redisClient, cfg, logger)
		loop.AddSink(a.mirror)
		conn.OnStateChange(a.mirror.RecordState)
	}

	conn.OnStateChange(func(s ConnectionState) {
		logger.Debug("Connection state changed", "state", s.String())
	})

	return a
}

// Instrument feeds publish and connection events into m. Call it before Start.
func (a *Agent) Instrument(m *metrics.Metrics) {
	m.SetConnectionState(int(a.conn.State()))

	a.conn.OnStateChange(func(s ConnectionState) {
		m.SetConnectionState(int(s))
	})
	a.conn.OnConnectAttempt(m.ObserveConnectAttempt)
	a.conn.OnEpisode(func(int64) {
		m.ObserveReconnectEpisode()
	})

	a.loop.AddSink(readingSinkFunc(func(r sensor.Reading) {
		m.ObservePublish(r.Value, r.Time())
	}))
	a.loop.OnResult(func(result TickResult) {
		if result == TickFailed {
			m.ObservePublishFailure()
		}
	})
}

// readingSinkFunc adapts a function to ReadingSink
type readingSinkFunc func(sensor.Reading)

func (f readingSinkFunc) RecordReading(r sensor.Reading) { f(r) }

// Start connects to the broker and runs the publish loop and the
// reconnection handler until ctx is cancelled or Stop is called.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.running.Add(1)
	a.mu.Unlock()
	defer a.running.Done()

	a.logger.Info("Starting sensor publisher agent",
		"service_name", a.cfg.ServiceName,
		"mqtt_broker", a.cfg.MQTTAddress(),
		"client_id", a.cfg.MQTTClientID,
		"topic", a.cfg.MQTTTopic)

	var loops sync.WaitGroup

	if a.mirror != nil {
		if err := a.redis.Ping(ctx); err != nil {
			// Status mirroring is auxiliary; keep publishing without it
			a.logger.Warn("Redis unavailable, status mirror will retry per update", "error", err)
		}
		loops.Add(1)
		go func() {
			defer loops.Done()
			a.mirror.Run(ctx)
		}()
	}

	if !a.conn.InitialConnect(ctx) {
		a.logger.Info("Sensor publisher agent stopped before connecting")
		loops.Wait()
		return nil
	}

	loops.Add(2)
	go func() {
		defer loops.Done()
		a.conn.Run(ctx)
	}()
	go func() {
		defer loops.Done()
		a.loop.Run(ctx)
	}()

	a.logger.Info("Sensor publisher agent started and publishing")

	<-ctx.Done()
	a.logger.Info("Sensor publisher agent stopping")
	loops.Wait()

	return nil
}

// Stop gracefully stops the agent: all loops exit first, then the broker
// session is closed exactly once.
func (a *Agent) Stop() error {
	var err error

	a.stopOnce.Do(func() {
		a.logger.Info("Stopping sensor publisher agent")

		a.mu.Lock()
		a.stopped = true
		cancel := a.cancel
		a.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		a.running.Wait()

		// Disconnect from MQTT
		a.conn.Disconnect("shutdown")

		// Write the final state before the Redis connection goes away
		if a.mirror != nil {
			a.mirror.flush()
		}

		// Close Redis connection
		if a.redis != nil {
			if closeErr := a.redis.Close(); closeErr != nil {
				a.logger.Error("Error closing Redis connection", "error", closeErr)
				err = closeErr
				return
			}
		}

		a.logger.Info("Sensor publisher agent stopped",
			"published", a.published.Load(),
			"reconnect_episodes", a.conn.Episodes())
	})

	return err
}

// RecordReading tracks publish progress for health reporting
func (a *Agent) RecordReading(r sensor.Reading) {
	a.lastPublish.Store(r.Timestamp)
	a.published.Add(1)
}

// IsConnected reports whether the broker session is up
func (a *Agent) IsConnected() bool {
	return a.conn.IsConnected()
}

// ConnectionState returns the connection state name
func (a *Agent) ConnectionState() string {
	return a.conn.State().String()
}

// LastPublish returns the timestamp of the most recent successful publish
func (a *Agent) LastPublish() (time.Time, bool) {
	ts := a.lastPublish.Load()
	if ts == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ts).UTC(), true
}

// Published returns the number of readings published so far
func (a *Agent) Published() int64 {
	return a.published.Load()
}
