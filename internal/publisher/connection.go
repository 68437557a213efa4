package publisher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/mqtt"
)

// ConnectionManager owns the broker session. It is the only component that
// connects, disconnects or changes the connection state; everything else
// reads State/IsConnected.
type ConnectionManager struct {
	client mqtt.Client
	cfg    *config.Config
	logger *slog.Logger

	state stateCell
	wait  waitFunc

	retryInterval  time.Duration
	backoffFloor   time.Duration
	backoffCeiling time.Duration

	// connecting is held by InitialConnect and by a reconnection episode
	connecting atomic.Bool
	episodes   atomic.Int64

	observersMux sync.RWMutex
	observers    []func(ConnectionState)
	attempts     []func(error)
	episodeHooks []func(int64)

	disconnectOnce sync.Once
}

// NewConnectionManager creates a manager for the given transport
func NewConnectionManager(client mqtt.Client, cfg *config.Config, logger *slog.Logger) *ConnectionManager {
	return &ConnectionManager{
		client:         client,
		cfg:            cfg,
		logger:         logger,
		wait:           sleepContext,
		retryInterval:  InitialConnectInterval,
		backoffFloor:   ReconnectFloor,
		backoffCeiling: ReconnectCeiling,
	}
}

// OnStateChange registers fn to be called after every state transition.
// fn runs on the goroutine performing the transition and must not block.
func (m *ConnectionManager) OnStateChange(fn func(ConnectionState)) {
	m.observersMux.Lock()
	defer m.observersMux.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *ConnectionManager) setState(s ConnectionState) {
	if !m.state.Store(s) {
		return
	}

	m.observersMux.RLock()
	defer m.observersMux.RUnlock()
	for _, fn := range m.observers {
		fn(s)
	}
}

// OnConnectAttempt registers fn to be called with the result of every
// connection attempt.
func (m *ConnectionManager) OnConnectAttempt(fn func(error)) {
	m.observersMux.Lock()
	defer m.observersMux.Unlock()
	m.attempts = append(m.attempts, fn)
}

// OnEpisode registers fn to be called when a reconnection episode starts
func (m *ConnectionManager) OnEpisode(fn func(episode int64)) {
	m.observersMux.Lock()
	defer m.observersMux.Unlock()
	m.episodeHooks = append(m.episodeHooks, fn)
}

func (m *ConnectionManager) notifyAttempt(err error) {
	m.observersMux.RLock()
	defer m.observersMux.RUnlock()
	for _, fn := range m.attempts {
		fn(err)
	}
}

// State returns the current connection state
func (m *ConnectionManager) State() ConnectionState {
	return m.state.Load()
}

// IsConnected reports whether readings may be published right now. The
// transport is consulted as well so a drop is visible before its event has
// been handled.
func (m *ConnectionManager) IsConnected() bool {
	return m.state.Load() == StateConnected && m.client.IsConnected()
}

// Episodes returns the number of reconnection episodes started so far
func (m *ConnectionManager) Episodes() int64 {
	return m.episodes.Load()
}

// Connect makes a single connection attempt. Retry policy is up to the caller.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.setState(StateConnecting)

	err := m.client.Connect(ctx)
	m.notifyAttempt(err)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}

	m.setState(StateConnected)
	m.logger.Info("MQTT connected",
		"host", m.cfg.MQTTBroker,
		"port", m.cfg.MQTTPort,
		"tls", m.cfg.MQTTUseTLS)
	return nil
}

// InitialConnect retries Connect at a fixed interval until it succeeds or
// ctx is cancelled. It reports whether a connection was established;
// cancellation is not an error.
func (m *ConnectionManager) InitialConnect(ctx context.Context) bool {
	if !m.connecting.CompareAndSwap(false, true) {
		m.logger.Warn("Connection attempt already in progress")
		return false
	}
	defer m.connecting.Store(false)

	for attempt := 1; ctx.Err() == nil; attempt++ {
		err := m.Connect(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		m.logger.Warn("MQTT not ready, retrying",
			"attempt", attempt,
			"retry_in", m.retryInterval,
			"error", err)

		if err := m.wait(ctx, m.retryInterval); err != nil {
			return false
		}
	}
	return false
}

// Run consumes transport events until ctx is cancelled. A lost connection
// starts a reconnection episode on this goroutine, so episodes are strictly
// sequential.
func (m *ConnectionManager) Run(ctx context.Context) {
	events := m.client.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent reacts to a single transport event
func (m *ConnectionManager) HandleEvent(ctx context.Context, ev mqtt.ConnectionEvent) {
	if ev.Type != mqtt.EventConnectionLost {
		return
	}
	if ctx.Err() != nil {
		// Deliberate shutdown in progress
		return
	}
	if m.client.IsConnected() {
		m.logger.Debug("Ignoring stale connection lost event", "lost_at", ev.At)
		return
	}

	m.setState(StateDisconnected)
	m.reconnect(ctx, ev.Err)
}

// reconnect runs one reconnection episode: wait, try, double the delay up
// to the ceiling, until connected or cancelled.
func (m *ConnectionManager) reconnect(ctx context.Context, cause error) {
	if !m.connecting.CompareAndSwap(false, true) {
		m.logger.Debug("Reconnection already in progress")
		return
	}
	defer m.connecting.Store(false)

	episode := m.episodes.Add(1)
	backoff := NewBackoff(m.backoffFloor, m.backoffCeiling)

	m.observersMux.RLock()
	for _, fn := range m.episodeHooks {
		fn(episode)
	}
	m.observersMux.RUnlock()

	m.logger.Warn("MQTT disconnected, reconnecting",
		"episode", episode,
		"retry_in", backoff.Delay(),
		"error", cause)

	for !m.client.IsConnected() && ctx.Err() == nil {
		if err := m.wait(ctx, backoff.Delay()); err != nil {
			return
		}

		err := m.Connect(ctx)
		if err == nil {
			m.logger.Info("MQTT reconnected",
				"episode", episode,
				"attempts", backoff.Attempts()+1)
			return
		}
		if ctx.Err() != nil {
			return
		}

		next := backoff.Failed()
		m.logger.Warn("Reconnection failed",
			"episode", episode,
			"attempt", backoff.Attempts(),
			"retry_in", next,
			"error", err)
	}

	if m.client.IsConnected() {
		m.setState(StateConnected)
	}
}

// Disconnect tears the session down gracefully. Only the first call has
// any effect.
func (m *ConnectionManager) Disconnect(reason string) {
	m.disconnectOnce.Do(func() {
		m.client.Disconnect(reason)
		m.setState(StateDisconnected)
	})
}
