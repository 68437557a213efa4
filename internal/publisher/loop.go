package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/jeeves-sensor-publisher/internal/sensor"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
)

// ConnectionPollInterval is how often a disconnected loop re-checks the session
const ConnectionPollInterval = 200 * time.Millisecond

// TickResult is the outcome of one publish tick
type TickResult int

const (
	TickSkipped TickResult = iota
	TickPublished
	TickFailed
	TickCancelled
)

func (r TickResult) String() string {
	switch r {
	case TickSkipped:
		return "skipped"
	case TickPublished:
		return "published"
	case TickFailed:
		return "failed"
	case TickCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ConnectionStatus reports whether the session is usable
type ConnectionStatus interface {
	IsConnected() bool
}

// Sender is the send side of the transport
type Sender interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// ReadingSink receives every successfully published reading
type ReadingSink interface {
	RecordReading(r sensor.Reading)
}

// PublishLoop emits one reading per period while the session is up
type PublishLoop struct {
	conn      ConnectionStatus
	sender    Sender
	generator sensor.Generator
	cfg       *config.Config
	logger    *slog.Logger
	sinks     []ReadingSink
	results   []func(TickResult)

	now          func() time.Time
	wait         waitFunc
	period       time.Duration
	pollInterval time.Duration

	lastTimestamp int64
}

// NewPublishLoop creates a loop publishing to cfg.MQTTTopic every cfg.PublishPeriodSec
func NewPublishLoop(conn ConnectionStatus, sender Sender, generator sensor.Generator, cfg *config.Config, logger *slog.Logger) *PublishLoop {
	return &PublishLoop{
		conn:         conn,
		sender:       sender,
		generator:    generator,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		wait:         sleepContext,
		period:       time.Duration(cfg.PublishPeriodSec) * time.Second,
		pollInterval: ConnectionPollInterval,
	}
}

// AddSink registers a sink for published readings
func (p *PublishLoop) AddSink(sink ReadingSink) {
	p.sinks = append(p.sinks, sink)
}

// OnResult registers fn to be called with the outcome of every tick
func (p *PublishLoop) OnResult(fn func(TickResult)) {
	p.results = append(p.results, fn)
}

// Run ticks until ctx is cancelled. A disconnected tick re-checks after the
// poll interval; any other tick waits a full period.
func (p *PublishLoop) Run(ctx context.Context) {
	p.logger.Info("Starting publish loop",
		"topic", p.cfg.MQTTTopic,
		"period_sec", p.cfg.PublishPeriodSec)

	for ctx.Err() == nil {
		result := p.Tick(ctx)
		if result == TickCancelled {
			return
		}

		delay := p.period
		if result == TickSkipped {
			delay = p.pollInterval
		}

		if err := p.wait(ctx, delay); err != nil {
			return
		}
	}
}

// nextTimestamp returns the current UTC time in epoch milliseconds, kept
// strictly increasing across ticks.
func (p *PublishLoop) nextTimestamp() int64 {
	ts := p.now().UTC().UnixMilli()
	if ts <= p.lastTimestamp {
		ts = p.lastTimestamp + 1
	}
	p.lastTimestamp = ts
	return ts
}

// Tick publishes a single reading if connected
func (p *PublishLoop) Tick(ctx context.Context) TickResult {
	result := p.tick(ctx)
	for _, fn := range p.results {
		fn(result)
	}
	return result
}

func (p *PublishLoop) tick(ctx context.Context) TickResult {
	if ctx.Err() != nil {
		return TickCancelled
	}
	if !p.conn.IsConnected() {
		return TickSkipped
	}

	ts := p.nextTimestamp()
	value := p.generator.Next(time.UnixMilli(ts))
	reading := sensor.NewReading(time.UnixMilli(ts), value, p.cfg.SensorName, p.cfg.SensorSite)

	payload, err := reading.Payload()
	if err != nil {
		p.logger.Error("Failed to build payload", "error", err)
		return TickFailed
	}

	if err := p.sender.Publish(ctx, p.cfg.MQTTTopic, byte(p.cfg.MQTTQoS), false, payload); err != nil {
		if ctx.Err() != nil {
			return TickCancelled
		}
		p.logger.Error("Publish failed", "topic", p.cfg.MQTTTopic, "error", err)
		return TickFailed
	}

	p.logger.Info("Published reading",
		"topic", p.cfg.MQTTTopic,
		"value", fmt.Sprintf("%.2f", value),
		"unit", reading.Unit)

	for _, sink := range p.sinks {
		sink.RecordReading(reading)
	}

	return TickPublished
}
