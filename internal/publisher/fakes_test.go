package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/mqtt"
)

var errBrokerDown = errors.New("connection refused")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.PublishPeriodSec = 5
	cfg.MQTTTopic = "lab/temperature"
	cfg.SensorName = "s1"
	cfg.SensorSite = "A"
	cfg.MQTTClientID = "sensor-test"
	return cfg
}

// fakeClient is an in-memory mqtt.Client
type fakeClient struct {
	mu sync.Mutex

	connected bool
	// failConnects makes the next N connection attempts fail
	failConnects int

	connectCalls    int
	disconnectCalls int
	publishCalls    int
	publishErrs     []error
	topics          []string
	payloads        [][]byte

	events chan mqtt.ConnectionEvent
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan mqtt.ConnectionEvent, 1)}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connectCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failConnects > 0 {
		f.failConnects--
		return errBrokerDown
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Disconnect(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnectCalls++
	f.connected = false
}

func (f *fakeClient) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.publishCalls++
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	if !f.connected {
		return mqtt.ErrNotConnected
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Events() <-chan mqtt.ConnectionEvent {
	return f.events
}

// drop simulates the broker going away
func (f *fakeClient) drop(failNext int) {
	f.mu.Lock()
	f.connected = false
	f.failConnects = failNext
	f.mu.Unlock()

	select {
	case f.events <- mqtt.ConnectionEvent{Type: mqtt.EventConnectionLost, Err: errBrokerDown, At: time.Now()}:
	default:
	}
}

func (f *fakeClient) setFailConnects(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failConnects = n
}

func (f *fakeClient) counts() (connects, publishes, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls, f.publishCalls, f.disconnectCalls
}

func (f *fakeClient) published() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

// recordingWait records requested delays and returns immediately
type recordingWait struct {
	mu     sync.Mutex
	delays []time.Duration
	// cancelAfter cancels the context once this many waits were requested
	cancelAfter int
	cancel      context.CancelFunc
}

func (r *recordingWait) wait(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	n := len(r.delays)
	r.mu.Unlock()

	if r.cancel != nil && n >= r.cancelAfter {
		r.cancel()
	}
	return ctx.Err()
}

func (r *recordingWait) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]time.Duration, len(r.delays))
	copy(out, r.delays)
	return out
}

// fixedGenerator returns a constant value
type fixedGenerator float64

func (g fixedGenerator) Next(time.Time) float64 { return float64(g) }

// fakeRedis is an in-memory redis.Client
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
	pings   int
	closed  int
	pingErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		ttls:    make(map[string]time.Duration),
	}
}

func (r *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch v := value.(type) {
	case []byte:
		r.strings[key] = string(v)
	case string:
		r.strings[key] = v
	default:
		return errors.New("unsupported value type")
	}
	r.ttls[key] = ttl
	return nil
}

func (r *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.strings[key]
	if !ok {
		return "", errors.New("key does not exist")
	}
	return v, nil
}

func (r *fakeRedis) HSet(ctx context.Context, key string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hashes[key]
	if !ok {
		h = make(map[string]string)
		r.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = fmt.Sprint(v)
	}
	return nil
}

func (r *fakeRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string)
	for k, v := range r.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (r *fakeRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttls[key] = ttl
	return nil
}

func (r *fakeRedis) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pings++
	return r.pingErr
}

func (r *fakeRedis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}
