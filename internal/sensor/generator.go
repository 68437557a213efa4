package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
)

// Generator produces the value for one tick
type Generator interface {
	Next(now time.Time) float64
}

// noise is a goroutine-safe uniform [0,1) source
type noise struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newNoise(seed int64) *noise {
	return &noise{rng: rand.New(rand.NewSource(seed))}
}

func (n *noise) Float64() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rng.Float64()
}

// SineGenerator emits 22 + 3*sin(t/30) + U[0,1) where t is Unix seconds
type SineGenerator struct {
	Base      float64
	Amplitude float64
	PeriodDiv float64
	noise     *noise
}

// NewSineGenerator creates the default waveform generator
func NewSineGenerator(seed int64) *SineGenerator {
	return &SineGenerator{
		Base:      22.0,
		Amplitude: 3.0,
		PeriodDiv: 30.0,
		noise:     newNoise(seed),
	}
}

// Next returns the value for now
func (g *SineGenerator) Next(now time.Time) float64 {
	seconds := float64(now.Unix())
	return g.Base + g.Amplitude*math.Sin(seconds/g.PeriodDiv) + g.noise.Float64()
}

// SolarGenerator follows the sun: a night baseline warmed in proportion to
// the sine of the solar altitude at the configured coordinates.
type SolarGenerator struct {
	Latitude  float64
	Longitude float64
	NightTemp float64
	SolarGain float64
	noise     *noise
}

// NewSolarGenerator creates a sun-driven generator for the given location
func NewSolarGenerator(lat, lon float64, seed int64) *SolarGenerator {
	return &SolarGenerator{
		Latitude:  lat,
		Longitude: lon,
		NightTemp: 15.0,
		SolarGain: 12.0,
		noise:     newNoise(seed),
	}
}

// Next returns the value for now
func (g *SolarGenerator) Next(now time.Time) float64 {
	position := suncalc.GetPosition(now, g.Latitude, g.Longitude)

	warming := 0.0
	if position.Altitude > 0 {
		warming = g.SolarGain * math.Sin(position.Altitude)
	}

	return g.NightTemp + warming + g.noise.Float64()
}

// NewGenerator returns the generator selected by cfg.GeneratorMode
func NewGenerator(cfg *config.Config) (Generator, error) {
	seed := time.Now().UnixNano()

	switch cfg.GeneratorMode {
	case config.GeneratorModeSine, "":
		return NewSineGenerator(seed), nil
	case config.GeneratorModeSolar:
		return NewSolarGenerator(cfg.Latitude, cfg.Longitude, seed), nil
	default:
		return nil, fmt.Errorf("unknown generator mode: %s", cfg.GeneratorMode)
	}
}
