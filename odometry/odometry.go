package odometry

import (
	"log"
	"math"
	"sync/atomic"
	"time"

	"rabbitcar/units"
)

type Config struct {
	MagnetsCount  int            `json:"magnetsCount"`
	WheelDiameter float64        `json:"wheelDiameter"` // meters
	Interval      units.Duration `json:"interval"`
}

type Reading struct {
	Pulses       uint64
	Delta        float64 // meters travelled during the sampled window
	Distance     float64 // meters since Start
	Speed        float64 // m/s over the sampled window
	AverageSpeed float64 // m/s since Start
}

// Odometer counts wheel pulses. Pulse may be called from any goroutine; every
// other method belongs to the control loop.
type Odometer struct {
	cfg      Config
	total    atomic.Uint64
	interval atomic.Uint64

	origin     time.Time
	lastSample time.Time
	reading    Reading
}

func NewOdometer(cfg Config) *Odometer {
	if cfg.MagnetsCount <= 0 {
		cfg.MagnetsCount = 1
	}
	return &Odometer{cfg: cfg}
}

func (o *Odometer) Circumference() float64 {
	return math.Pi * o.cfg.WheelDiameter
}

func (o *Odometer) Pulse() {
	o.total.Add(1)
	o.interval.Add(1)
}

func (o *Odometer) TotalPulses() uint64 {
	return o.total.Load()
}

// Start begins a run: counters and accumulators are zeroed and now becomes the run origin.
func (o *Odometer) Start(now time.Time) {
	if !o.origin.IsZero() {
		log.Printf("Odometer cleared, last run length: %.2f s", o.lastSample.Sub(o.origin).Seconds())
	}
	o.total.Store(0)
	o.interval.Store(0)
	o.origin = now
	o.lastSample = now
	o.reading = Reading{}
}

func (o *Odometer) Origin() time.Time {
	return o.origin
}

func (o *Odometer) Due(now time.Time) bool {
	return now.Sub(o.lastSample) >= time.Duration(o.cfg.Interval)
}

func (o *Odometer) Sample(now time.Time) Reading {
	pulses := o.interval.Swap(0)
	delta := float64(pulses) / float64(o.cfg.MagnetsCount) * o.Circumference()

	o.reading.Pulses = pulses
	o.reading.Delta = delta
	o.reading.Distance += delta
	o.reading.Speed = 0
	if elapsed := now.Sub(o.lastSample).Seconds(); elapsed > 0 {
		o.reading.Speed = delta / elapsed
	}
	o.reading.AverageSpeed = 0
	if run := now.Sub(o.origin).Seconds(); run > 0 {
		o.reading.AverageSpeed = o.reading.Distance / run
	}
	o.lastSample = now
	return o.reading
}

func (o *Odometer) Reading() Reading {
	return o.reading
}
