package car

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"rabbitcar/battery"
	"rabbitcar/gpio"
	"rabbitcar/linesensor"
	"rabbitcar/odometry"
	"rabbitcar/pid"
	"rabbitcar/position"
	"rabbitcar/speed"
	"rabbitcar/steering"
	"rabbitcar/telemetry"
	"rabbitcar/trace"
	"rabbitcar/units"
	"rabbitcar/vehicle"
)

var ErrStopped = errors.New("car loop stopped")

type Config struct {
	Cycle     units.Duration `json:"cycle"`
	QueueSize int            `json:"queueSize"`
	WhiteLine bool           `json:"whiteLine"`
}

// RunConfig is written only by commands handled on the loop goroutine.
type RunConfig struct {
	TargetDistance float64 `json:"targetDistance"` // meters
	TargetTime     float64 `json:"targetTime"`     // seconds
	TargetPace     float64 `json:"targetPace"`     // m/s, wins over distance/time
	Manual         bool    `json:"manual"`
	Running        bool    `json:"running"`
	WhiteLine      bool    `json:"whiteLine"`
}

// TargetSpeed is the speed the speed controller chases, 0 when no target was given.
func (r RunConfig) TargetSpeed() float64 {
	if r.TargetPace > 0 {
		return r.TargetPace
	}
	if r.TargetDistance > 0 && r.TargetTime > 0 {
		return r.TargetDistance / r.TargetTime
	}
	return 0
}

type Diagnostics struct {
	UnknownCommands   uint64 `json:"unknownCommands"`
	MalformedCommands uint64 `json:"malformedCommands"`
	IgnoredCommands   uint64 `json:"ignoredCommands"`
	RejectedPositions uint64 `json:"rejectedPositions"`
	SensorErrors      uint64 `json:"sensorErrors"`
	ActuatorErrors    uint64 `json:"actuatorErrors"`
}

type SteeringSnapshot struct {
	Angle    float64   `json:"angle"`
	Error    float64   `json:"error"`
	Band     int       `json:"band"`
	Gains    pid.Gains `json:"gains"`
	LineLost bool      `json:"lineLost"`
	Tuning   string    `json:"tuning,omitempty"`
}

// Snapshot is an immutable copy of the loop state for readers on other goroutines.
type Snapshot struct {
	At          time.Time        `json:"at"`
	Connected   bool             `json:"connected"`
	RunID       string           `json:"runId,omitempty"`
	Run         RunConfig        `json:"run"`
	Elapsed     float64          `json:"elapsed"`
	Frame       string           `json:"frame"`
	Position    float64          `json:"position"`
	OnLine      bool             `json:"onLine"`
	Odometry    odometry.Reading `json:"odometry"`
	TargetSpeed float64          `json:"targetSpeed"`
	Steering    SteeringSnapshot `json:"steering"`
	SpeedGains  pid.Gains        `json:"speedGains"`
	Vehicle     vehicle.State    `json:"vehicle"`
	Battery     *battery.Status  `json:"battery,omitempty"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

type FrameReader interface {
	Read() (linesensor.Frame, error)
}

// Indicator is a single on/off light; gpio.Gpio satisfies it.
type Indicator interface {
	SetValue(value gpio.Value) error
}

type BatteryReader interface {
	Status() (battery.Status, bool)
}

type Car struct {
	cfg       Config
	events    chan Event
	done      chan struct{}
	sensors   FrameReader
	estimator *position.Estimator
	odometer  *odometry.Odometer
	steering  *steering.Controller
	speed     *speed.Controller
	vehicle   *vehicle.Vehicle
	publisher *telemetry.Publisher

	battery    BatteryReader
	trace      *trace.Recorder
	connection Indicator
	lineColor  Indicator
	clock      func() time.Time

	connected   bool
	run         RunConfig
	runID       string
	runStart    time.Time
	frame       linesensor.Frame
	estimate    position.Estimate
	output      steering.Output
	reading     odometry.Reading
	sensorFault bool
	diagnostics Diagnostics
	snapshot    atomic.Pointer[Snapshot]
}

type Option func(*Car)

func WithBattery(reader BatteryReader) Option {
	return func(c *Car) { c.battery = reader }
}

func WithTrace(recorder *trace.Recorder) Option {
	return func(c *Car) { c.trace = recorder }
}

func WithIndicators(connection Indicator, lineColor Indicator) Option {
	return func(c *Car) {
		c.connection = connection
		c.lineColor = lineColor
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *Car) { c.clock = clock }
}

func New(
	cfg Config,
	sensors FrameReader,
	estimator *position.Estimator,
	odometer *odometry.Odometer,
	steeringController *steering.Controller,
	speedController *speed.Controller,
	v *vehicle.Vehicle,
	publisher *telemetry.Publisher,
	options ...Option,
) *Car {
	c := &Car{
		cfg:       cfg,
		events:    make(chan Event, max(cfg.QueueSize, 1)),
		done:      make(chan struct{}),
		sensors:   sensors,
		estimator: estimator,
		odometer:  odometer,
		steering:  steeringController,
		speed:     speedController,
		vehicle:   v,
		publisher: publisher,
		clock:     time.Now,
	}
	for _, option := range options {
		option(c)
	}
	c.run = c.defaultRun()
	c.output = steering.Output{Angle: v.Calibration().Steering.NeutralAngle}
	c.publish(c.clock())
	return c
}

func (c *Car) defaultRun() RunConfig {
	return RunConfig{WhiteLine: c.cfg.WhiteLine}
}

// Post queues an event for the loop. It blocks while the queue is full.
func (c *Car) Post(ctx context.Context, ev Event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the state published at the end of the last event or cycle.
func (c *Car) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Run drives the control loop until ctx is done, then leaves both outputs neutral.
func (c *Car) Run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(time.Duration(c.cfg.Cycle))
	defer ticker.Stop()
	log.Printf("Control loop started, cycle %s", time.Duration(c.cfg.Cycle))
	for {
		select {
		case <-ctx.Done():
			c.stopRun(c.clock(), "shutdown")
			log.Print("Control loop stopped")
			return
		case ev := <-c.events:
			c.Handle(ev)
		case <-ticker.C:
			c.Step(c.clock())
		}
	}
}
