package steering

import (
	"math"
	"time"

	"rabbitcar/numeric"
	"rabbitcar/pid"
	"rabbitcar/position"
)

type Config struct {
	Bands       []pid.Band `json:"bands"`
	MaxIntegral float64    `json:"maxIntegral"`

	Deadband          float64 `json:"deadband"`
	HighSpeedDeadband float64 `json:"highSpeedDeadband"`
	HighSpeed         float64 `json:"highSpeed"`

	// Above FilterSpeed the derivative passes a first-order low-pass with this coefficient (0..1].
	FilterSpeed      float64 `json:"filterSpeed"`
	DerivativeFilter float64 `json:"derivativeFilter"`

	// Above SmoothingSpeed the output is the mean of the last SmoothingWindow outputs.
	SmoothingSpeed  float64 `json:"smoothingSpeed"`
	SmoothingWindow int     `json:"smoothingWindow"`

	MinAngle     float64 `json:"minAngle"`
	NeutralAngle float64 `json:"neutralAngle"`
	MaxAngle     float64 `json:"maxAngle"`

	// Allowed deflection from neutral shrinks linearly from MaxDeflection at
	// DerateStartSpeed to MinDeflection at DerateEndSpeed.
	MaxDeflection    float64 `json:"maxDeflection"`
	MinDeflection    float64 `json:"minDeflection"`
	DerateStartSpeed float64 `json:"derateStartSpeed"`
	DerateEndSpeed   float64 `json:"derateEndSpeed"`

	AutoTune AutoTuneConfig `json:"autoTune"`
}

type Output struct {
	Angle        float64
	Error        float64
	Band         int
	Gains        pid.Gains
	GainsChanged bool
	LineLost     bool
	Terms        pid.Terms
	Tuning       Decision
}

// Controller keeps the car over the line. Its derivative and integral are
// normalized by the elapsed time between updates.
type Controller struct {
	cfg      Config
	center   float64
	schedule *pid.Schedule
	band     int
	gains    pid.Gains
	state    pid.State

	derivative float64
	outputs    []float64
	nextOutput int
	lost       bool

	tuner *tuner
}

// NewController steers toward center, the position of a line right under the middle of the array.
func NewController(cfg Config, center float64) *Controller {
	schedule := pid.NewSchedule(cfg.Bands)
	return &Controller{
		cfg:      cfg,
		center:   center,
		schedule: schedule,
		gains:    schedule.Gains(0),
		state:    pid.NewState(cfg.MaxIntegral),
		outputs:  make([]float64, 0, max(cfg.SmoothingWindow, 1)),
		tuner:    newTuner(cfg.AutoTune),
	}
}

func (c *Controller) Center() float64 {
	return c.center
}

func (c *Controller) Band() int {
	return c.band
}

func (c *Controller) Gains() pid.Gains {
	return c.gains
}

func (c *Controller) Integral() float64 {
	return c.state.Integral
}

// BandGains returns the gains stored for a band, tuning included.
func (c *Controller) BandGains(band int) pid.Gains {
	return c.schedule.Gains(band)
}

// SetGains replaces the gains of every band. The change is seen by the next Update.
func (c *Controller) SetGains(gains pid.Gains) {
	c.schedule.Override(gains)
	c.gains = c.schedule.Gains(c.band)
}

// Reset clears the PID memory at the start or end of a run. Tuned gains are kept.
func (c *Controller) Reset() {
	c.state.Reset()
	c.derivative = 0
	c.outputs = c.outputs[:0]
	c.nextOutput = 0
	c.lost = false
	c.tuner.clear(time.Time{})
}

// MaxDeflection is the largest allowed distance from neutral at speed.
func (c *Controller) MaxDeflection(speed float64) float64 {
	speed = normalizeSpeed(speed)
	mechanical := min(c.cfg.NeutralAngle-c.cfg.MinAngle, c.cfg.MaxAngle-c.cfg.NeutralAngle)
	deflection := c.cfg.MaxDeflection
	switch {
	case speed <= c.cfg.DerateStartSpeed:
	case speed >= c.cfg.DerateEndSpeed:
		deflection = c.cfg.MinDeflection
	default:
		deflection = numeric.MapRange(speed,
			c.cfg.DerateStartSpeed, c.cfg.DerateEndSpeed,
			c.cfg.MaxDeflection, c.cfg.MinDeflection)
	}
	return numeric.Clamp(deflection, 0, max(mechanical, 0))
}

func normalizeSpeed(speed float64) float64 {
	if math.IsNaN(speed) {
		return 0
	}
	return math.Abs(speed)
}

func (c *Controller) Update(est position.Estimate, lastPosition float64, speed float64, now time.Time) Output {
	speed = normalizeSpeed(speed)
	out := Output{}
	if band := c.schedule.Select(speed); band != c.band {
		c.band = band
		c.gains = c.schedule.Gains(band)
		c.state.ResetIntegral()
		out.GainsChanged = true
	}
	deflection := c.MaxDeflection(speed)

	if !est.OnLine {
		if !c.lost {
			c.lost = true
			c.state.Reset()
			c.derivative = 0
		}
		out.LineLost = true
		out.Error = c.center - lastPosition
		if lastPosition < c.center {
			out.Angle = c.limit(c.cfg.NeutralAngle-deflection, deflection)
		} else {
			out.Angle = c.limit(c.cfg.NeutralAngle+deflection, deflection)
		}
		return c.finish(out)
	}
	c.lost = false

	err := numeric.Finite(c.center-est.Position, 0)
	deadband := c.cfg.Deadband
	if speed >= c.cfg.HighSpeed {
		deadband = c.cfg.HighSpeedDeadband
	}
	if math.Abs(err) <= deadband {
		err = 0
	}
	out.Error = err

	out.Terms = c.terms(err, speed, now)
	output := c.smooth(out.Terms.Sum(), speed)

	scale := max(c.center, 1)
	mapped := numeric.MapRange(numeric.Clamp(output, -scale, scale), -scale, scale, -deflection, deflection)
	out.Angle = c.limit(c.cfg.NeutralAngle-mapped, deflection)

	c.tuner.record(err)
	if decision, gains, ok := c.tuner.check(now, c.gains, c.schedule.Base(c.band)); ok {
		out.Tuning = decision
		if gains != c.gains {
			c.gains = gains
			c.schedule.Set(c.band, gains)
			out.GainsChanged = true
		}
	}
	return c.finish(out)
}

func (c *Controller) finish(out Output) Output {
	out.Band = c.band
	out.Gains = c.gains
	return out
}

func (c *Controller) terms(err float64, speed float64, now time.Time) pid.Terms {
	dt := c.state.Elapsed(now)
	terms := pid.Terms{P: c.gains.Kp * err}
	if dt > 0 {
		c.state.Accumulate(err * dt)
		raw := (err - c.state.PrevError) / dt
		if speed >= c.cfg.FilterSpeed && c.cfg.DerivativeFilter > 0 {
			c.derivative += c.cfg.DerivativeFilter * (raw - c.derivative)
		} else {
			c.derivative = raw
		}
		terms.D = c.gains.Kd * c.derivative
	}
	terms.I = c.gains.Ki * c.state.Integral
	c.state.PrevError = err
	c.state.LastUpdate = now
	return terms
}

func (c *Controller) smooth(output float64, speed float64) float64 {
	output = numeric.Finite(output, 0)
	window := cap(c.outputs)
	if len(c.outputs) < window {
		c.outputs = append(c.outputs, output)
	} else {
		c.outputs[c.nextOutput] = output
	}
	c.nextOutput = (c.nextOutput + 1) % window
	if speed < c.cfg.SmoothingSpeed {
		return output
	}
	var sum float64
	for _, v := range c.outputs {
		sum += v
	}
	return sum / float64(len(c.outputs))
}

func (c *Controller) limit(angle float64, deflection float64) float64 {
	angle = numeric.Finite(angle, c.cfg.NeutralAngle)
	angle = numeric.Clamp(angle, c.cfg.NeutralAngle-deflection, c.cfg.NeutralAngle+deflection)
	return numeric.Clamp(angle, c.cfg.MinAngle, c.cfg.MaxAngle)
}
