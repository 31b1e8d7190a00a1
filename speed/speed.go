package speed

import (
	"time"

	"rabbitcar/numeric"
	"rabbitcar/pid"
	"rabbitcar/units"
)

type Config struct {
	Gains           pid.Gains      `json:"gains"`
	MaxIntegral     float64        `json:"maxIntegral"`
	MaxAcceleration units.Duration `json:"maxAcceleration"` // largest pulse change per cycle
	MinPulse        units.Duration `json:"minPulse"`
	NeutralPulse    units.Duration `json:"neutralPulse"`
	MaxPulse        units.Duration `json:"maxPulse"`
}

// Controller drives the ESC pulse toward a target wheel speed. It assumes a
// fixed cycle: the derivative is the raw error difference between updates.
type Controller struct {
	cfg     Config
	gains   pid.Gains
	state   pid.State
	command float64 // microseconds
	last    pid.Terms
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		cfg:   cfg,
		gains: cfg.Gains.Sanitize(),
		state: pid.NewState(cfg.MaxIntegral),
	}
	c.Reset()
	return c
}

func microseconds(d units.Duration) float64 {
	return float64(time.Duration(d)) / float64(time.Microsecond)
}

func (c *Controller) Update(current, target float64) time.Duration {
	current = numeric.Finite(current, 0)
	target = numeric.Finite(target, 0)
	err := target - current

	c.state.Accumulate(err)
	derivative := err - c.state.PrevError
	c.state.PrevError = err

	c.last = pid.Terms{
		P: c.gains.Kp * err,
		I: c.gains.Ki * c.state.Integral,
		D: c.gains.Kd * derivative,
	}
	maxStep := microseconds(c.cfg.MaxAcceleration)
	adjustment := numeric.Clamp(c.last.Sum(), -maxStep, maxStep)
	c.command = numeric.Clamp(c.command+adjustment, microseconds(c.cfg.MinPulse), microseconds(c.cfg.MaxPulse))
	return c.Command()
}

// Reset zeroes the PID memory and returns the command to neutral.
func (c *Controller) Reset() {
	c.state.Reset()
	c.last = pid.Terms{}
	c.command = microseconds(c.cfg.NeutralPulse)
}

func (c *Controller) Command() time.Duration {
	return time.Duration(c.command * float64(time.Microsecond))
}

// SetGains takes effect on the next Update.
func (c *Controller) SetGains(gains pid.Gains) {
	c.gains = gains.Sanitize()
}

func (c *Controller) Gains() pid.Gains {
	return c.gains
}

func (c *Controller) Integral() float64 {
	return c.state.Integral
}

func (c *Controller) Terms() pid.Terms {
	return c.last
}
