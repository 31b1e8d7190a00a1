package pid

import (
	"time"

	"rabbitcar/numeric"
)

// Gains is always replaced as a whole so a control cycle never sees a half-updated triple.
type Gains struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

func (g Gains) Scale(kp, ki, kd float64) Gains {
	return Gains{Kp: g.Kp * kp, Ki: g.Ki * ki, Kd: g.Kd * kd}
}

// Limit clamps every gain into [0, ceiling] of the matching ceiling gain.
func (g Gains) Limit(ceiling Gains) Gains {
	return Gains{
		Kp: numeric.Clamp(g.Kp, 0, ceiling.Kp),
		Ki: numeric.Clamp(g.Ki, 0, ceiling.Ki),
		Kd: numeric.Clamp(g.Kd, 0, ceiling.Kd),
	}
}

// Sanitize drops NaN and negative gains.
func (g Gains) Sanitize() Gains {
	return Gains{
		Kp: max(numeric.Finite(g.Kp, 0), 0),
		Ki: max(numeric.Finite(g.Ki, 0), 0),
		Kd: max(numeric.Finite(g.Kd, 0), 0),
	}
}

type Terms struct {
	P float64
	I float64
	D float64
}

func (t Terms) Sum() float64 {
	return t.P + t.I + t.D
}

// State is the per-controller memory. The integral is kept inside
// [-MaxIntegral, MaxIntegral] by every mutation.
type State struct {
	MaxIntegral float64
	Integral    float64
	PrevError   float64
	LastUpdate  time.Time
}

func NewState(maxIntegral float64) State {
	return State{MaxIntegral: maxIntegral}
}

func (s *State) Reset() {
	*s = State{MaxIntegral: s.MaxIntegral}
}

func (s *State) ResetIntegral() {
	s.Integral = 0
}

func (s *State) Accumulate(value float64) {
	s.Integral = numeric.Clamp(s.Integral+value, -s.MaxIntegral, s.MaxIntegral)
}

// Elapsed returns seconds since the previous timed update, or 0 when there was none.
func (s *State) Elapsed(now time.Time) float64 {
	if s.LastUpdate.IsZero() || !now.After(s.LastUpdate) {
		return 0
	}
	return now.Sub(s.LastUpdate).Seconds()
}
