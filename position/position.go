package position

import (
	"log"
	"math"

	"rabbitcar/linesensor"
)

type FilterConfig struct {
	Enabled       bool    `json:"enabled"`
	JumpThreshold float64 `json:"jumpThreshold"`
	MinActive     int     `json:"minActive"`
	MaxActive     int     `json:"maxActive"`
	MinSpan       int     `json:"minSpan"`
	MaxSpan       int     `json:"maxSpan"`
}

type Config struct {
	Sensors int          `json:"sensors"`
	Unit    float64      `json:"unit"`
	Filter  FilterConfig `json:"filter"`
}

type Estimate struct {
	Position float64
	OnLine   bool
	// Rejected is set when the frame saw the line but the validity filter refused it.
	Rejected bool
	Active   int
	Span     int
}

// Estimator turns sensor frames into a weighted-centroid line position and
// keeps the last accepted value while the line is lost or a frame is rejected.
type Estimator struct {
	cfg       Config
	lastValid float64
	accepted  bool
	rejected  uint64
}

func NewEstimator(cfg Config) *Estimator {
	e := &Estimator{cfg: cfg}
	e.Reset()
	return e
}

func (e *Estimator) Center() float64 {
	return float64(e.cfg.Sensors-1) * e.cfg.Unit / 2
}

func (e *Estimator) Max() float64 {
	return float64(e.cfg.Sensors-1) * e.cfg.Unit
}

func (e *Estimator) Reset() {
	e.lastValid = e.Center()
	e.accepted = false
}

func (e *Estimator) Last() float64 {
	return e.lastValid
}

// Rejections counts frames refused by the validity filter since construction.
func (e *Estimator) Rejections() uint64 {
	return e.rejected
}

// Active reports whether element i of frame sees the line. In white-line mode a set
// bit is the line; in black-line mode the reading is inverted.
func Active(frame linesensor.Frame, i int, whiteLine bool) bool {
	return frame[i] == whiteLine
}

// Centroid returns the weighted position of the active elements, the count and
// the span between the outermost active elements.
func Centroid(frame linesensor.Frame, whiteLine bool, unit float64) (position float64, active int, span int) {
	first, last := -1, -1
	var weighted float64
	for i := range frame {
		if !Active(frame, i, whiteLine) {
			continue
		}
		weighted += float64(i) * unit
		active++
		if first == -1 {
			first = i
		}
		last = i
	}
	if active == 0 {
		return 0, 0, 0
	}
	return weighted / float64(active), active, last - first + 1
}

func (e *Estimator) Update(frame linesensor.Frame, whiteLine bool) Estimate {
	position, active, span := Centroid(frame, whiteLine, e.cfg.Unit)
	if active == 0 {
		return Estimate{Position: e.lastValid}
	}
	estimate := Estimate{Position: position, OnLine: true, Active: active, Span: span}
	if !e.valid(position, active, span) {
		e.rejected++
		log.Printf("Line position rejected: position %.0f, last %.0f, active %d, span %d", position, e.lastValid, active, span)
		estimate.Position = e.lastValid
		estimate.Rejected = true
		return estimate
	}
	e.lastValid = position
	e.accepted = true
	return estimate
}

func (e *Estimator) valid(position float64, active int, span int) bool {
	f := e.cfg.Filter
	if !f.Enabled {
		return true
	}
	if e.accepted && f.JumpThreshold > 0 && math.Abs(position-e.lastValid) > f.JumpThreshold {
		return false
	}
	if f.MinActive > 0 && active < f.MinActive {
		return false
	}
	if f.MaxActive > 0 && active > f.MaxActive {
		return false
	}
	if f.MinSpan > 0 && span < f.MinSpan {
		return false
	}
	if f.MaxSpan > 0 && span > f.MaxSpan {
		return false
	}
	return true
}
