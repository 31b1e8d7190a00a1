package steering

import (
	"log"
	"math"
	"time"

	"rabbitcar/pid"
	"rabbitcar/units"
)

type AutoTuneConfig struct {
	Enabled  bool           `json:"enabled"`
	Interval units.Duration `json:"interval"`
	Window   int            `json:"window"`

	SignChanges int     `json:"signChanges"`
	PeakError   float64 `json:"peakError"`
	StableError float64 `json:"stableError"`

	DecreaseP float64 `json:"decreaseP"`
	DecreaseI float64 `json:"decreaseI"`
	DecreaseD float64 `json:"decreaseD"`
	Increase  float64 `json:"increase"`
	// Ceiling caps increases as a multiple of the band's configured gains.
	Ceiling float64 `json:"ceiling"`
}

type Decision string

const (
	DecisionNone    Decision = ""
	DecisionDamp    Decision = "damp"
	DecisionSharpen Decision = "sharpen"
	DecisionHold    Decision = "hold"
	DecisionTooFew  Decision = "insufficient"
)

type WindowStats struct {
	Samples     int
	SignChanges int
	Peak        float64
	MeanAbs     float64
}

type tuner struct {
	cfg       AutoTuneConfig
	errors    []float64
	next      int
	lastCheck time.Time
}

func newTuner(cfg AutoTuneConfig) *tuner {
	return &tuner{
		cfg:    cfg,
		errors: make([]float64, 0, max(cfg.Window, 1)),
	}
}

func (t *tuner) clear(now time.Time) {
	t.errors = t.errors[:0]
	t.next = 0
	t.lastCheck = now
}

func (t *tuner) record(err float64) {
	if !t.cfg.Enabled {
		return
	}
	if len(t.errors) < cap(t.errors) {
		t.errors = append(t.errors, err)
	} else {
		t.errors[t.next] = err
	}
	t.next = (t.next + 1) % cap(t.errors)
}

// chronological returns the window oldest first.
func (t *tuner) chronological() []float64 {
	if len(t.errors) < cap(t.errors) {
		return t.errors
	}
	ordered := make([]float64, 0, len(t.errors))
	ordered = append(ordered, t.errors[t.next:]...)
	return append(ordered, t.errors[:t.next]...)
}

func analyze(errors []float64) WindowStats {
	stats := WindowStats{Samples: len(errors)}
	previous := 0.0
	var sum float64
	for _, e := range errors {
		magnitude := math.Abs(e)
		sum += magnitude
		stats.Peak = max(stats.Peak, magnitude)
		if e == 0 {
			continue
		}
		if previous != 0 && (e > 0) != (previous > 0) {
			stats.SignChanges++
		}
		previous = e
	}
	if stats.Samples > 0 {
		stats.MeanAbs = sum / float64(stats.Samples)
	}
	return stats
}

// check runs at most once per interval. ok reports that an evaluation happened;
// the returned gains are what the band should use from the next cycle on.
func (t *tuner) check(now time.Time, gains pid.Gains, base pid.Gains) (Decision, pid.Gains, bool) {
	if !t.cfg.Enabled {
		return DecisionNone, gains, false
	}
	if t.lastCheck.IsZero() {
		t.lastCheck = now
		return DecisionNone, gains, false
	}
	if now.Sub(t.lastCheck) < time.Duration(t.cfg.Interval) {
		return DecisionNone, gains, false
	}
	stats := analyze(t.chronological())
	t.clear(now)

	decision, tuned := t.decide(stats, gains, base)
	if decision == DecisionDamp || (decision == DecisionSharpen && tuned != gains) {
		log.Printf("Steering auto-tune %s: sign changes %d, peak %.0f, mean %.0f, kp %.4f ki %.5f kd %.4f -> kp %.4f ki %.5f kd %.4f",
			decision, stats.SignChanges, stats.Peak, stats.MeanAbs,
			gains.Kp, gains.Ki, gains.Kd, tuned.Kp, tuned.Ki, tuned.Kd)
	}
	return decision, tuned, true
}

func (t *tuner) decide(stats WindowStats, gains pid.Gains, base pid.Gains) (Decision, pid.Gains) {
	if stats.Samples < cap(t.errors)/2 || stats.Samples == 0 {
		return DecisionTooFew, gains
	}
	if stats.SignChanges > t.cfg.SignChanges && stats.Peak > t.cfg.PeakError {
		return DecisionDamp, gains.Scale(t.cfg.DecreaseP, t.cfg.DecreaseI, t.cfg.DecreaseD)
	}
	if stats.MeanAbs < t.cfg.StableError {
		ceiling := base.Scale(t.cfg.Ceiling, t.cfg.Ceiling, t.cfg.Ceiling)
		sharpened := gains.Scale(t.cfg.Increase, 1, t.cfg.Increase)
		sharpened.Kp = min(sharpened.Kp, max(ceiling.Kp, gains.Kp))
		sharpened.Kd = min(sharpened.Kd, max(ceiling.Kd, gains.Kd))
		return DecisionSharpen, sharpened
	}
	return DecisionHold, gains
}
