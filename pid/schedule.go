package pid

import (
	"math"
	"slices"
)

// Band applies to speeds strictly below Below. A Below of zero or less marks the
// open-ended top band; the highest band catches every faster speed anyway.
type Band struct {
	Below float64 `json:"below"`
	Gains Gains   `json:"gains"`
}

type Schedule struct {
	bands []Band
	base  []Gains
}

func NewSchedule(bands []Band) *Schedule {
	sorted := slices.Clone(bands)
	if len(sorted) == 0 {
		sorted = []Band{{Below: math.Inf(1)}}
	}
	for i := range sorted {
		if sorted[i].Below <= 0 {
			sorted[i].Below = math.Inf(1)
		}
	}
	slices.SortStableFunc(sorted, func(a, b Band) int {
		switch {
		case a.Below < b.Below:
			return -1
		case a.Below > b.Below:
			return 1
		}
		return 0
	})
	base := make([]Gains, len(sorted))
	for i := range sorted {
		sorted[i].Gains = sorted[i].Gains.Sanitize()
		base[i] = sorted[i].Gains
	}
	return &Schedule{bands: sorted, base: base}
}

func (s *Schedule) Len() int {
	return len(s.bands)
}

// Select returns the band index for speed. Negative speeds use their magnitude, NaN selects band 0.
func (s *Schedule) Select(speed float64) int {
	speed = math.Abs(speed)
	if math.IsNaN(speed) {
		return 0
	}
	last := len(s.bands) - 1
	for i := 0; i < last; i++ {
		if speed < s.bands[i].Below {
			return i
		}
	}
	return last
}

func (s *Schedule) Gains(band int) Gains {
	return s.bands[s.clampBand(band)].Gains
}

// Base returns the gains a band was configured with, before any tuning.
func (s *Schedule) Base(band int) Gains {
	return s.base[s.clampBand(band)]
}

func (s *Schedule) Set(band int, gains Gains) {
	s.bands[s.clampBand(band)].Gains = gains.Sanitize()
}

// Override replaces every band, tuned and base gains alike.
func (s *Schedule) Override(gains Gains) {
	gains = gains.Sanitize()
	for i := range s.bands {
		s.bands[i].Gains = gains
		s.base[i] = gains
	}
}

func (s *Schedule) clampBand(band int) int {
	return max(0, min(band, len(s.bands)-1))
}
