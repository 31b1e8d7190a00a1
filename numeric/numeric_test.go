package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(7, 0, 5))
	assert.Equal(t, 0, Clamp(-3, 0, 5))
	assert.Equal(t, 2.5, Clamp(2.5, 0.0, 5.0))
}

func TestMapRange(t *testing.T) {
	assert.InDelta(t, 1500.0, MapRange(90, 0, 180, 1000, 2000), 1e-9)
	assert.InDelta(t, 1250.0, MapRange(45, 0, 180, 1000, 2000), 1e-9)
	assert.Equal(t, 7.0, MapRange(3, 1, 1, 7, 9))
}

func TestMapThroughNeutral(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"low end", -100, 1000},
		{"below low clamps", -250, 1000},
		{"neutral", 0, 1500},
		{"half forward", 50, 1750},
		{"above high clamps", 400, 2000},
		{"nan is neutral", math.NaN(), 1500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapThroughNeutral(tt.value, -100, 0, 100, 1000, 1500, 2000)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestFinite(t *testing.T) {
	assert.Equal(t, 0.0, Finite(math.Inf(1), 0))
	assert.Equal(t, 3.0, Finite(3, 0))
}
