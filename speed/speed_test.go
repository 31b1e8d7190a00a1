package speed

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rabbitcar/pid"
	"rabbitcar/units"
)

func us(n float64) units.Duration {
	return units.Duration(n * float64(time.Microsecond))
}

func testConfig() Config {
	return Config{
		Gains:           pid.Gains{Kp: 1, Ki: 0, Kd: 0.3},
		MaxIntegral:     20,
		MaxAcceleration: us(20),
		MinPulse:        us(1000),
		NeutralPulse:    us(1500),
		MaxPulse:        us(2000),
	}
}

func TestStartsAtNeutral(t *testing.T) {
	c := NewController(testConfig())
	assert.Equal(t, 1500*time.Microsecond, c.Command())
}

func TestFirstUpdate(t *testing.T) {
	c := NewController(testConfig())
	// error 3: P = 3, D = 0.3 * 3 = 0.9
	got := c.Update(0, 3)
	assert.InDelta(t, float64(1503900*time.Nanosecond), float64(got), 1)
	assert.InDelta(t, 3.0, c.Terms().P, 1e-9)
	assert.InDelta(t, 0.9, c.Terms().D, 1e-9)
}

func TestAccelerationLimited(t *testing.T) {
	c := NewController(testConfig())
	prev := c.Command()
	for i := 0; i < 10; i++ {
		cmd := c.Update(0, 500)
		assert.LessOrEqual(t, cmd-prev, 20*time.Microsecond)
		prev = cmd
	}
	assert.Equal(t, 1700*time.Microsecond, c.Command())
}

func TestCommandClampedToPulseRange(t *testing.T) {
	c := NewController(testConfig())
	for i := 0; i < 200; i++ {
		c.Update(0, 1000)
	}
	assert.Equal(t, 2000*time.Microsecond, c.Command())
	for i := 0; i < 200; i++ {
		c.Update(1000, 0)
	}
	assert.Equal(t, 1000*time.Microsecond, c.Command())
}

func TestIntegralWindupBound(t *testing.T) {
	cfg := testConfig()
	cfg.Gains.Ki = 0.5
	c := NewController(cfg)
	for _, n := range []int{1, 10, 100, 10000} {
		c.Reset()
		for i := 0; i < n; i++ {
			c.Update(0, 2.5)
			assert.LessOrEqual(t, math.Abs(c.Integral()), 20.0)
		}
	}
	assert.Equal(t, 20.0, c.Integral())
}

func TestResetThenZeroErrorIsNeutral(t *testing.T) {
	c := NewController(testConfig())
	for i := 0; i < 50; i++ {
		c.Update(1, 4)
	}
	c.Reset()
	assert.Equal(t, 1500*time.Microsecond, c.Update(2, 2))
	assert.Zero(t, c.Integral())
}

func TestSetGainsAppliesNextUpdate(t *testing.T) {
	c := NewController(testConfig())
	c.SetGains(pid.Gains{Kp: 2, Ki: -1})
	assert.Equal(t, pid.Gains{Kp: 2}, c.Gains())
	c.Update(0, 1)
	assert.Equal(t, 1502*time.Microsecond, c.Command())
}

func TestNaNInputsTreatedAsZero(t *testing.T) {
	c := NewController(testConfig())
	assert.Equal(t, 1500*time.Microsecond, c.Update(math.NaN(), math.NaN()))
}
