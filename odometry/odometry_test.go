package odometry

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitcar/units"
)

func newTestOdometer() *Odometer {
	return NewOdometer(Config{
		MagnetsCount:  8,
		WheelDiameter: 0.082,
		Interval:      units.Duration(200 * time.Millisecond),
	})
}

func TestSampleSixteenPulses(t *testing.T) {
	o := newTestOdometer()
	start := time.Unix(1000, 0)
	o.Start(start)
	for i := 0; i < 16; i++ {
		o.Pulse()
	}

	now := start.Add(200 * time.Millisecond)
	require.True(t, o.Due(now))
	r := o.Sample(now)

	assert.Equal(t, uint64(16), r.Pulses)
	assert.InDelta(t, 2*math.Pi*0.082, r.Delta, 1e-12)
	// two wheel revolutions: 16 / 8 * pi * 0.082 m
	assert.InDelta(t, 0.5152, r.Distance, 1e-4)
	assert.InDelta(t, 2.576, r.Speed, 1e-3)
	assert.InDelta(t, 2.576, r.AverageSpeed, 1e-3)
	assert.Equal(t, uint64(16), o.TotalPulses())
}

func TestSampleDrainsIntervalOnly(t *testing.T) {
	o := newTestOdometer()
	start := time.Unix(0, 0)
	o.Start(start)
	for i := 0; i < 8; i++ {
		o.Pulse()
	}
	o.Sample(start.Add(200 * time.Millisecond))
	r := o.Sample(start.Add(400 * time.Millisecond))

	assert.Equal(t, uint64(0), r.Pulses)
	assert.Zero(t, r.Speed)
	assert.InDelta(t, math.Pi*0.082, r.Distance, 1e-12)
	assert.InDelta(t, math.Pi*0.082/0.4, r.AverageSpeed, 1e-12)
	assert.Equal(t, uint64(8), o.TotalPulses())
}

func TestSampleWithZeroElapsed(t *testing.T) {
	o := newTestOdometer()
	start := time.Unix(50, 0)
	o.Start(start)
	o.Pulse()
	r := o.Sample(start)
	assert.Zero(t, r.Speed)
	assert.Zero(t, r.AverageSpeed)
	assert.False(t, math.IsNaN(r.Distance))
	assert.False(t, o.Due(start.Add(100*time.Millisecond)))
}

func TestStartClearsEverything(t *testing.T) {
	o := newTestOdometer()
	start := time.Unix(0, 0)
	o.Start(start)
	for i := 0; i < 4; i++ {
		o.Pulse()
	}
	o.Sample(start.Add(time.Second))

	restart := start.Add(2 * time.Second)
	o.Start(restart)
	assert.Equal(t, Reading{}, o.Reading())
	assert.Zero(t, o.TotalPulses())
	assert.Equal(t, restart, o.Origin())
}

func TestConcurrentPulses(t *testing.T) {
	o := newTestOdometer()
	start := time.Unix(0, 0)
	o.Start(start)

	var wg sync.WaitGroup
	var sampled uint64
	done := make(chan struct{})
	go func() {
		defer close(done)
		now := start
		for i := 0; i < 100; i++ {
			now = now.Add(time.Millisecond)
			sampled += o.Sample(now).Pulses
		}
	}()
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				o.Pulse()
			}
		}()
	}
	wg.Wait()
	<-done
	sampled += o.Sample(start.Add(time.Second)).Pulses

	assert.Equal(t, uint64(4000), sampled)
	assert.Equal(t, uint64(4000), o.TotalPulses())
}

type fakeEdges struct {
	edges int
}

func (f *fakeEdges) Poll(ctx context.Context, onEdge func()) error {
	for i := 0; i < f.edges; i++ {
		onEdge()
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHallSensorFeedsOdometer(t *testing.T) {
	o := newTestOdometer()
	o.Start(time.Unix(0, 0))
	hall := NewHallSensor(&fakeEdges{edges: 24}, o)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hall.Run(ctx)
		close(stopped)
	}()
	require.Eventually(t, func() bool { return o.TotalPulses() == 24 }, time.Second, time.Millisecond)
	cancel()
	<-stopped
}
