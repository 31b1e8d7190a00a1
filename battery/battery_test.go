package battery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensor struct {
	mu      sync.Mutex
	bus     float64
	shunt   float64
	current float64
	power   float64
	err     error
	reads   int
}

func (f *fakeSensor) ReadShuntVoltage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.shunt, f.err
}

func (f *fakeSensor) ReadBusVoltage() (float64, error) { return f.bus, nil }
func (f *fakeSensor) ReadCurrent() (float64, error)    { return f.current, nil }
func (f *fakeSensor) ReadPower() (float64, error)      { return f.power, nil }

func (f *fakeSensor) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func TestChargePercents(t *testing.T) {
	assert.Equal(t, 0.0, ChargePercents(3.2, -1))
	assert.InDelta(t, 50.0, ChargePercents(3.75, -1), 1e-9)
	assert.Equal(t, 100.0, ChargePercents(4.05, -1))
	assert.InDelta(t, 50.0, ChargePercents(3.8, 0.5), 1e-9)
	assert.Equal(t, 100.0, ChargePercents(4.2, 0.5))
}

func TestRefresh(t *testing.T) {
	sensor := &fakeSensor{bus: 11.2, shunt: -0.05, current: -0.8, power: 9}
	m := NewMonitor(sensor, 3)

	_, ok := m.Status()
	assert.False(t, ok)

	now := time.Unix(50, 0)
	require.NoError(t, m.Refresh(now))
	status, ok := m.Status()
	require.True(t, ok)
	assert.InDelta(t, 11.25, status.BatteryVoltage, 1e-9)
	assert.InDelta(t, 3.75, status.CellVoltage, 1e-9)
	assert.InDelta(t, 50.0, status.ChargePercents, 1e-9)
	assert.Equal(t, now, status.UpdatedAt)

	sensor.err = errors.New("nack")
	assert.Error(t, m.Refresh(now.Add(time.Second)))
	kept, ok := m.Status()
	assert.True(t, ok)
	assert.Equal(t, status, kept)
}

func TestRunStopsOnCancel(t *testing.T) {
	sensor := &fakeSensor{bus: 12}
	m := NewMonitor(sensor, 3)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return sensor.readCount() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
