package battery

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"rabbitcar/numeric"
)

// Negative ShuntVoltage and Current mean the battery is discharging.
type Status struct {
	BusVoltage     float64   `json:"busVoltage"`
	ShuntVoltage   float64   `json:"shuntVoltage"`
	BatteryVoltage float64   `json:"batteryVoltage"`
	CellVoltage    float64   `json:"cellVoltage"`
	Current        float64   `json:"current"`
	Power          float64   `json:"power"`
	ChargePercents float64   `json:"chargePercents"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Sensor interface {
	ReadShuntVoltage() (float64, error)
	ReadBusVoltage() (float64, error)
	ReadCurrent() (float64, error)
	ReadPower() (float64, error)
}

type Monitor struct {
	mu     sync.RWMutex
	sensor Sensor
	cells  int
	status Status
	valid  bool
}

func NewMonitor(sensor Sensor, cells int) *Monitor {
	return &Monitor{
		sensor: sensor,
		cells:  max(cells, 1),
	}
}

// ChargePercents estimates the charge of one 18650 Li-Ion cell: 3.5 V is empty,
// 4.0 V is full under load and 4.1 V is full while charging.
func ChargePercents(cellVoltage float64, current float64) float64 {
	span := 0.5
	if current > 0 {
		span = 0.6
	}
	return numeric.Clamp((cellVoltage-3.5)/span*100, 0, 100)
}

// Refresh reads the sensor once. A failed read keeps the previous status.
func (m *Monitor) Refresh(now time.Time) error {
	shuntVoltage, err := m.sensor.ReadShuntVoltage()
	if err != nil {
		return fmt.Errorf("could not read shunt voltage: %w", err)
	}
	busVoltage, err := m.sensor.ReadBusVoltage()
	if err != nil {
		return fmt.Errorf("could not read bus voltage: %w", err)
	}
	current, err := m.sensor.ReadCurrent()
	if err != nil {
		return fmt.Errorf("could not read current: %w", err)
	}
	power, err := m.sensor.ReadPower()
	if err != nil {
		return fmt.Errorf("could not read power: %w", err)
	}
	batteryVoltage := busVoltage - shuntVoltage
	cellVoltage := batteryVoltage / float64(m.cells)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = Status{
		BusVoltage:     busVoltage,
		ShuntVoltage:   shuntVoltage,
		BatteryVoltage: batteryVoltage,
		CellVoltage:    cellVoltage,
		Current:        current,
		Power:          power,
		ChargePercents: ChargePercents(cellVoltage, current),
		UpdatedAt:      now,
	}
	m.valid = true
	return nil
}

func (m *Monitor) Run(ctx context.Context, refreshPeriod time.Duration) {
	ticker := time.NewTicker(refreshPeriod)
	defer ticker.Stop()
	for {
		if err := m.Refresh(time.Now()); err != nil {
			log.Print("Battery monitor: ", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Status returns the last good reading and whether there has been one.
func (m *Monitor) Status() (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.valid
}
