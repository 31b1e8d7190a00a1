package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rabbitcar/gpio"
	"rabbitcar/i2c"
	"rabbitcar/pid"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rabbitcar.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20*time.Millisecond, time.Duration(cfg.Car.Cycle))
	assert.Equal(t, 200*time.Millisecond, time.Duration(cfg.Odometry.Interval))
	assert.Equal(t, 100*time.Millisecond, time.Duration(cfg.Telemetry.Interval))
	assert.InDelta(t, 0.082, cfg.Odometry.WheelDiameter, 1e-12)
	assert.Equal(t, 16, cfg.Position.Sensors)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"address": ":8080"},
		"car": {"cycle": "10ms"},
		"odometry": {"magnetsCount": 4, "hallPin": "P9_12"},
		"speed": {"gains": {"kp": 4, "ki": 0, "kd": 1}},
		"battery": {"enabled": false},
		"sensor": {"buses": [2], "timeout": 0.02},
		"position": {"sensors": 8}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/control", cfg.Server.ControlPath)
	assert.Equal(t, 10*time.Millisecond, time.Duration(cfg.Car.Cycle))
	assert.Equal(t, 4, cfg.Odometry.MagnetsCount)
	assert.InDelta(t, 0.082, cfg.Odometry.WheelDiameter, 1e-12)
	assert.Equal(t, gpio.P9_12, cfg.Odometry.HallPin)
	assert.Equal(t, pid.Gains{Kp: 4, Kd: 1}, cfg.Speed.Gains)
	assert.False(t, cfg.Battery.Enabled)
	assert.Equal(t, 2, cfg.Battery.Cells)
	assert.Equal(t, []i2c.BusNumber{i2c.Bus2}, cfg.Sensor.Buses)
	assert.Equal(t, 20*time.Millisecond, time.Duration(cfg.Sensor.Timeout))
	assert.Equal(t, 1000.0, cfg.Position.Unit)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", `{"car": `},
		{"zero cycle", `{"car": {"cycle": 0}}`},
		{"sensor count mismatch", `{"position": {"sensors": 24}}`},
		{"inverted steering", `{"vehicle": {"steering": {"minAngle": 140}}}`},
		{"bad duration", `{"odometry": {"interval": "soon"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
