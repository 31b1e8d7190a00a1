package pwm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func read(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSetupWritesSequence(t *testing.T) {
	dir := t.TempDir()
	p, err := newPWM(dir).Setup(20*time.Millisecond, PolarityInversed, 1500*time.Microsecond)
	require.NoError(t, err)

	assert.Equal(t, "20000000", read(t, filepath.Join(dir, "period")))
	assert.Equal(t, "1500000", read(t, filepath.Join(dir, "duty_cycle")))
	assert.Equal(t, "inversed", read(t, filepath.Join(dir, "polarity")))
	assert.Equal(t, "1", read(t, filepath.Join(dir, "enable")))

	require.NoError(t, p.Disable())
	assert.Equal(t, "0", read(t, filepath.Join(dir, "enable")))
}

func TestSetupFailsOnMissingDevice(t *testing.T) {
	_, err := newPWM(filepath.Join(t.TempDir(), "missing")).Setup(time.Millisecond, PolarityNormal, 0)
	assert.ErrorContains(t, err, "could not set pwm period")
}

func TestNewPWMPaths(t *testing.T) {
	p := NewPWM(Bus1, ChannelB)
	assert.Equal(t, "/dev/bone/pwm/1/b/duty_cycle", p.dutyCycle)
}
