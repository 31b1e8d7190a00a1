package ina219

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registers struct {
	values  map[uint8]uint16
	written map[uint8]uint16
	fail    bool
}

func newRegisters() *registers {
	return &registers{values: map[uint8]uint16{}, written: map[uint8]uint16{}}
}

func (r *registers) ReadWord(address uint8, offset uint8) (uint16, error) {
	if r.fail {
		return 0, errors.New("nack")
	}
	return r.values[offset], nil
}

func (r *registers) WriteWord(address uint8, offset uint8, data uint16) error {
	if r.fail {
		return errors.New("nack")
	}
	r.written[offset] = data
	return nil
}

func TestNewCalibrates(t *testing.T) {
	regs := newRegisters()
	_, err := New(regs, ADDRESS_DEFAULT)
	require.NoError(t, err)
	assert.Equal(t, uint16(4096), regs.written[_REG_CALIBRATION])
	assert.Equal(t, uint16(0x3EEF), regs.written[_REG_CONFIG])
}

func TestReadings(t *testing.T) {
	regs := newRegisters()
	chip, err := New(regs, ADDRESS_DEFAULT)
	require.NoError(t, err)

	regs.values[_REG_BUSVOLTAGE] = 3000 << 3
	regs.values[_REG_SHUNTVOLTAGE] = 0xFFFF - 99 // -100
	regs.values[_REG_CURRENT] = 0xFFFF - 4999    // -5000
	regs.values[_REG_POWER] = 250

	v, err := chip.ReadBusVoltage()
	require.NoError(t, err)
	assert.InDelta(t, 12.0, v, 1e-9)

	v, err = chip.ReadShuntVoltage()
	require.NoError(t, err)
	assert.InDelta(t, -0.001, v, 1e-12)

	v, err = chip.ReadCurrent()
	require.NoError(t, err)
	assert.InDelta(t, -0.5, v, 1e-9)

	v, err = chip.ReadPower()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-9)
}

func TestBusErrors(t *testing.T) {
	regs := newRegisters()
	regs.fail = true
	_, err := New(regs, ADDRESS_DEFAULT)
	assert.Error(t, err)

	chip := &INA219{bus: regs, address: ADDRESS_DEFAULT}
	_, err = chip.ReadCurrent()
	assert.Error(t, err)
}
