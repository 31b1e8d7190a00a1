package linesensor

import (
	"errors"
	"fmt"
	"strings"
)

const ADDRESS_DEFAULT uint8 = 0x12
const REGISTER_DEFAULT uint8 = 0x30
const SENSORS_PER_MODULE = 8

var ErrNoData = errors.New("line sensor data not available")

// Bus is the part of an I2C bus the array needs; i2c.Bus satisfies it.
type Bus interface {
	ReadByte(address uint8, offset uint8) (uint8, error)
}

// Frame holds one raw reading per element, leftmost first.
type Frame []bool

func (f Frame) String() string {
	var b strings.Builder
	for _, v := range f {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// FrameFromByte unpacks an 8-channel module reading, most significant bit leftmost.
func FrameFromByte(data uint8) Frame {
	frame := make(Frame, SENSORS_PER_MODULE)
	for i := range frame {
		frame[i] = (data>>(SENSORS_PER_MODULE-1-i))&0x01 == 1
	}
	return frame
}

// Array chains one 8-channel line patrol module per bus, left to right.
type Array struct {
	buses    []Bus
	address  uint8
	register uint8
	last     Frame
}

func NewArray(address uint8, register uint8, buses ...Bus) *Array {
	return &Array{
		buses:    buses,
		address:  address,
		register: register,
		last:     make(Frame, SENSORS_PER_MODULE*len(buses)),
	}
}

func (a *Array) Size() int {
	return len(a.last)
}

// Read performs one bounded transaction per module. When any module fails the
// previous frame is returned together with an error wrapping ErrNoData.
func (a *Array) Read() (Frame, error) {
	frame := make(Frame, 0, len(a.last))
	for i, bus := range a.buses {
		data, err := bus.ReadByte(a.address, a.register)
		if err != nil {
			return a.Last(), fmt.Errorf("%w: module %d: %w", ErrNoData, i, err)
		}
		frame = append(frame, FrameFromByte(data)...)
	}
	a.last = frame
	return a.Last(), nil
}

func (a *Array) Last() Frame {
	frame := make(Frame, len(a.last))
	copy(frame, a.last)
	return frame
}
