//go:build !linux

package i2c

import "time"

func Open(busNumber BusNumber) (*Bus, error) {
	return nil, ErrNotImplemented
}

func (b *Bus) Close() error {
	return ErrNotImplemented
}

func (b *Bus) SetTimeout(timeout time.Duration) error {
	return ErrNotImplemented
}

func (b *Bus) ReadByte(address uint8, offset uint8) (uint8, error) {
	return 0, ErrNotImplemented
}

func (b *Bus) ReadWord(address uint8, offset uint8) (uint16, error) {
	return 0, ErrNotImplemented
}

func (b *Bus) WriteByte(address uint8, offset uint8, data uint8) error {
	return ErrNotImplemented
}

func (b *Bus) WriteWord(address uint8, offset uint8, data uint16) error {
	return ErrNotImplemented
}
