//go:build linux

package i2c

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	_I2C_TIMEOUT = 0x0702
	_I2C_RDWR    = 0x0707
	_I2C_M_RD    = 0x0001
)

type i2c_msg struct {
	addr      uint16
	flags     uint16
	len       uint16
	__padding uint16
	buf       uintptr
}

type i2c_rdwr_ioctl_data struct {
	msgs  uintptr
	nmsgs uint32
}

func Open(busNumber BusNumber) (*Bus, error) {
	path := fmt.Sprintf(DevicePath, busNumber)
	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	return &Bus{f: f}, nil
}

func (b *Bus) Close() error {
	return b.f.Close()
}

// SetTimeout bounds every transfer. The kernel counts in 10 ms units.
func (b *Bus) SetTimeout(timeout time.Duration) error {
	return unix.IoctlSetInt(int(b.f.Fd()), _I2C_TIMEOUT, int(max(timeout/(10*time.Millisecond), 1)))
}

func (b *Bus) ReadByte(address uint8, offset uint8) (uint8, error) {
	buf := []uint8{0}
	if err := b.read(address, offset, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *Bus) ReadWord(address uint8, offset uint8) (uint16, error) {
	buf := []uint8{0, 0}
	if err := b.read(address, offset, buf); err != nil {
		return 0, err
	}
	return decodeWord(buf), nil
}

func (b *Bus) WriteByte(address uint8, offset uint8, data uint8) error {
	return b.write(address, []uint8{offset, data})
}

func (b *Bus) WriteWord(address uint8, offset uint8, data uint16) error {
	return b.write(address, encodeWord(offset, data))
}

func (b *Bus) read(address uint8, offset uint8, buf []uint8) error {
	msg := []i2c_msg{
		{
			addr: uint16(address),
			len:  1,
			buf:  uintptr(unsafe.Pointer(&offset)),
		},
		{
			addr:  uint16(address),
			flags: _I2C_M_RD,
			len:   uint16(len(buf)),
			buf:   uintptr(unsafe.Pointer(&buf[0])),
		},
	}
	return b.transfer(msg)
}

func (b *Bus) write(address uint8, buf []uint8) error {
	msg := []i2c_msg{
		{
			addr: uint16(address),
			len:  uint16(len(buf)),
			buf:  uintptr(unsafe.Pointer(&buf[0])),
		},
	}
	return b.transfer(msg)
}

func (b *Bus) transfer(msgs []i2c_msg) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := i2c_rdwr_ioctl_data{
		msgs:  uintptr(unsafe.Pointer(&msgs[0])),
		nmsgs: uint32(len(msgs)),
	}
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		b.f.Fd(),
		uintptr(_I2C_RDWR),
		uintptr(unsafe.Pointer(&data)),
	)
	if errno != 0 {
		return errno
	}
	return nil
}
