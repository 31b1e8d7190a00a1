package i2c

// original: https://gist.github.com/tetsu-koba/33b339d26ac9c730fb09773acf39eac5#file-i2c-go

import (
	"errors"
	"os"
	"sync"
)

type BusNumber int

const (
	Bus1 BusNumber = 1
	Bus2 BusNumber = 2
	Bus3 BusNumber = 3
	Bus4 BusNumber = 4
)

var ErrNotImplemented = errors.New("there is no implementation of i2c bus for this platform")

// Bus serializes transfers, so the line sensor array and the battery monitor may share one.
type Bus struct {
	mu sync.Mutex
	f  *os.File
}

var DevicePath = "/dev/i2c-%d"

func decodeWord(buf []uint8) uint16 {
	return (uint16(buf[0]) << 8) | uint16(buf[1])
}

func encodeWord(offset uint8, data uint16) []uint8 {
	return []uint8{offset, uint8(data >> 8), uint8(data)}
}
