package canbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net"
	"sync/atomic"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"

	"rabbitcar/telemetry"
)

// Frame layout, all little-endian, offsets from the configured base ID:
//
//	+0 run:      speed cm/s u16, average speed cm/s u16, distance cm u32
//	+1 steering: angle centidegrees u16, error i16, target speed cm/s u16, line lost u8, battery % u8
//	+2 gains:    kp x1000 u16, ki x10000 u16, kd x10000 u16, band u8
const (
	RUN_FRAME      = 0
	STEERING_FRAME = 1
	GAINS_FRAME    = 2
	BASE_ID        = 0x300
)

type Writer interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial: %w", err)
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	return w.tx.TransmitFrame(ctx, frame)
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

type Encoder struct {
	BaseID uint32
}

func scaled(value float64, factor float64, low float64, high float64) float64 {
	raw := math.Round(value * factor)
	if math.IsNaN(raw) {
		return 0
	}
	return math.Max(low, math.Min(high, raw))
}

func u16(value float64, factor float64) uint16 {
	return uint16(scaled(value, factor, 0, math.MaxUint16))
}

func frame(id uint32, payload []byte) can.Frame {
	f := can.Frame{ID: id, Length: uint8(len(payload))}
	copy(f.Data[:], payload)
	return f
}

// Encode maps a telemetry message to its frames. Messages without a CAN layout yield none.
func (e Encoder) Encode(msg telemetry.Message) []can.Frame {
	switch m := msg.(type) {
	case *telemetry.Data:
		run := make([]byte, 8)
		binary.LittleEndian.PutUint16(run[0:], u16(m.Speed, 100))
		binary.LittleEndian.PutUint16(run[2:], u16(m.AverageSpeed, 100))
		binary.LittleEndian.PutUint32(run[4:], uint32(scaled(m.Distance, 100, 0, math.MaxUint32)))

		steering := make([]byte, 8)
		binary.LittleEndian.PutUint16(steering[0:], u16(m.SteeringAngle, 100))
		binary.LittleEndian.PutUint16(steering[2:], uint16(int16(scaled(m.SteeringError, 1, math.MinInt16, math.MaxInt16))))
		binary.LittleEndian.PutUint16(steering[4:], u16(m.TargetSpeed, 100))
		if m.LineLost {
			steering[6] = 1
		}
		if m.Battery != nil {
			steering[7] = uint8(scaled(m.Battery.Percent, 1, 0, 100))
		}
		return []can.Frame{
			frame(e.BaseID+RUN_FRAME, run),
			frame(e.BaseID+STEERING_FRAME, steering),
		}
	case *telemetry.Pid:
		gains := make([]byte, 7)
		binary.LittleEndian.PutUint16(gains[0:], u16(m.Kp, 1000))
		binary.LittleEndian.PutUint16(gains[2:], u16(m.Ki, 10000))
		binary.LittleEndian.PutUint16(gains[4:], u16(m.Kd, 10000))
		gains[6] = uint8(scaled(float64(m.Band), 1, 0, math.MaxUint8))
		return []can.Frame{frame(e.BaseID+GAINS_FRAME, gains)}
	}
	return nil
}

// Sink is a telemetry.Sink that transmits on a CAN bus from its own goroutine.
// Frames are dropped while the queue is full.
type Sink struct {
	encoder Encoder
	writer  Writer
	queue   chan can.Frame
	dropped atomic.Uint64
}

func NewSink(writer Writer, baseID uint32, queueSize int) *Sink {
	return &Sink{
		encoder: Encoder{BaseID: baseID},
		writer:  writer,
		queue:   make(chan can.Frame, queueSize),
	}
}

func (s *Sink) Send(msg telemetry.Message) {
	for _, f := range s.encoder.Encode(msg) {
		select {
		case s.queue <- f:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Sink) Run(ctx context.Context) {
	defer s.writer.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.queue:
			if err := f.Validate(); err != nil {
				log.Print("Invalid CAN frame: ", err)
				continue
			}
			if err := s.writer.WriteFrame(ctx, f); err != nil && ctx.Err() == nil {
				log.Printf("Could not write CAN frame 0x%X: %v", f.ID, err)
			}
		}
	}
}
