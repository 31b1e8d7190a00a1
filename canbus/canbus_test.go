package canbus

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"

	"rabbitcar/telemetry"
)

type recordingWriter struct {
	mu     sync.Mutex
	frames []can.Frame
	closed bool
}

func (w *recordingWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, frame)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}

func TestEncodeData(t *testing.T) {
	frames := Encoder{BaseID: BASE_ID}.Encode(&telemetry.Data{
		Speed:         2.576,
		AverageSpeed:  1.5,
		Distance:      0.5152,
		SteeringAngle: 60,
		SteeringError: -5000,
		TargetSpeed:   3,
		LineLost:      true,
		Battery:       &telemetry.Battery{Percent: 87.4},
	})
	require.Len(t, frames, 2)

	run := frames[0]
	assert.Equal(t, uint32(0x300), run.ID)
	assert.Equal(t, uint8(8), run.Length)
	assert.Equal(t, uint16(258), binary.LittleEndian.Uint16(run.Data[0:]))
	assert.Equal(t, uint16(150), binary.LittleEndian.Uint16(run.Data[2:]))
	assert.Equal(t, uint32(52), binary.LittleEndian.Uint32(run.Data[4:]))

	steering := frames[1]
	assert.Equal(t, uint32(0x301), steering.ID)
	assert.Equal(t, uint16(6000), binary.LittleEndian.Uint16(steering.Data[0:]))
	assert.Equal(t, int16(-5000), int16(binary.LittleEndian.Uint16(steering.Data[2:])))
	assert.Equal(t, uint16(300), binary.LittleEndian.Uint16(steering.Data[4:]))
	assert.Equal(t, uint8(1), steering.Data[6])
	assert.Equal(t, uint8(87), steering.Data[7])
}

func TestEncodeSaturates(t *testing.T) {
	frames := Encoder{BaseID: BASE_ID}.Encode(&telemetry.Data{
		Speed:         -4,
		SteeringError: 1e9,
		Distance:      math.NaN(),
	})
	require.Len(t, frames, 2)
	assert.Zero(t, binary.LittleEndian.Uint16(frames[0].Data[0:]))
	assert.Zero(t, binary.LittleEndian.Uint32(frames[0].Data[4:]))
	assert.Equal(t, int16(math.MaxInt16), int16(binary.LittleEndian.Uint16(frames[1].Data[2:])))
}

func TestEncodePid(t *testing.T) {
	frames := Encoder{BaseID: 0x100}.Encode(&telemetry.Pid{Kp: 0.8, Ki: 0.05, Kd: 0.02, Band: 2})
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, uint32(0x102), f.ID)
	assert.Equal(t, uint8(7), f.Length)
	assert.Equal(t, uint16(800), binary.LittleEndian.Uint16(f.Data[0:]))
	assert.Equal(t, uint16(500), binary.LittleEndian.Uint16(f.Data[2:]))
	assert.Equal(t, uint16(200), binary.LittleEndian.Uint16(f.Data[4:]))
	assert.Equal(t, uint8(2), f.Data[6])
}

func TestEncodeIgnoresSummary(t *testing.T) {
	assert.Empty(t, Encoder{BaseID: BASE_ID}.Encode(&telemetry.Summary{RunID: "x"}))
}

func TestSinkTransmits(t *testing.T) {
	writer := &recordingWriter{}
	sink := NewSink(writer, BASE_ID, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()

	sink.Send(&telemetry.Data{Speed: 1})
	sink.Send(&telemetry.Pid{Kp: 1})
	require.Eventually(t, func() bool { return writer.count() == 3 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.True(t, writer.closed)
}

func TestSinkDropsWhenFull(t *testing.T) {
	sink := NewSink(&recordingWriter{}, BASE_ID, 1)
	sink.Send(&telemetry.Data{})
	assert.Equal(t, uint64(1), sink.Dropped())
}
