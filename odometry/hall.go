package odometry

import (
	"context"
	"log"

	"rabbitcar/gpio"
)

// EdgeSource blocks delivering input edges until ctx is done; gpio.Gpio satisfies it.
type EdgeSource interface {
	Poll(ctx context.Context, onEdge func()) error
}

type HallSensor struct {
	source   EdgeSource
	odometer *Odometer
}

func NewHallSensor(source EdgeSource, odometer *Odometer) *HallSensor {
	return &HallSensor{source: source, odometer: odometer}
}

// OpenHallSensor exports the pin and arms falling-edge detection, as the magnet
// pulls the sensor output low.
func OpenHallSensor(alias gpio.Alias, odometer *Odometer) (*HallSensor, *gpio.Gpio, error) {
	pin, err := gpio.Export(alias)
	if err != nil {
		return nil, nil, err
	}
	if err := pin.SetDirection(gpio.IN); err != nil {
		pin.Unexport()
		return nil, nil, err
	}
	if err := pin.SetEdge(gpio.FALLING); err != nil {
		pin.Unexport()
		return nil, nil, err
	}
	return NewHallSensor(pin, odometer), pin, nil
}

func (h *HallSensor) Run(ctx context.Context) {
	log.Print("Hall sensor started")
	if err := h.source.Poll(ctx, h.odometer.Pulse); err != nil && ctx.Err() == nil {
		log.Print("Hall sensor poll error: ", err)
	}
	log.Print("Hall sensor stopped")
}
