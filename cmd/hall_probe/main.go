package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"rabbitcar/config"
	"rabbitcar/gpio"
	"rabbitcar/odometry"
)

var configPath = flag.String("config", "rabbitcar.json", "path to the JSON configuration file")

// Spin the wheel by hand: the connection indicator toggles on every magnet and
// the measured speed is printed once per odometry interval.
func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Could not load config: ", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	led, err := gpio.Export(cfg.Indicators.Connection)
	if err != nil {
		fmt.Println("Can not export ", cfg.Indicators.Connection, ": ", err)
		return
	}
	defer led.Unexport()
	led.SetDirection(gpio.OUT)
	defer led.SetDirection(gpio.IN)

	button, err := gpio.Export(cfg.Odometry.HallPin)
	if err != nil {
		fmt.Println("Can not export ", cfg.Odometry.HallPin, ": ", err)
		return
	}
	defer button.Unexport()
	button.SetDirection(gpio.IN)
	button.SetEdge(gpio.FALLING)
	defer button.SetEdge(gpio.NONE)

	odometer := odometry.NewOdometer(cfg.Odometry.Config)
	forwarder := &pulseForwarder{odometer: odometer, pulses: make(chan struct{}, 1)}
	go func() {
		if err := button.Poll(ctx, forwarder.pulse); err != nil && ctx.Err() == nil {
			fmt.Println("Poll error: ", err)
		}
		stop()
	}()

	odometer.Start(time.Now())
	ticker := time.NewTicker(time.Duration(cfg.Odometry.Interval))
	defer ticker.Stop()
	ledStates := [...]gpio.Value{gpio.HIGH, gpio.LOW}
	ledStateIndx := 0

	fmt.Printf("Waiting for pulses, wheel circumference %.3f m\n", odometer.Circumference())
	for {
		select {
		case <-ctx.Done():
			led.SetValue(gpio.LOW)
			reading := odometer.Sample(time.Now())
			fmt.Printf("Total: %d pulses, %.3f m\n", odometer.TotalPulses(), reading.Distance)
			return
		case <-forwarder.pulses:
			led.SetValue(ledStates[ledStateIndx])
			ledStateIndx = (ledStateIndx + 1) % len(ledStates)
		case now := <-ticker.C:
			reading := odometer.Sample(now)
			if reading.Pulses > 0 {
				fmt.Printf("%d pulses, %.2f m/s, %.3f m\n", reading.Pulses, reading.Speed, reading.Distance)
			}
		}
	}
}

type pulseForwarder struct {
	odometer *odometry.Odometer
	pulses   chan struct{}
}

func (f *pulseForwarder) pulse() {
	f.odometer.Pulse()
	select {
	case f.pulses <- struct{}{}:
	default:
	}
}
