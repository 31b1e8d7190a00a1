package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"rabbitcar/battery"
	"rabbitcar/canbus"
	"rabbitcar/car"
	"rabbitcar/config"
	"rabbitcar/gpio"
	"rabbitcar/i2c"
	"rabbitcar/ina219"
	"rabbitcar/linesensor"
	"rabbitcar/link"
	"rabbitcar/odometry"
	"rabbitcar/position"
	"rabbitcar/pwm"
	"rabbitcar/speed"
	"rabbitcar/steering"
	"rabbitcar/streamer"
	"rabbitcar/telemetry"
	"rabbitcar/trace"
	"rabbitcar/vehicle"
)

const SHUTDOWN_TIMEOUT = 2 * time.Second

var configPath = flag.String("config", "rabbitcar.json", "path to the JSON configuration file")

type buses map[i2c.BusNumber]*i2c.Bus

func (b buses) open(number i2c.BusNumber, timeout time.Duration) *i2c.Bus {
	if bus, ok := b[number]; ok {
		return bus
	}
	bus, err := i2c.Open(number)
	if err != nil {
		log.Fatal("Could not open i2c bus ", number, ": ", err)
	}
	if err := bus.SetTimeout(timeout); err != nil {
		log.Print("Could not set i2c bus ", number, " timeout: ", err)
	}
	b[number] = bus
	return bus
}

func (b buses) close() {
	for _, bus := range b {
		bus.Close()
	}
}

func openOutput(output config.PWMOutput, initial time.Duration) *pwm.PWM {
	p, err := pwm.Open(output.Bus, output.Channel, vehicle.PWM_PERIOD, output.Polarity, initial)
	if err != nil {
		log.Fatal("Could not set up pwm ", output.Bus, output.Channel, ": ", err)
	}
	return p
}

// openIndicator returns nil when the pin is not configured or cannot be driven,
// so a missing light never stops the car.
func openIndicator(alias gpio.Alias) (car.Indicator, func()) {
	if alias == "" {
		return nil, func() {}
	}
	pin, err := gpio.Export(alias)
	if err != nil {
		log.Print("Could not export indicator ", alias, ": ", err)
		return nil, func() {}
	}
	if err := pin.SetDirection(gpio.OUT); err != nil {
		log.Print("Could not drive indicator ", alias, ": ", err)
		pin.Unexport()
		return nil, func() {}
	}
	return pin, func() {
		pin.SetValue(gpio.LOW)
		pin.Unexport()
	}
}

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Could not load config: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	i2cBuses := buses{}
	defer i2cBuses.close()
	lineBuses := make([]linesensor.Bus, 0, len(cfg.Sensor.Buses))
	for _, number := range cfg.Sensor.Buses {
		lineBuses = append(lineBuses, i2cBuses.open(number, time.Duration(cfg.Sensor.Timeout)))
	}
	sensors := linesensor.NewArray(cfg.Sensor.Address, cfg.Sensor.Register, lineBuses...)

	steeringOutput := openOutput(cfg.Vehicle.SteeringOutput, time.Duration(cfg.Vehicle.Steering.NeutralPulse))
	defer steeringOutput.Disable()
	motorOutput := openOutput(cfg.Vehicle.MotorOutput, time.Duration(cfg.Vehicle.Motor.NeutralPulse))
	defer motorOutput.Disable()
	v := vehicle.New(cfg.Vehicle.Calibration, steeringOutput, motorOutput)
	defer v.Reset()

	odometer := odometry.NewOdometer(cfg.Odometry.Config)
	hall, hallPin, err := odometry.OpenHallSensor(cfg.Odometry.HallPin, odometer)
	if err != nil {
		log.Fatal("Could not set up hall sensor on ", cfg.Odometry.HallPin, ": ", err)
	}
	defer hallPin.Unexport()
	go hall.Run(ctx)

	var sinks []telemetry.Sink
	if cfg.CAN.Enabled {
		writer, err := canbus.NewSocketCANWriter(ctx, cfg.CAN.Interface)
		if err != nil {
			log.Print("Could not open CAN interface ", cfg.CAN.Interface, ", CAN telemetry is off: ", err)
		} else {
			sink := canbus.NewSink(writer, cfg.CAN.BaseID, cfg.CAN.QueueSize)
			go sink.Run(ctx)
			sinks = append(sinks, sink)
		}
	}
	out := streamer.NewStreamer[[]byte](cfg.Telemetry.QueueSize)
	go out.Run()
	defer out.Stop()
	publisher := telemetry.NewPublisher(time.Duration(cfg.Telemetry.Interval), out, sinks...)

	connection, closeConnection := openIndicator(cfg.Indicators.Connection)
	defer closeConnection()
	lineColor, closeLineColor := openIndicator(cfg.Indicators.LineColor)
	defer closeLineColor()
	options := []car.Option{car.WithIndicators(connection, lineColor)}

	if cfg.Battery.Enabled {
		bus := i2cBuses.open(cfg.Battery.Bus, time.Duration(cfg.Sensor.Timeout))
		sensor, err := ina219.New(bus, cfg.Battery.Address)
		if err != nil {
			log.Print("Could not initialize battery sensor, battery status is off: ", err)
		} else {
			monitor := battery.NewMonitor(sensor, cfg.Battery.Cells)
			go monitor.Run(ctx, time.Duration(cfg.Battery.RefreshPeriod))
			options = append(options, car.WithBattery(monitor))
		}
	}

	estimator := position.NewEstimator(cfg.Position)
	mux := http.NewServeMux()
	if cfg.Trace.Enabled {
		recorder := trace.NewRecorder(cfg.Position.Sensors, estimator.Max(), cfg.Trace.History)
		options = append(options, car.WithTrace(recorder))
		mux.Handle(cfg.Server.TracePath, trace.Handler(recorder, time.Duration(cfg.Trace.Interval)))
	}

	c := car.New(cfg.Car, sensors, estimator, odometer,
		steering.NewController(cfg.Steering, estimator.Center()),
		speed.NewController(cfg.Speed),
		v, publisher, options...)

	mux.Handle(cfg.Server.ControlPath, link.NewServer(c, out, time.Duration(cfg.Server.ReadTimeout)))
	mux.Handle(cfg.Server.StatusPath, link.StatusHandler(c))
	server := &http.Server{Addr: cfg.Server.Address, Handler: mux}
	go func() {
		log.Print("Listening at ", cfg.Server.Address)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Print("Server error: ", err)
			stop()
		}
	}()

	c.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Print("Server shutdown error: ", err)
	}
}
