package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rabbitcar/config"
	"rabbitcar/i2c"
	"rabbitcar/linesensor"
	"rabbitcar/position"
)

var configPath = flag.String("config", "rabbitcar.json", "path to the JSON configuration file")
var period = flag.Duration("period", 200*time.Millisecond, "time between reads")
var blackLine = flag.Bool("black", false, "track a black line on a light floor")

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Could not load config: ", err)
	}

	lineBuses := make([]linesensor.Bus, 0, len(cfg.Sensor.Buses))
	for _, number := range cfg.Sensor.Buses {
		bus, err := i2c.Open(number)
		if err != nil {
			log.Fatal("Can not open i2c bus ", number, ": ", err)
		}
		defer bus.Close()
		if err := bus.SetTimeout(time.Duration(cfg.Sensor.Timeout)); err != nil {
			log.Print("Could not set i2c bus ", number, " timeout: ", err)
		}
		lineBuses = append(lineBuses, bus)
	}
	sensors := linesensor.NewArray(cfg.Sensor.Address, cfg.Sensor.Register, lineBuses...)
	estimator := position.NewEstimator(cfg.Position)
	whiteLine := !*blackLine

	terminateChan := make(chan os.Signal, 1)
	signal.Notify(terminateChan, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(*period)
	defer ticker.Stop()

	log.Printf("Reading %d sensors, center at %.0f", sensors.Size(), estimator.Center())
	for {
		frame, err := sensors.Read()
		if err != nil {
			log.Print("Read error: ", err)
		}
		est := estimator.Update(frame, whiteLine)
		switch {
		case est.Rejected:
			log.Printf("%s rejected (active %d, span %d), holding %.0f", frame, est.Active, est.Span, est.Position)
		case est.OnLine:
			log.Printf("%s position %.0f error %+.0f", frame, est.Position, estimator.Center()-est.Position)
		default:
			log.Printf("%s line lost, last %.0f", frame, est.Position)
		}
		select {
		case <-terminateChan:
			return
		case <-ticker.C:
		}
	}
}
