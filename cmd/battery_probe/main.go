package main

import (
	"flag"
	"log"
	"time"

	"rabbitcar/battery"
	"rabbitcar/config"
	"rabbitcar/i2c"
	"rabbitcar/ina219"
)

var configPath = flag.String("config", "rabbitcar.json", "path to the JSON configuration file")
var samples = flag.Int("samples", 0, "number of readings, 0 reads until killed")

func main() {
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Could not load config: ", err)
	}
	bus, err := i2c.Open(cfg.Battery.Bus)
	if err != nil {
		log.Fatal("Can not open i2c bus ", cfg.Battery.Bus, ": ", err)
	}
	defer bus.Close()
	sensor, err := ina219.New(bus, cfg.Battery.Address)
	if err != nil {
		log.Fatal("Can not initialize ina219: ", err)
	}
	monitor := battery.NewMonitor(sensor, cfg.Battery.Cells)

	for i := 0; *samples == 0 || i < *samples; i++ {
		if i > 0 {
			time.Sleep(time.Duration(cfg.Battery.RefreshPeriod))
		}
		if err := monitor.Refresh(time.Now()); err != nil {
			log.Print("Could not read battery: ", err)
			continue
		}
		status, _ := monitor.Status()
		log.Printf("%dS: %.3f V", cfg.Battery.Cells, status.BatteryVoltage)
		log.Printf("1S: %.3f V", status.CellVoltage)
		log.Printf("Current: %.3f A", status.Current)
		log.Printf("Power: %.3f W", status.Power)
		log.Printf("Charge: %d%%", int(status.ChargePercents))
		log.Print("**********")
	}
}
