package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"rabbitcar/car"
	"rabbitcar/gpio"
	"rabbitcar/i2c"
	"rabbitcar/ina219"
	"rabbitcar/linesensor"
	"rabbitcar/odometry"
	"rabbitcar/pid"
	"rabbitcar/position"
	"rabbitcar/pwm"
	"rabbitcar/speed"
	"rabbitcar/steering"
	"rabbitcar/units"
	"rabbitcar/vehicle"
)

var json jsoniter.API = jsoniter.ConfigCompatibleWithStandardLibrary

type Server struct {
	Address     string         `json:"address"`
	ControlPath string         `json:"controlPath"`
	StatusPath  string         `json:"statusPath"`
	TracePath   string         `json:"tracePath"`
	ReadTimeout units.Duration `json:"readTimeout"` // the app must send something (ping) within this period
}

type Sensor struct {
	Buses    []i2c.BusNumber `json:"buses"` // one 8-channel module per bus, leftmost first
	Address  uint8           `json:"address"`
	Register uint8           `json:"register"`
	Timeout  units.Duration  `json:"timeout"`
}

type Odometry struct {
	odometry.Config
	HallPin gpio.Alias `json:"hallPin"`
}

type PWMOutput struct {
	Bus      pwm.Bus      `json:"bus"`
	Channel  pwm.Channel  `json:"channel"`
	Polarity pwm.Polarity `json:"polarity"`
}

type Vehicle struct {
	vehicle.Calibration
	SteeringOutput PWMOutput `json:"steeringOutput"`
	MotorOutput    PWMOutput `json:"motorOutput"`
}

type Telemetry struct {
	Interval  units.Duration `json:"interval"`
	QueueSize int            `json:"queueSize"`
}

type Battery struct {
	Enabled       bool           `json:"enabled"`
	Bus           i2c.BusNumber  `json:"bus"`
	Address       uint8          `json:"address"`
	Cells         int            `json:"cells"`
	RefreshPeriod units.Duration `json:"refreshPeriod"`
}

type CAN struct {
	Enabled   bool   `json:"enabled"`
	Interface string `json:"interface"`
	BaseID    uint32 `json:"baseId"`
	QueueSize int    `json:"queueSize"`
}

// Indicators left empty are not driven.
type Indicators struct {
	Connection gpio.Alias `json:"connection"`
	LineColor  gpio.Alias `json:"lineColor"`
}

type Trace struct {
	Enabled  bool           `json:"enabled"`
	History  int            `json:"history"`
	Interval units.Duration `json:"interval"`
}

type Config struct {
	Server     Server          `json:"server"`
	Sensor     Sensor          `json:"sensor"`
	Position   position.Config `json:"position"`
	Odometry   Odometry        `json:"odometry"`
	Steering   steering.Config `json:"steering"`
	Speed      speed.Config    `json:"speed"`
	Vehicle    Vehicle         `json:"vehicle"`
	Telemetry  Telemetry       `json:"telemetry"`
	Battery    Battery         `json:"battery"`
	CAN        CAN             `json:"can"`
	Indicators Indicators      `json:"indicators"`
	Trace      Trace           `json:"trace"`
	Car        car.Config      `json:"car"`
}

func us(n int) units.Duration {
	return units.Duration(time.Duration(n) * time.Microsecond)
}

func ms(n int) units.Duration {
	return units.Duration(time.Duration(n) * time.Millisecond)
}

// Default is tuned for two 8-channel modules, an 82 mm wheel with 8 magnets and a
// hobby servo plus ESC on 50 Hz PWM.
func Default() Config {
	return Config{
		Server: Server{
			Address:     ":1337",
			ControlPath: "/control",
			StatusPath:  "/status",
			TracePath:   "/trace",
			ReadTimeout: units.Duration(2 * time.Second),
		},
		Sensor: Sensor{
			Buses:    []i2c.BusNumber{i2c.Bus1, i2c.Bus3},
			Address:  linesensor.ADDRESS_DEFAULT,
			Register: linesensor.REGISTER_DEFAULT,
			Timeout:  ms(10),
		},
		Position: position.Config{
			Sensors: 16,
			Unit:    1000,
			Filter: position.FilterConfig{
				Enabled:       true,
				JumpThreshold: 2500,
				MinActive:     2,
				MaxActive:     8,
				MinSpan:       2,
				MaxSpan:       8,
			},
		},
		Odometry: Odometry{
			Config: odometry.Config{
				MagnetsCount:  8,
				WheelDiameter: units.MillimetersToMeters(82),
				Interval:      ms(200),
			},
			HallPin: gpio.P8_03,
		},
		Steering: steering.Config{
			Bands: []pid.Band{
				{Below: 1.5, Gains: pid.Gains{Kp: 0.9, Ki: 0.05, Kd: 0.08}},
				{Below: 3, Gains: pid.Gains{Kp: 0.7, Ki: 0.03, Kd: 0.1}},
				{Gains: pid.Gains{Kp: 0.5, Ki: 0.02, Kd: 0.12}},
			},
			MaxIntegral:       3000,
			Deadband:          150,
			HighSpeedDeadband: 300,
			HighSpeed:         3,
			FilterSpeed:       3,
			DerivativeFilter:  0.5,
			SmoothingSpeed:    5,
			SmoothingWindow:   3,
			MinAngle:          45,
			NeutralAngle:      90,
			MaxAngle:          135,
			MaxDeflection:     45,
			MinDeflection:     20,
			DerateStartSpeed:  2,
			DerateEndSpeed:    6,
			AutoTune: steering.AutoTuneConfig{
				Enabled:     false,
				Interval:    units.Duration(5 * time.Second),
				Window:      100,
				SignChanges: 20,
				PeakError:   3000,
				StableError: 600,
				DecreaseP:   0.9,
				DecreaseI:   0.9,
				DecreaseD:   0.9,
				Increase:    1.03,
				Ceiling:     1.5,
			},
		},
		Speed: speed.Config{
			Gains:           pid.Gains{Kp: 1, Ki: 0, Kd: 0.3},
			MaxIntegral:     20,
			MaxAcceleration: us(20),
			MinPulse:        us(1000),
			NeutralPulse:    us(1500),
			MaxPulse:        us(2000),
		},
		Vehicle: Vehicle{
			Calibration: vehicle.Calibration{
				Steering: vehicle.SteeringCalibration{
					MinAngle:     45,
					NeutralAngle: 90,
					MaxAngle:     135,
					MinPulse:     us(1250),
					NeutralPulse: us(1500),
					MaxPulse:     us(1750),
				},
				Motor: vehicle.MotorCalibration{
					MinPulse:     us(1000),
					NeutralPulse: us(1500),
					MaxPulse:     us(2000),
				},
			},
			SteeringOutput: PWMOutput{Bus: pwm.Bus0, Channel: pwm.ChannelA, Polarity: pwm.PolarityNormal},
			MotorOutput:    PWMOutput{Bus: pwm.Bus0, Channel: pwm.ChannelB, Polarity: pwm.PolarityNormal},
		},
		Telemetry: Telemetry{
			Interval:  ms(100),
			QueueSize: 64,
		},
		Battery: Battery{
			Enabled:       true,
			Bus:           i2c.Bus1,
			Address:       ina219.ADDRESS_DEFAULT,
			Cells:         2,
			RefreshPeriod: units.Duration(2 * time.Second),
		},
		CAN: CAN{
			Enabled:   false,
			Interface: "can0",
			BaseID:    0x300,
			QueueSize: 32,
		},
		Indicators: Indicators{
			Connection: gpio.P8_04,
			LineColor:  gpio.P8_05,
		},
		Trace: Trace{
			Enabled:  true,
			History:  120,
			Interval: ms(100),
		},
		Car: car.Config{
			Cycle:     ms(20),
			QueueSize: 16,
			WhiteLine: true,
		},
	}
}

// Load overlays the JSON file at path on Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Print("Config file ", path, " not found, using defaults")
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the control loop cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Car.Cycle <= 0:
		return fmt.Errorf("car cycle must be positive, got %s", time.Duration(c.Car.Cycle))
	case c.Position.Sensors != len(c.Sensor.Buses)*linesensor.SENSORS_PER_MODULE:
		return fmt.Errorf("position expects %d sensors but %d modules give %d",
			c.Position.Sensors, len(c.Sensor.Buses), len(c.Sensor.Buses)*linesensor.SENSORS_PER_MODULE)
	case c.Position.Unit <= 0:
		return fmt.Errorf("position unit must be positive, got %v", c.Position.Unit)
	case c.Odometry.MagnetsCount <= 0 || c.Odometry.WheelDiameter <= 0:
		return errors.New("odometry needs a positive magnets count and wheel diameter")
	case c.Odometry.Interval <= 0:
		return errors.New("odometry interval must be positive")
	case c.Vehicle.Steering.MinAngle >= c.Vehicle.Steering.MaxAngle:
		return errors.New("steering min angle must be below max angle")
	case c.Vehicle.Motor.MinPulse >= c.Vehicle.Motor.MaxPulse:
		return errors.New("motor min pulse must be below max pulse")
	}
	return nil
}
