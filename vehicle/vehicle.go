package vehicle

import (
	"fmt"
	"log"
	"sync"
	"time"

	"rabbitcar/numeric"
	"rabbitcar/units"
)

const PWM_PERIOD = 20 * time.Millisecond
const MOTOR_SPEED_MAX = 100

type SteeringCalibration struct {
	MinAngle     float64        `json:"minAngle"`
	NeutralAngle float64        `json:"neutralAngle"`
	MaxAngle     float64        `json:"maxAngle"`
	MinPulse     units.Duration `json:"minPulse"`
	NeutralPulse units.Duration `json:"neutralPulse"`
	MaxPulse     units.Duration `json:"maxPulse"`
}

type MotorCalibration struct {
	MinPulse     units.Duration `json:"minPulse"`
	NeutralPulse units.Duration `json:"neutralPulse"`
	MaxPulse     units.Duration `json:"maxPulse"`
}

type Calibration struct {
	Steering SteeringCalibration `json:"steering"`
	Motor    MotorCalibration    `json:"motor"`
}

func micros(d units.Duration) float64 {
	return float64(time.Duration(d)) / float64(time.Microsecond)
}

func fromMicros(us float64) time.Duration {
	return time.Duration(us * float64(time.Microsecond))
}

// SteeringPulse clamps angle to the mechanical range and maps it through neutral.
func (c Calibration) SteeringPulse(angle float64) time.Duration {
	s := c.Steering
	return fromMicros(numeric.MapThroughNeutral(angle,
		s.MinAngle, s.NeutralAngle, s.MaxAngle,
		micros(s.MinPulse), micros(s.NeutralPulse), micros(s.MaxPulse)))
}

// MotorPulse maps -100 (full reverse) .. 100 (full forward) onto the ESC range.
func (c Calibration) MotorPulse(speed float64) time.Duration {
	m := c.Motor
	return fromMicros(numeric.MapThroughNeutral(speed,
		-MOTOR_SPEED_MAX, 0, MOTOR_SPEED_MAX,
		micros(m.MinPulse), micros(m.NeutralPulse), micros(m.MaxPulse)))
}

// ClampMotorPulse keeps a raw ESC command inside the calibrated range.
func (c Calibration) ClampMotorPulse(pulse time.Duration) time.Duration {
	return numeric.Clamp(pulse, time.Duration(c.Motor.MinPulse), time.Duration(c.Motor.MaxPulse))
}

func (c Calibration) ClampAngle(angle float64) float64 {
	return numeric.Clamp(numeric.Finite(angle, c.Steering.NeutralAngle), c.Steering.MinAngle, c.Steering.MaxAngle)
}

// PulseWriter drives one servo-style output; pwm.PWM satisfies it.
type PulseWriter interface {
	DutyCycle(dutyCycle time.Duration) error
}

type State struct {
	SteeringAngle float64       `json:"steeringAngle"`
	SteeringPulse time.Duration `json:"steeringPulse"`
	MotorPulse    time.Duration `json:"motorPulse"`
}

type Vehicle struct {
	mu       sync.Mutex
	cal      Calibration
	steering PulseWriter
	motor    PulseWriter
	state    State
}

func New(cal Calibration, steering PulseWriter, motor PulseWriter) *Vehicle {
	return &Vehicle{
		cal:      cal,
		steering: steering,
		motor:    motor,
		state: State{
			SteeringAngle: cal.Steering.NeutralAngle,
			SteeringPulse: time.Duration(cal.Steering.NeutralPulse),
			MotorPulse:    time.Duration(cal.Motor.NeutralPulse),
		},
	}
}

func (v *Vehicle) Calibration() Calibration {
	return v.cal
}

func (v *Vehicle) SetSteeringAngle(angle float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	angle = v.cal.ClampAngle(angle)
	pulse := v.cal.SteeringPulse(angle)
	v.state.SteeringAngle = angle
	if pulse == v.state.SteeringPulse {
		return nil
	}
	v.state.SteeringPulse = pulse
	if err := v.steering.DutyCycle(pulse); err != nil {
		return fmt.Errorf("could not set steering pulse: %w", err)
	}
	return nil
}

// SetMotorSpeed takes the -100..100 manual scale.
func (v *Vehicle) SetMotorSpeed(speed float64) error {
	return v.SetMotorPulse(v.cal.MotorPulse(speed))
}

func (v *Vehicle) SetMotorPulse(pulse time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.writeMotor(v.cal.ClampMotorPulse(pulse))
}

func (v *Vehicle) writeMotor(pulse time.Duration) error {
	if pulse == v.state.MotorPulse {
		return nil
	}
	v.state.MotorPulse = pulse
	if err := v.motor.DutyCycle(pulse); err != nil {
		return fmt.Errorf("could not set motor pulse: %w", err)
	}
	return nil
}

// Reset unconditionally writes neutral to both outputs.
func (v *Vehicle) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.SteeringAngle = v.cal.Steering.NeutralAngle
	v.state.SteeringPulse = time.Duration(v.cal.Steering.NeutralPulse)
	v.state.MotorPulse = time.Duration(v.cal.Motor.NeutralPulse)
	if err := v.steering.DutyCycle(v.state.SteeringPulse); err != nil {
		log.Print("Could not center steering: ", err)
	}
	if err := v.motor.DutyCycle(v.state.MotorPulse); err != nil {
		log.Print("Could not stop motor: ", err)
	}
}

func (v *Vehicle) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}
