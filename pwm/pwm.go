package pwm

import (
	"fmt"
	"os"
	"time"
)

type Bus int

const (
	Bus0 Bus = 0
	Bus1 Bus = 1
	Bus2 Bus = 2
)

type Channel string

const (
	ChannelA Channel = "a"
	ChannelB Channel = "b"
)

type Polarity string

const (
	PolarityNormal   Polarity = "normal"
	PolarityInversed Polarity = "inversed"
)

const DEVICE_ROOT = "/dev/bone/pwm"

type PWM struct {
	enable    string
	dutyCycle string
	period    string
	polarity  string
}

func NewPWM(bus Bus, channel Channel) *PWM {
	return newPWM(fmt.Sprintf("%s/%d/%s", DEVICE_ROOT, bus, channel))
}

func newPWM(dir string) *PWM {
	return &PWM{
		enable:    dir + "/enable",
		dutyCycle: dir + "/duty_cycle",
		period:    dir + "/period",
		polarity:  dir + "/polarity",
	}
}

// Open configures and enables a channel holding the initial duty cycle, the
// sequence a servo or ESC needs before it accepts commands.
func Open(bus Bus, channel Channel, period time.Duration, polarity Polarity, initial time.Duration) (*PWM, error) {
	return NewPWM(bus, channel).Setup(period, polarity, initial)
}

func (pwm *PWM) Setup(period time.Duration, polarity Polarity, initial time.Duration) (*PWM, error) {
	if err := pwm.Period(period); err != nil {
		return nil, fmt.Errorf("could not set pwm period: %w", err)
	}
	if err := pwm.DutyCycle(initial); err != nil {
		return nil, fmt.Errorf("could not set pwm duty cycle: %w", err)
	}
	if err := pwm.Polarity(polarity); err != nil {
		return nil, fmt.Errorf("could not set pwm polarity: %w", err)
	}
	if err := pwm.Enable(); err != nil {
		return nil, fmt.Errorf("could not enable pwm: %w", err)
	}
	return pwm, nil
}

func (pwm *PWM) Enable() error {
	return os.WriteFile(pwm.enable, []byte{'1'}, 0666)
}

func (pwm *PWM) Disable() error {
	return os.WriteFile(pwm.enable, []byte{'0'}, 0666)
}

func (pwm *PWM) Polarity(polarity Polarity) error {
	return os.WriteFile(pwm.polarity, []byte(polarity), 0666)
}

func (pwm *PWM) Period(period time.Duration) error {
	value := fmt.Sprintf("%d", period.Nanoseconds())
	return os.WriteFile(pwm.period, []byte(value), 0666)
}

func (pwm *PWM) DutyCycle(dutyCycle time.Duration) error {
	value := fmt.Sprintf("%d", dutyCycle.Nanoseconds())
	return os.WriteFile(pwm.dutyCycle, []byte(value), 0666)
}
