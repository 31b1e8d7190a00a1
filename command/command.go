package command

import (
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"rabbitcar/pid"
	"rabbitcar/units"
)

var json jsoniter.API = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrMalformed   = errors.New("malformed command")
	ErrUnknownType = errors.New("unknown command type")
)

type CommandType string

const (
	Movement      CommandType = "movement"
	ManualControl CommandType = "manualControl"
	Running       CommandType = "running"
	IsWhiteLine   CommandType = "isWhiteLine"
	Lights        CommandType = "lights"
)

// Command is one inbound message. Only the fields of its Type are meaningful.
type Command struct {
	Type CommandType `json:"type"`

	Angle      *float64 `json:"angle,omitempty"`
	MotorSpeed *float64 `json:"motorSpeed,omitempty"`

	ManualControl *bool `json:"manualControl,omitempty"`

	Running        *bool       `json:"running,omitempty"`
	TargetDistance float64     `json:"targetDistance,omitempty"`
	TargetTime     units.Clock `json:"targetTime,omitempty"`
	TargetPace     float64     `json:"targetPace,omitempty"`
	SteeringPid    *pid.Gains  `json:"steeringPid,omitempty"`
	SpeedPid       *pid.Gains  `json:"speedPid,omitempty"`
	IsWhiteLine    *bool       `json:"isWhiteLine,omitempty"`

	Light string `json:"light,omitempty"`
	Color string `json:"color,omitempty"`
}

// Unmarshal decodes and validates a whole message before anything is applied.
// A returned error wraps ErrMalformed or ErrUnknownType; the Command is still
// returned for unknown types so the caller can log it.
func Unmarshal(raw []byte) (*Command, error) {
	cmd := &Command{}
	if err := json.Unmarshal(raw, cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := cmd.validate(); err != nil {
		return cmd, err
	}
	cmd.sanitize()
	return cmd, nil
}

func (c *Command) validate() error {
	missing := ""
	switch c.Type {
	case Movement:
		if c.Angle == nil {
			missing = "angle"
		} else if c.MotorSpeed == nil {
			missing = "motorSpeed"
		}
	case ManualControl:
		if c.ManualControl == nil {
			missing = "manualControl"
		}
	case Running:
		if c.Running == nil {
			missing = "running"
		}
	case IsWhiteLine:
		if c.IsWhiteLine == nil {
			missing = "isWhiteLine"
		}
	case Lights:
	case "":
		return fmt.Errorf("%w: no type", ErrMalformed)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
	}
	if missing != "" {
		return fmt.Errorf("%w: %s without %s", ErrMalformed, c.Type, missing)
	}
	return nil
}

func (c *Command) sanitize() {
	c.TargetDistance = max(c.TargetDistance, 0)
	c.TargetPace = max(c.TargetPace, 0)
	if c.SteeringPid != nil {
		gains := c.SteeringPid.Sanitize()
		c.SteeringPid = &gains
	}
	if c.SpeedPid != nil {
		gains := c.SpeedPid.Sanitize()
		c.SpeedPid = &gains
	}
}

func Marshal(cmd *Command) ([]byte, error) {
	return json.Marshal(cmd)
}
