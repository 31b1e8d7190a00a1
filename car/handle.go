package car

import (
	"errors"
	"log"
	"time"

	"rabbitcar/command"
	"rabbitcar/gpio"
	"rabbitcar/numeric"
	"rabbitcar/telemetry"
	"rabbitcar/units"
	"rabbitcar/vehicle"
)

type EventType int

const (
	EventConnected EventType = iota + 1
	EventDisconnected
	EventCommand
	EventStop
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventCommand:
		return "command"
	case EventStop:
		return "stop"
	}
	return "unknown"
}

// Event carries a raw command payload or a connection change into the loop.
type Event struct {
	Type    EventType
	Payload []byte
	Reason  string
}

func Connected() Event {
	return Event{Type: EventConnected}
}

func Disconnected() Event {
	return Event{Type: EventDisconnected}
}

func Command(payload []byte) Event {
	return Event{Type: EventCommand, Payload: payload}
}

func Stop(reason string) Event {
	return Event{Type: EventStop, Reason: reason}
}

// Handle applies one event. It must only be called from the goroutine that calls Step.
func (c *Car) Handle(ev Event) {
	now := c.clock()
	switch ev.Type {
	case EventConnected:
		c.connected = true
		c.indicate(c.connection, true)
		log.Print("Client connected")
		c.publishPid("")
		c.publishData(now, true)
	case EventDisconnected:
		log.Print("Client disconnected")
		c.stopRun(now, "disconnected")
		c.connected = false
		c.run = c.defaultRun()
		c.indicate(c.connection, false)
		c.indicate(c.lineColor, c.run.WhiteLine)
	case EventStop:
		c.stopRun(now, ev.Reason)
	case EventCommand:
		c.handleCommand(now, ev.Payload)
	default:
		log.Print("Unexpected event ", ev.Type)
	}
	c.publish(now)
}

func (c *Car) handleCommand(now time.Time, payload []byte) {
	cmd, err := command.Unmarshal(payload)
	switch {
	case errors.Is(err, command.ErrUnknownType):
		c.diagnostics.UnknownCommands++
		log.Print("Ignoring command: ", err)
		return
	case err != nil:
		c.diagnostics.MalformedCommands++
		log.Print("Could not parse command: ", err)
		return
	}

	switch cmd.Type {
	case command.Movement:
		c.move(*cmd.Angle, *cmd.MotorSpeed)
	case command.ManualControl:
		c.setManual(now, *cmd.ManualControl)
	case command.Running:
		c.applyRunning(now, cmd)
	case command.IsWhiteLine:
		c.setWhiteLine(*cmd.IsWhiteLine)
	case command.Lights:
		log.Printf("Lights command (%s %s) is not supported", cmd.Light, cmd.Color)
	}
}

func (c *Car) move(angle float64, motorSpeed float64) {
	if !c.run.Manual {
		c.diagnostics.IgnoredCommands++
		return
	}
	if err := c.vehicle.SetSteeringAngle(angle); err != nil {
		c.actuatorError(err)
	}
	c.output.Angle = c.vehicle.State().SteeringAngle
	speed := numeric.Clamp(numeric.Finite(motorSpeed, 0), -vehicle.MOTOR_SPEED_MAX, vehicle.MOTOR_SPEED_MAX)
	if err := c.vehicle.SetMotorSpeed(speed); err != nil {
		c.actuatorError(err)
	}
}

func (c *Car) setManual(now time.Time, manual bool) {
	switch {
	case manual && !c.run.Manual:
		log.Print("Manual control enabled")
		c.begin(now)
	case !manual && c.run.Manual:
		log.Print("Manual control disabled")
		if !c.run.Running {
			c.stopRun(now, "manualDisabled")
		} else {
			c.vehicle.Reset()
			c.output.Angle = c.vehicle.State().SteeringAngle
		}
	}
	c.run.Manual = manual
}

func (c *Car) applyRunning(now time.Time, cmd *command.Command) {
	if cmd.SteeringPid != nil {
		c.steering.SetGains(*cmd.SteeringPid)
		c.publishPid("")
	}
	if cmd.SpeedPid != nil {
		c.speed.SetGains(*cmd.SpeedPid)
	}
	if cmd.IsWhiteLine != nil {
		c.setWhiteLine(*cmd.IsWhiteLine)
	}
	running := *cmd.Running
	if running {
		c.run.TargetDistance = cmd.TargetDistance
		c.run.TargetTime = float64(cmd.TargetTime)
		c.run.TargetPace = cmd.TargetPace
	}
	switch {
	case running && !c.run.Running:
		c.startRun(now)
	case !running && c.run.Running:
		c.stopRun(now, "stopped")
	}
}

func (c *Car) setWhiteLine(white bool) {
	if white != c.run.WhiteLine {
		log.Print("White line mode: ", white)
	}
	c.run.WhiteLine = white
	c.indicate(c.lineColor, white)
}

// begin starts the run timer and the odometer.
func (c *Car) begin(now time.Time) {
	c.runID = telemetry.NewRunID()
	c.runStart = now
	c.odometer.Start(now)
	c.reading = c.odometer.Reading()
}

func (c *Car) startRun(now time.Time) {
	c.estimator.Reset()
	c.steering.Reset()
	c.speed.Reset()
	if !c.run.Manual {
		c.begin(now)
	}
	c.run.Running = true
	target := c.run.TargetSpeed()
	if target <= 0 {
		log.Print("Run started without a target speed, the motor stays neutral")
	}
	log.Printf("Run %s started: distance %.1f m, time %s, target speed %.2f m/s",
		c.runID, c.run.TargetDistance, units.FormatClock(c.run.TargetTime), target)
	c.publishPid("")
	c.publishData(now, true)
}

// stopRun writes neutral to both outputs before anything else and ends an
// active run or manual session with a summary.
func (c *Car) stopRun(now time.Time, reason string) {
	c.vehicle.Reset()
	active := c.run.Running || c.run.Manual
	c.steering.Reset()
	c.speed.Reset()
	c.output.Angle = c.vehicle.Calibration().Steering.NeutralAngle
	c.output.LineLost = false
	if !active {
		return
	}
	c.reading = c.odometer.Sample(now)
	elapsed := c.elapsed(now)
	summary := telemetry.Summary{
		RunID:          c.runID,
		Reason:         reason,
		Distance:       c.reading.Distance,
		ElapsedTime:    elapsed,
		TargetDistance: c.run.TargetDistance,
		TargetTime:     c.run.TargetTime,
		Duration:       units.FormatClock(elapsed),
	}
	if elapsed > 0 {
		summary.AverageSpeed = c.reading.Distance / elapsed
		summary.AveragePace = units.PaceSecondsPerKm(summary.AverageSpeed)
	}
	log.Printf("Run %s stopped (%s): %.2f m in %s", c.runID, reason, summary.Distance, summary.Duration)
	c.publisher.RunStopped(summary)

	whiteLine := c.run.WhiteLine
	c.run = c.defaultRun()
	c.run.WhiteLine = whiteLine
	c.runID = ""
	c.runStart = time.Time{}
}

func (c *Car) elapsed(now time.Time) float64 {
	if c.runStart.IsZero() || !now.After(c.runStart) {
		return 0
	}
	return now.Sub(c.runStart).Seconds()
}

func (c *Car) indicate(indicator Indicator, on bool) {
	if indicator == nil {
		return
	}
	value := gpio.LOW
	if on {
		value = gpio.HIGH
	}
	if err := indicator.SetValue(value); err != nil {
		log.Print("Could not set indicator: ", err)
	}
}

func (c *Car) actuatorError(err error) {
	c.diagnostics.ActuatorErrors++
	log.Print(err)
}
