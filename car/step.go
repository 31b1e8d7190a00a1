package car

import (
	"log"
	"time"

	"rabbitcar/telemetry"
	"rabbitcar/units"
)

// Step runs one control cycle: sense, estimate, control, actuate, report.
func (c *Car) Step(now time.Time) {
	frame, err := c.sensors.Read()
	if err != nil {
		c.diagnostics.SensorErrors++
		if !c.sensorFault {
			log.Print("Line sensor read failed, reusing last frame: ", err)
		}
		frame = c.frame
	} else if c.sensorFault {
		log.Print("Line sensor recovered")
	}
	c.sensorFault = err != nil
	c.frame = frame

	rejected := c.estimator.Rejections()
	c.estimate = c.estimator.Update(frame, c.run.WhiteLine)
	c.diagnostics.RejectedPositions += c.estimator.Rejections() - rejected
	if c.trace != nil {
		c.trace.Record(frame, c.estimate, c.run.WhiteLine)
	}

	sampled := false
	if (c.run.Running || c.run.Manual) && c.odometer.Due(now) {
		c.reading = c.odometer.Sample(now)
		sampled = true
	}

	if c.run.Running && !c.run.Manual {
		if c.control(now, sampled) {
			c.publish(now)
			return
		}
	}
	if c.connected {
		c.publishData(now, false)
	}
	c.publish(now)
}

// control steers every cycle and adjusts the motor once per odometry sample.
// It reports whether the run ended.
func (c *Car) control(now time.Time, sampled bool) bool {
	c.output = c.steering.Update(c.estimate, c.estimator.Last(), c.reading.Speed, now)
	if err := c.vehicle.SetSteeringAngle(c.output.Angle); err != nil {
		c.actuatorError(err)
	}
	if c.output.GainsChanged {
		c.publishPid(string(c.output.Tuning))
	}
	if !sampled {
		return false
	}
	if c.run.TargetDistance > 0 && c.reading.Distance >= c.run.TargetDistance {
		c.stopRun(now, "distanceReached")
		if c.connected {
			c.publishData(now, true)
		}
		return true
	}
	pulse := c.speed.Update(c.reading.Speed, c.run.TargetSpeed())
	if err := c.vehicle.SetMotorPulse(pulse); err != nil {
		c.actuatorError(err)
	}
	return false
}

func (c *Car) publishData(now time.Time, force bool) {
	data := telemetry.Data{
		Distance:      c.reading.Distance,
		ElapsedTime:   c.elapsed(now),
		AverageSpeed:  c.reading.AverageSpeed,
		Speed:         c.reading.Speed,
		TargetSpeed:   c.run.TargetSpeed(),
		SteeringAngle: c.output.Angle,
		SteeringError: c.output.Error,
		LineLost:      c.output.LineLost,
	}
	data.AveragePace = units.PaceSecondsPerKm(data.AverageSpeed)
	if c.battery != nil {
		if status, ok := c.battery.Status(); ok {
			data.Battery = &telemetry.Battery{
				Voltage: status.BatteryVoltage,
				Current: status.Current,
				Percent: status.ChargePercents,
			}
		}
	}
	c.publisher.Data(now, data, force)
}

func (c *Car) publishPid(tuning string) {
	gains := c.steering.Gains()
	c.publisher.Pid(telemetry.Pid{
		Kp:     gains.Kp,
		Ki:     gains.Ki,
		Kd:     gains.Kd,
		Band:   c.steering.Band(),
		Speed:  c.reading.Speed,
		Tuning: tuning,
	})
}

func (c *Car) publish(now time.Time) {
	snapshot := &Snapshot{
		At:          now,
		Connected:   c.connected,
		RunID:       c.runID,
		Run:         c.run,
		Elapsed:     c.elapsed(now),
		Frame:       c.frame.String(),
		Position:    c.estimate.Position,
		OnLine:      c.estimate.OnLine,
		Odometry:    c.reading,
		TargetSpeed: c.run.TargetSpeed(),
		Steering: SteeringSnapshot{
			Angle:    c.output.Angle,
			Error:    c.output.Error,
			Band:     c.steering.Band(),
			Gains:    c.steering.Gains(),
			LineLost: c.output.LineLost,
			Tuning:   string(c.output.Tuning),
		},
		SpeedGains:  c.speed.Gains(),
		Vehicle:     c.vehicle.State(),
		Diagnostics: c.diagnostics,
	}
	if c.battery != nil {
		if status, ok := c.battery.Status(); ok {
			snapshot.Battery = &status
		}
	}
	c.snapshot.Store(snapshot)
}
