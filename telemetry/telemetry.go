package telemetry

import (
	"log"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"rabbitcar/streamer"
)

var json jsoniter.API = jsoniter.ConfigCompatibleWithStandardLibrary

type MessageType string

const (
	DataMessage       MessageType = "data"
	PidMessage        MessageType = "pid"
	RunStoppedMessage MessageType = "runStopped"
)

type Battery struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	Percent float64 `json:"percent"`
}

// Data is the periodic run report. Distances are meters, speeds m/s, times seconds, pace s/km.
type Data struct {
	Type          MessageType `json:"type"`
	Distance      float64     `json:"distance"`
	ElapsedTime   float64     `json:"elapsedTime"`
	AveragePace   float64     `json:"averagePace"`
	AverageSpeed  float64     `json:"averageSpeed"`
	Speed         float64     `json:"speed"`
	TargetSpeed   float64     `json:"targetSpeed"`
	SteeringAngle float64     `json:"steeringAngle"`
	SteeringError float64     `json:"steeringError"`
	LineLost      bool        `json:"lineLost"`
	Battery       *Battery    `json:"battery,omitempty"`
}

type Pid struct {
	Type  MessageType `json:"type"`
	Kp    float64     `json:"kp"`
	Ki    float64     `json:"ki"`
	Kd    float64     `json:"kd"`
	Band  int         `json:"band"`
	Speed float64     `json:"speed"`
	// Tuning names the auto-tune decision that produced the gains, if any.
	Tuning string `json:"tuning,omitempty"`
}

type Summary struct {
	Type           MessageType `json:"type"`
	RunID          string      `json:"runId"`
	Reason         string      `json:"reason"`
	Distance       float64     `json:"distance"`
	ElapsedTime    float64     `json:"elapsedTime"`
	AverageSpeed   float64     `json:"averageSpeed"`
	AveragePace    float64     `json:"averagePace"`
	TargetDistance float64     `json:"targetDistance"`
	TargetTime     float64     `json:"targetTime"`
	Duration       string      `json:"duration"`
}

type Message interface {
	stamp()
}

func (d *Data) stamp()    { d.Type = DataMessage }
func (p *Pid) stamp()     { p.Type = PidMessage }
func (s *Summary) stamp() { s.Type = RunStoppedMessage }

func Marshal(msg Message) ([]byte, error) {
	msg.stamp()
	return json.Marshal(msg)
}

func NewRunID() string {
	return uuid.NewString()
}

// Sink receives every published message after it is broadcast. Send must not block.
type Sink interface {
	Send(msg Message)
}

type Limiter struct {
	interval time.Duration
	last     time.Time
}

func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval}
}

// Allow reports whether a periodic report may go out at now. A forced report always may.
func (l *Limiter) Allow(now time.Time, force bool) bool {
	if !force && !l.last.IsZero() && now.Sub(l.last) < l.interval {
		return false
	}
	l.last = now
	return true
}

// Publisher encodes messages once and hands them to the websocket fan-out and the sinks.
type Publisher struct {
	limiter *Limiter
	out     *streamer.Streamer[[]byte]
	sinks   []Sink
}

func NewPublisher(interval time.Duration, out *streamer.Streamer[[]byte], sinks ...Sink) *Publisher {
	return &Publisher{
		limiter: NewLimiter(interval),
		out:     out,
		sinks:   sinks,
	}
}

// Data publishes a report unless one went out less than the interval ago.
func (p *Publisher) Data(now time.Time, data Data, force bool) bool {
	if !p.limiter.Allow(now, force) {
		return false
	}
	p.publish(&data)
	return true
}

func (p *Publisher) Pid(pid Pid) {
	p.publish(&pid)
}

func (p *Publisher) RunStopped(summary Summary) {
	p.publish(&summary)
}

func (p *Publisher) publish(msg Message) {
	raw, err := Marshal(msg)
	if err != nil {
		log.Print("Could not encode telemetry: ", err)
		return
	}
	if p.out != nil {
		p.out.Broadcast(&raw)
	}
	for _, sink := range p.sinks {
		sink.Send(msg)
	}
}
