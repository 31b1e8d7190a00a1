package gpio

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Alias is a BeagleBone header pin name as understood by gpiofind, e.g. "P8_03".
type Alias string

const (
	P8_03 Alias = "P8_03"
	P8_04 Alias = "P8_04"
	P8_05 Alias = "P8_05"
	P8_06 Alias = "P8_06"
	P9_11 Alias = "P9_11"
	P9_12 Alias = "P9_12"
)

type Number int

type Value int

const (
	LOW  Value = 0
	HIGH Value = 1
)

type Direction string

const (
	IN  Direction = "in"
	OUT Direction = "out"
)

type Edge string

const (
	NONE    Edge = "none"
	RISING  Edge = "rising"
	FALLING Edge = "falling"
	BOTH    Edge = "both"
)

const SYSFS_ROOT = "/sys/class/gpio"

type Gpio struct {
	alias     Alias
	number    Number
	direction string
	value     string
	edge      string
}

func newGpio(alias Alias, number int) *Gpio {
	return &Gpio{
		number:    Number(number),
		alias:     alias,
		value:     fmt.Sprintf("%s/gpio%d/value", SYSFS_ROOT, number),
		direction: fmt.Sprintf("%s/gpio%d/direction", SYSFS_ROOT, number),
		edge:      fmt.Sprintf("%s/gpio%d/edge", SYSFS_ROOT, number),
	}
}

func (g *Gpio) Number() Number {
	return g.number
}

func (g *Gpio) Alias() Alias {
	return g.alias
}

func (g *Gpio) Value() (Value, error) {
	data, err := os.ReadFile(g.value)
	if err != nil {
		return LOW, err
	}
	return parseValue(data)
}

func parseValue(data []byte) (Value, error) {
	value, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return LOW, err
	}
	return Value(value), nil
}

func (g *Gpio) SetValue(value Value) error {
	data := fmt.Sprintf("%d", value)
	return os.WriteFile(g.value, []byte(data), 0666)
}

func (g *Gpio) Direction() (Direction, error) {
	data, err := os.ReadFile(g.direction)
	if err != nil {
		return IN, err
	}
	return Direction(strings.TrimSpace(string(data))), nil
}

func (g *Gpio) SetDirection(direction Direction) error {
	return os.WriteFile(g.direction, []byte(direction), 0666)
}

func (g *Gpio) SetEdge(edge Edge) error {
	return os.WriteFile(g.edge, []byte(edge), 0666)
}

func (g *Gpio) Unexport() error {
	value := fmt.Sprintf("%d", g.number)
	return os.WriteFile(SYSFS_ROOT+"/unexport", []byte(value), 0666)
}

func Export(alias Alias) (*Gpio, error) {
	number, err := GrepNumber(alias)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", alias, err)
	}
	value := fmt.Sprintf("%d", number)
	if err := os.WriteFile(SYSFS_ROOT+"/export", []byte(value), 0666); err != nil {
		return nil, err
	}
	return newGpio(alias, number), nil
}

func GrepNumber(alias Alias) (int, error) {
	cmd := exec.Command(
		"bash", "-c",
		fmt.Sprintf("expr $(ls -l /sys/class/gpio/gpiochip* | grep $(gpiodetect | grep $(gpiofind %s | grep -o -E \"gpiochip[0-9]+\") | grep -o -E \"[0-9]+\\.gpio\") | grep -o -E \"[0-9]+$\") + $(gpiofind %s | grep -o -E \"[0-9]+$\")", alias, alias))
	stdout, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	number, err := strconv.Atoi(
		strings.Trim(string(stdout), "\n\r"),
	)
	if err != nil {
		return 0, err
	}
	return number, nil
}
