//go:build !linux

package gpio

import (
	"context"
	"errors"
)

func (g *Gpio) Poll(ctx context.Context, onEdge func()) error {
	return errors.New("There is no implementation of gpio edge polling for this platform!")
}
