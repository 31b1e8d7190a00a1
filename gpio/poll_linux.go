//go:build linux

package gpio

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

const POLL_TIMEOUT_MS = 100

// Poll waits for the edges armed with SetEdge and calls onEdge once per
// interrupt until ctx is done.
func (g *Gpio) Poll(ctx context.Context, onEdge func()) error {
	f, err := os.Open(g.value)
	if err != nil {
		return err
	}
	defer f.Close()

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	defer unix.Close(epfd)

	fd := int(f.Fd())
	event := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return err
	}

	buf := make([]byte, 8)
	events := make([]unix.EpollEvent, 1)
	first := true
	for ctx.Err() == nil {
		n, err := unix.EpollWait(epfd, events, POLL_TIMEOUT_MS)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if _, err := unix.Pread(fd, buf, 0); err != nil {
			return err
		}
		// sysfs reports the current level once right after arming
		if first {
			first = false
			continue
		}
		onEdge()
	}
	return ctx.Err()
}
