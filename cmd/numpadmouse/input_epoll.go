//go:build linux

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// runDispatchLoop reads from all keyboard sources using epoll and feeds every
// event to the dispatcher.
//
// Instead of one goroutine per keyboard, a single goroutine waits on all
// device fds plus an eventfd that is signalled when ctx is canceled, so
// shutdown is observed within one wait-wake cycle.
//
// The loop takes ownership of sources and closes them before returning.
// It returns nil on cancellation and an error for any fatal device condition
// (hangup, read failure, malformed batch).
func runDispatchLoop(ctx context.Context, sources []*os.File, d *eventDispatcher, logger *slog.Logger) error {
	defer closeSources(sources, logger)

	if len(sources) == 0 {
		return errNoKeyboards
	}

	// Create epoll instance
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	// Cancellation wakeup
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return fmt.Errorf("eventfd: %w", err)
	}
	defer unix.Close(wakeFd)

	if err := epollAdd(epfd, wakeFd); err != nil {
		return fmt.Errorf("epoll_ctl_add wakeup fd=%d: %w", wakeFd, err)
	}

	// Map file descriptors to files for later identification
	fdToFile := make(map[int]*os.File, len(sources))
	for _, f := range sources {
		fd := int(f.Fd())
		fdToFile[fd] = f

		if err := epollAdd(epfd, fd); err != nil {
			return fmt.Errorf("epoll_ctl_add %s fd=%d: %w", f.Name(), fd, err)
		}
	}

	// The wakeup writer must finish before wakeFd is closed.
	woke := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(woke)
		var one [8]byte
		binary.NativeEndian.PutUint64(one[:], 1)
		_, _ = unix.Write(wakeFd, one[:])
	})
	defer func() {
		if !stop() {
			<-woke
		}
	}()

	// Reusable buffers
	epollEvents := make([]unix.EpollEvent, len(sources)+1)
	buf := make([]byte, maxBatchEvents*inputEventSize)

	for {
		if ctx.Err() != nil {
			logger.Debug("dispatch loop stopping (context canceled)")
			return nil
		}

		// -1 = wait indefinitely; cancellation arrives through wakeFd
		n, err := unix.EpollWait(epfd, epollEvents, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(epollEvents[i].Fd)
			if fd == wakeFd {
				logger.Debug("dispatch loop stopping (context canceled)")
				return nil
			}

			f, ok := fdToFile[fd]
			if !ok {
				continue
			}

			// We treat any device error as fatal
			if epollEvents[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				return fmt.Errorf("device error/hangup: %s (fd=%d)", f.Name(), fd)
			}

			if err := readBatch(fd, f.Name(), buf, d); err != nil {
				return err
			}
		}
	}
}

// readBatch performs one read from a ready fd and dispatches what it got.
func readBatch(fd int, name string, buf []byte, d *eventDispatcher) error {
	rd, err := unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return nil
		}
		return fmt.Errorf("read from %s: %w", name, err)
	}
	if rd == 0 {
		return fmt.Errorf("read from %s: device closed", name)
	}

	events, err := decodeBatch(buf[:rd])
	if err != nil {
		return fmt.Errorf("read from %s: %w", name, err)
	}
	d.handleBatch(events)
	return nil
}

func epollAdd(epfd, fd int) error {
	event := unix.EpollEvent{
		Events: unix.EPOLLIN, // Notify when readable
		Fd:     int32(fd),
	}
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event)
}

func closeSources(sources []*os.File, logger *slog.Logger) {
	for _, f := range sources {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close keyboard", "device", f.Name(), "error", err)
		}
	}
}
