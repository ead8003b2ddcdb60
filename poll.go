package alsa

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// poll waits for events on the given descriptors, transparently retrying when
// the syscall is interrupted by a signal. A negative timeout blocks
// indefinitely. It returns the number of descriptors that have events set,
// zero meaning the timeout elapsed.
func poll(fds []unix.PollFd, timeoutMs int) (int, error) {
	for {
		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}

			return 0, err
		}

		return n, nil
	}
}
