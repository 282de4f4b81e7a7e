//go:build !linux

package asynctimer

import (
	"fmt"

	"asynctimer/driver"
	"asynctimer/reactor"
)

func sharedEpoll() (reactor.Reactor, error) {
	return nil, fmt.Errorf("%w: epoll reactor", driver.ErrUnsupported)
}
