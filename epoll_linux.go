//go:build linux

package asynctimer

import (
	"sync"

	"asynctimer/reactor"
)

var (
	epollOnce sync.Once
	epollR    *reactor.EpollReactor
	epollErr  error
)

func sharedEpoll() (reactor.Reactor, error) {
	epollOnce.Do(func() {
		epollR, epollErr = reactor.NewEpoll()
	})
	if epollErr != nil {
		return nil, epollErr
	}
	return epollR, nil
}
