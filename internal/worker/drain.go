package worker

import (
	"sync"
	"time"
)

// Drain waits for wg for at most timeout. It reports false when in-flight
// jobs were still running at the deadline; their deliveries stay unacked and
// the broker redelivers them.
func Drain(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
