// SPDX-License-Identifier: MIT
//
// Adapted from: nghyane-llm-mux/internal/streamutil/idle_watcher.go's
// single-goroutine-watches-many-timers pattern (one ticker, a map under a
// mutex, snapshot-then-check-without-holding-the-lock), repurposed here to
// drive many observers' Base.tick instead of one idle callback each.

package moler

import (
	"sync"
	"time"
)

// Shared is a [Runner] that drives every submitted observer from a single
// background goroutine, polling a map under a mutex each tick instead of
// spawning one goroutine per observer. It is the cheaper flavour for
// connections expected to host many concurrent observers.
type Shared struct {
	Tick time.Duration

	mu       sync.Mutex
	observed map[*handle]Observer
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
	wg       sync.WaitGroup
}

// NewShared constructs a [Shared] runner with the default tick resolution.
// The polling goroutine starts lazily, on the first Submit.
func NewShared() *Shared {
	return &Shared{
		Tick:     DefaultTick,
		observed: make(map[*handle]Observer),
		stopCh:   make(chan struct{}),
	}
}

// Submit implements [Runner]: subscribes the observer, sends its command
// string first if it is a [CommandLike], and registers it with the shared
// poll loop (starting the loop on first use).
func (s *Shared) Submit(observer Observer) (Handle, error) {
	s.mu.Lock()
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return nil, &WrongUsage{Observer: observer.Base().Name(), Reason: "runner is shut down"}
	default:
	}
	if !s.started {
		s.started = true
		s.wg.Add(1)
		go s.watchLoop()
	}
	s.mu.Unlock()

	b := observer.Base()
	conn := b.Connection()
	conn.Subscribe(observer, b.feedData, observer.ConnectionClosedHandler)

	if cmd, ok := observer.(CommandLike); ok {
		if err := conn.SendLine(cmd.CommandString()); err != nil {
			conn.Unsubscribe(observer, b.feedData)
			return nil, err
		}
	}

	h := newHandle()
	s.mu.Lock()
	s.observed[h] = observer
	s.mu.Unlock()

	return h, nil
}

func (s *Shared) watchLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tickOrDefault())
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.checkAll(time.Now(), true)
			return
		case now := <-ticker.C:
			s.checkAll(now, false)
		}
	}
}

func (s *Shared) checkAll(now time.Time, shuttingDown bool) {
	s.mu.Lock()
	toCheck := make([]*handle, 0, len(s.observed))
	for h := range s.observed {
		toCheck = append(toCheck, h)
	}
	s.mu.Unlock()

	for _, h := range toCheck {
		s.mu.Lock()
		observer, ok := s.observed[h]
		s.mu.Unlock()
		if !ok {
			continue
		}

		stopped := false
		select {
		case <-h.stop:
			stopped = true
		default:
		}

		done := observer.Base().tick(now, shuttingDown || stopped)
		if stopped && !done {
			observer.Base().Cancel()
			done = true
		}
		if done {
			h.markDone()
			s.mu.Lock()
			delete(s.observed, h)
			s.mu.Unlock()
		}
	}
}

func (s *Shared) tickOrDefault() time.Duration {
	if s.Tick > 0 {
		return s.Tick
	}
	return DefaultTick
}

// WaitFor implements [Runner] via the shared waitForObserver helper.
func (s *Shared) WaitFor(observer Observer, h Handle, timeout time.Duration) (any, error) {
	return waitForObserver(observer, h, timeout)
}

// Shutdown stops the poll loop, cancelling any observer still in flight.
func (s *Shared) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
