// SPDX-License-Identifier: MIT
//
// Adapted from: original_source/moler/runner.py's thread-per-connection-
// observer runner, translated to a goroutine-per-observer loop in the style
// of SagerNet-smux's per-stream goroutines (session.go's recvLoop/sendLoop:
// one goroutine, one done channel, select-on-stop).

package moler

import (
	"sync"
	"time"
)

// Pooled is the simplest [Runner]: every submitted observer gets its own
// goroutine, ticking at Tick until the observer is done or the runner
// shuts down.
type Pooled struct {
	Tick time.Duration

	mu       sync.Mutex
	handles  map[*handle]struct{}
	shutdown bool
	wg       sync.WaitGroup
}

// NewPooled constructs a [Pooled] runner with the default tick resolution.
func NewPooled() *Pooled {
	return &Pooled{Tick: DefaultTick, handles: make(map[*handle]struct{})}
}

// Submit implements [Runner]: subscribes the observer's feed loop to its
// connection, sends its command string first if it is a [CommandLike], and
// starts the per-tick goroutine that drives Base.tick.
func (p *Pooled) Submit(observer Observer) (Handle, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, &WrongUsage{Observer: observer.Base().Name(), Reason: "runner is shut down"}
	}
	p.mu.Unlock()

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
	p.mu.Lock()
	p.handles[h] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(observer, h)

	return h, nil
}

func (p *Pooled) run(observer Observer, h *handle) {
	defer p.wg.Done()
	defer func() {
		h.markDone()
		p.mu.Lock()
		delete(p.handles, h)
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.tickOrDefault())
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			observer.Base().Cancel()
			return
		case now := <-ticker.C:
			if observer.Base().tick(now, false) {
				return
			}
		}
	}
}

func (p *Pooled) tickOrDefault() time.Duration {
	if p.Tick > 0 {
		return p.Tick
	}
	return DefaultTick
}

// WaitFor implements [Runner] via the shared waitForObserver helper.
func (p *Pooled) WaitFor(observer Observer, h Handle, timeout time.Duration) (any, error) {
	return waitForObserver(observer, h, timeout)
}

// Shutdown cancels every in-flight observer and blocks until their
// goroutines have exited.
func (p *Pooled) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	handles := make([]*handle, 0, len(p.handles))
	for h := range p.handles {
		handles = append(handles, h)
	}
	p.mu.Unlock()

	for _, h := range handles {
		h.Cancel(true)
	}
	p.wg.Wait()
}
