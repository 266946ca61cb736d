package inspector

import (
	"sync"
	"sync/atomic"
	"time"

	iface "OnnxInspector/interface"
)

const (
	DefaultPublishInterval = 100 * time.Millisecond
	subscriberBuffer       = 16
)

// publisher stores the latest snapshot and fans it out without ever
// blocking the caller.
type publisher struct {
	current atomic.Pointer[iface.Progress]

	mu     sync.Mutex
	subs   map[int]chan iface.Progress
	nextID int
}

func newPublisher() *publisher {
	p := &publisher{subs: make(map[int]chan iface.Progress)}
	p.current.Store(&iface.Progress{State: iface.StateIdle, Status: "Ready"})
	return p
}

func (p *publisher) load() iface.Progress {
	return *p.current.Load()
}

func (p *publisher) publish(snap iface.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishLocked(snap)
}

// update applies fn to a copy of the current snapshot and publishes it.
func (p *publisher) update(fn func(*iface.Progress)) iface.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := *p.current.Load()
	fn(&snap)
	p.publishLocked(snap)
	return snap
}

// updateIf is update that only publishes when fn reports a change.
func (p *publisher) updateIf(fn func(*iface.Progress) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := *p.current.Load()
	if fn(&snap) {
		p.publishLocked(snap)
	}
}

func (p *publisher) publishLocked(snap iface.Progress) {
	p.current.Store(&snap)
	for _, ch := range p.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		// full: drop the oldest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (p *publisher) subscribe() (<-chan iface.Progress, func()) {
	ch := make(chan iface.Progress, subscriberBuffer)

	p.mu.Lock()
	ch <- p.load()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// tick republishes the current snapshot with a fresh elapsed time until
// done is closed.
func (p *publisher) tick(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = DefaultPublishInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.mu.Lock()
			snap := *p.current.Load()
			if snap.State.Active() {
				snap.Elapsed = time.Since(snap.StartedAt)
				p.publishLocked(snap)
			}
			p.mu.Unlock()
		}
	}
}
