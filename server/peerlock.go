package server

import (
	"context"
	"sync"
)

// peerLocks serializes data channels per peer host so two sessions from the
// same client never interleave their data connections.
type peerLocks struct {
	mu    sync.Mutex
	locks map[string]*peerLock
}

type peerLock struct {
	ch   chan struct{}
	refs int
}

func newPeerLocks() *peerLocks {
	return &peerLocks{locks: make(map[string]*peerLock)}
}

func (p *peerLocks) acquire(ctx context.Context, peer string) (release func(), err error) {
	p.mu.Lock()
	l, ok := p.locks[peer]
	if !ok {
		l = &peerLock{ch: make(chan struct{}, 1)}
		p.locks[peer] = l
	}
	l.refs++
	p.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				p.put(peer, l)
			})
		}, nil
	case <-ctx.Done():
		p.put(peer, l)
		return nil, ctx.Err()
	}
}

func (p *peerLocks) put(peer string, l *peerLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, peer)
	}
}

func (p *peerLocks) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
