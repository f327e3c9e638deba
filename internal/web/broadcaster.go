package web

import (
	"sync"

	"levelalarm/internal/levelcontrol"
)

// Broadcaster fans tick snapshots out to any live websocket listeners. It
// keeps the most recent value so new subscribers get an immediate sample.
type Broadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan levelcontrol.Snapshot
	nextID   int
	last     levelcontrol.Snapshot
	haveLast bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan levelcontrol.Snapshot)}
}

// Publish implements levelcontrol.Sink. Slow subscribers drop samples rather
// than stalling the control loop.
func (b *Broadcaster) Publish(snap levelcontrol.Snapshot) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.last = snap
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Subscribe(buffer int) (int, <-chan levelcontrol.Snapshot) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan levelcontrol.Snapshot, buffer)
	if b.haveLast {
		ch <- b.last
	}
	b.subs[id] = ch
	return id, ch
}

func (b *Broadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Last returns the most recent snapshot, if any tick has happened yet.
func (b *Broadcaster) Last() (levelcontrol.Snapshot, bool) {
	if b == nil {
		return levelcontrol.Snapshot{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}
