package room

import (
	"sync"

	"github.com/DoyleJ11/code-battle-backend/internal/types"
)

// Outbox is a connection's outbound queue. One connection may be bound to
// several rooms, so rooms never close the channel itself; they Close the
// outbox, which tells the writer to hang up.
type Outbox struct {
	ch   chan types.ServerMessage
	done chan struct{}
	once sync.Once
}

func NewOutbox(size int) *Outbox {
	return &Outbox{
		ch:   make(chan types.ServerMessage, size),
		done: make(chan struct{}),
	}
}

// Send never blocks. It reports false if the outbox is closed or full.
func (o *Outbox) Send(m types.ServerMessage) bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.ch <- m:
		return true
	default:
		return false
	}
}

func (o *Outbox) C() <-chan types.ServerMessage { return o.ch }

func (o *Outbox) Done() <-chan struct{} { return o.done }

func (o *Outbox) Close() { o.once.Do(func() { close(o.done) }) }
