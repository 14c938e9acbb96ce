package expctrl

import "sync"

// CmdChannel is a broadcast-latest-value channel: every Send overwrites the
// pending command and bumps a monotonic sequence number, instead of
// queueing. A CmdRecvr that naps through several Sends only ever observes
// the newest one — but it can tell it happened, because the sequence
// number it last saw will have advanced by more than one.
type CmdChannel[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	msg    T
	msgNum uint64
}

// NewCmdChannel constructs an empty command channel.
func NewCmdChannel[T any]() *CmdChannel[T] {
	c := &CmdChannel[T]{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send publishes msg as the latest command and wakes any blocked receivers.
func (c *CmdChannel[T]) Send(msg T) {
	c.mu.Lock()
	c.msg = msg
	c.msgNum++
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Recvr returns a new receiver positioned so that its next Recv call blocks
// until the next Send after this point (it does not replay the current
// latest message).
func (c *CmdChannel[T]) Recvr() *CmdRecvr[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &CmdRecvr[T]{channel: c, lastSeen: c.msgNum}
}

// CmdRecvr tracks one consumer's view of a CmdChannel's message sequence.
type CmdRecvr[T any] struct {
	channel  *CmdChannel[T]
	lastSeen uint64
}

// Recv blocks until a message newer than the last one this receiver
// observed is sent, then returns it. If more than one Send happened since
// the last Recv, the intermediate messages were silently dropped and Recv
// reports ErrLostSync rather than pretending nothing was missed; the
// caller still receives the latest message alongside the error, since it
// remains the authoritative current command.
func (r *CmdRecvr[T]) Recv() (T, error) {
	r.channel.mu.Lock()
	defer r.channel.mu.Unlock()

	for r.channel.msgNum == r.lastSeen {
		r.channel.cond.Wait()
	}

	missed := r.channel.msgNum - r.lastSeen
	r.lastSeen = r.channel.msgNum
	msg := r.channel.msg

	if missed > 1 {
		return msg, ErrLostSync
	}
	return msg, nil
}
