package expctrl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmdChannelRecvReturnsLatest(t *testing.T) {
	var ch = NewCmdChannel[int]()
	var recvr = ch.Recvr()

	var received = make(chan int, 1)
	go func() {
		var msg, err = recvr.Recv()
		require.NoError(t, err)
		received <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	ch.Send(42)

	select {
	case msg := <-received:
		assert.Equal(t, 42, msg)
	case <-time.After(time.Second):
		t.Fatal("Recv did not return after Send")
	}
}

func TestCmdChannelDetectsLostSync(t *testing.T) {
	var ch = NewCmdChannel[int]()
	var recvr = ch.Recvr()

	ch.Send(1)
	ch.Send(2)
	ch.Send(3) // recvr has never Recv'd, so it will have missed 1 and 2

	var msg, err = recvr.Recv()
	assert.True(t, errors.Is(err, ErrLostSync))
	assert.Equal(t, 3, msg) // still reports the latest message
}

func TestCmdChannelNoLostSyncOnSingleSend(t *testing.T) {
	var ch = NewCmdChannel[int]()
	var recvr = ch.Recvr()

	ch.Send(7)

	var msg, err = recvr.Recv()
	require.NoError(t, err)
	assert.Equal(t, 7, msg)
}
