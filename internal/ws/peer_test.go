package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeerSendAfterClose(t *testing.T) {
	p := NewPeer(nil)
	p.Close()
	p.Close() // idempotent

	err := p.Send(map[string]string{"content": "hi"})
	assert.ErrorIs(t, err, ErrPeerClosed)
	assert.ErrorIs(t, p.SendText("hi"), ErrPeerClosed)
}

func TestPeerSendFailsWhenBufferFull(t *testing.T) {
	p := NewPeer(nil)

	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, p.SendText("filler"))
	}
	assert.ErrorIs(t, p.SendText("overflow"), ErrSlowConsumer)
}

func TestPeerSendRejectsUnmarshalable(t *testing.T) {
	p := NewPeer(nil)
	assert.Error(t, p.Send(make(chan int)))
}

func TestRoomKeyString(t *testing.T) {
	assert.Equal(t, "private_3", PrivateRoom(3).String())
	assert.Equal(t, "group_3", GroupRoom(3).String())
	assert.NotEqual(t, PrivateRoom(3), GroupRoom(3))
}
