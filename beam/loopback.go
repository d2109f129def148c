package beam

import (
	"context"
	"errors"
	"sync"

	"github.com/beamlink/beamlink/channel"
)

// ErrTransportClosed indicates use of a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// ErrChannelUnsupported indicates a transmit on a channel the driver lacks.
var ErrChannelUnsupported = errors.New("channel not supported by transport")

// LoopbackTransport delivers frames directly to a paired endpoint in the
// same process. It exists for tests and the demonstration binary; real
// deployments provide hardware-backed drivers.
type LoopbackTransport struct {
	mu       sync.Mutex
	peer     *LoopbackTransport
	handler  FrameHandler
	channels []channel.ChannelID
	closed   bool
}

var _ Transport = (*LoopbackTransport)(nil)

// NewLoopbackPair creates two connected endpoints supporting the given
// channels. Frames transmitted on one arrive at the other's handler.
func NewLoopbackPair(channels ...channel.ChannelID) (*LoopbackTransport, *LoopbackTransport) {
	if len(channels) == 0 {
		channels = []channel.ChannelID{
			channel.ChannelAcoustic,
			channel.ChannelOptical,
			channel.ChannelVisual,
		}
	}
	a := &LoopbackTransport{channels: channels}
	b := &LoopbackTransport{channels: channels}
	a.peer = b
	b.peer = a
	return a, b
}

// Transmit delivers the frame to the paired endpoint's handler.
func (t *LoopbackTransport) Transmit(ctx context.Context, ch channel.ChannelID, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	supported := false
	for _, c := range t.channels {
		if c == ch {
			supported = true
			break
		}
	}
	peer := t.peer
	t.mu.Unlock()

	if !supported {
		return ErrChannelUnsupported
	}

	peer.mu.Lock()
	handler := peer.handler
	closed := peer.closed
	peer.mu.Unlock()

	if closed {
		return ErrTransportClosed
	}
	if handler != nil {
		delivered := make([]byte, len(frame))
		copy(delivered, frame)
		handler(ch, delivered)
	}
	return nil
}

// OnFrame registers the receive handler.
func (t *LoopbackTransport) OnFrame(handler FrameHandler) {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
}

// Channels lists the supported channels.
func (t *LoopbackTransport) Channels() []channel.ChannelID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]channel.ChannelID, len(t.channels))
	copy(out, t.channels)
	return out
}

// Close disconnects the endpoint. Idempotent.
func (t *LoopbackTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.handler = nil
	t.mu.Unlock()
	return nil
}
