// Package beam defines the boundary to the physical channel collaborators.
//
// The core library never performs I/O. Acoustic, optical, and visual beam
// drivers implement Transport; the library hands them encoded frames and
// receives raw frames back through a registered handler. FrameCodec prepares
// payloads for lossy beams with compression and Reed-Solomon sharding.
package beam

import (
	"context"

	"github.com/beamlink/beamlink/channel"
)

// FrameHandler consumes one raw frame received on a channel.
type FrameHandler func(ch channel.ChannelID, frame []byte)

// Transport is the contract a beam driver implements. Implementations own
// the physical modulation; the library treats frames as opaque bytes.
type Transport interface {
	// Transmit sends one encoded frame on the given channel.
	Transmit(ctx context.Context, ch channel.ChannelID, frame []byte) error

	// OnFrame registers the handler invoked for each received frame.
	// Only one handler is active; a later call replaces the earlier one.
	OnFrame(handler FrameHandler)

	// Channels lists the channels this driver can transmit on.
	Channels() []channel.ChannelID

	// Close shuts the driver down. Transmit after Close returns an error.
	Close() error
}
