package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamlink/beamlink"
	"github.com/beamlink/beamlink/beam"
	"github.com/beamlink/beamlink/channel"
	"github.com/beamlink/beamlink/crypto"
	"github.com/beamlink/beamlink/fallback"
	"github.com/beamlink/beamlink/params"
	"github.com/beamlink/beamlink/protocol"
)

// demoCmd runs a complete two-device session in one process over a loopback
// beam: handshake, an encrypted message, and in long-range mode the coupled
// observation check plus a health-driven fallback.
func demoCmd() *cobra.Command {
	var longRange bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a loopback two-device session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if longRange {
				return runLongRangeDemo()
			}
			return runShortRangeDemo()
		},
	}
	cmd.Flags().BoolVar(&longRange, "long-range", false, "establish via coupled observations, then degrade")
	return cmd
}

// beamEndpoint bundles a manager with its side of the loopback beam. Payloads
// travel as compressed, Reed-Solomon sharded frames, the way a lossy beam
// driver would carry them.
type beamEndpoint struct {
	name      string
	mgr       *beamlink.Manager
	transport *beam.LoopbackTransport
	codec     *beam.FrameCodec

	received chan []byte
}

func newBeamEndpoint(name string, transport *beam.LoopbackTransport, set params.ParameterSet) (*beamEndpoint, error) {
	opts := beamlink.NewOptions()
	opts.Fallback = fallback.Config{Threshold: 0.4, ConsecutiveCount: 2}
	mgr, err := beamlink.New(opts)
	if err != nil {
		return nil, err
	}
	mgr.SetRiskTier(params.Tier(tierFlag))

	codec, err := beam.NewFrameCodec(set.ECC)
	if err != nil {
		mgr.Close()
		return nil, err
	}

	ep := &beamEndpoint{
		name:      name,
		mgr:       mgr,
		transport: transport,
		codec:     codec,
		received:  make(chan []byte, 8),
	}

	var pending []beam.Frame
	transport.OnFrame(func(ch channel.ChannelID, data []byte) {
		frame, err := beam.ParseFrame(data)
		if err != nil {
			return
		}
		pending = append(pending, *frame)
		if len(pending) < ep.codec.FramesPerPayload() {
			return
		}
		payload, err := ep.codec.Decode(pending)
		pending = nil
		if err != nil {
			return
		}
		ep.received <- payload
	})

	return ep, nil
}

// send frames the payload and transmits it on the optical channel.
func (ep *beamEndpoint) send(ctx context.Context, payload []byte) error {
	frames, err := ep.codec.Encode(payload)
	if err != nil {
		return err
	}
	for i := range frames {
		if err := ep.transport.Transmit(ctx, channel.ChannelOptical, frames[i].Marshal()); err != nil {
			return err
		}
	}
	return nil
}

func (ep *beamEndpoint) recv() ([]byte, error) {
	select {
	case payload := <-ep.received:
		return payload, nil
	case <-time.After(2 * time.Second):
		return nil, fmt.Errorf("%s: no payload on beam", ep.name)
	}
}

func (ep *beamEndpoint) close() {
	ep.transport.Close()
	ep.mgr.Close()
}

func runShortRangeDemo() error {
	ctx := context.Background()
	set := params.Resolve(params.Tier(tierFlag))

	left, right := beam.NewLoopbackPair(channel.ChannelOptical)
	alice, err := newBeamEndpoint("alice", left, set)
	if err != nil {
		return err
	}
	defer alice.close()
	bob, err := newBeamEndpoint("bob", right, set)
	if err != nil {
		return err
	}
	defer bob.close()

	fmt.Printf("tier %d: ecc=%s window=%s rotation=%s\n",
		tierFlag, set.ECC, set.CorrelationWindow, set.RotationInterval)

	aliceID, offer, err := alice.mgr.InitiateHandshake(protocol.ModeShortRange)
	if err != nil {
		return err
	}
	if err := alice.send(ctx, offer); err != nil {
		return err
	}

	offerWire, err := bob.recv()
	if err != nil {
		return err
	}
	bobID, response, err := bob.mgr.AcceptHandshake(offerWire)
	if err != nil {
		return err
	}
	if err := bob.send(ctx, response); err != nil {
		return err
	}

	responseWire, err := alice.recv()
	if err != nil {
		return err
	}
	if err := alice.mgr.SubmitPeerPayload(aliceID, responseWire); err != nil {
		return err
	}

	ack, err := alice.mgr.BuildAck(aliceID)
	if err != nil {
		return err
	}
	if err := alice.send(ctx, ack); err != nil {
		return err
	}
	ackWire, err := bob.recv()
	if err != nil {
		return err
	}
	if err := bob.mgr.SubmitAck(bobID, ackWire); err != nil {
		return err
	}

	ack, err = bob.mgr.BuildAck(bobID)
	if err != nil {
		return err
	}
	if err := bob.send(ctx, ack); err != nil {
		return err
	}
	ackWire, err = alice.recv()
	if err != nil {
		return err
	}
	if err := alice.mgr.SubmitAck(aliceID, ackWire); err != nil {
		return err
	}

	fmt.Printf("alice session %s established\n", aliceID)
	fmt.Printf("bob   session %s established\n", bobID)

	wire, err := alice.mgr.EncryptOutbound(aliceID, []byte("hello across the beam"))
	if err != nil {
		return err
	}
	if err := alice.send(ctx, wire); err != nil {
		return err
	}
	sealed, err := bob.recv()
	if err != nil {
		return err
	}
	plaintext, err := bob.mgr.DecryptInbound(bobID, sealed)
	if err != nil {
		return err
	}
	fmt.Printf("bob decrypted: %q\n", plaintext)
	return nil
}

func runLongRangeDemo() error {
	set := params.Resolve(params.Tier(tierFlag))
	fmt.Printf("tier %d: ecc=%s window=%s rotation=%s\n",
		tierFlag, set.ECC, set.CorrelationWindow, set.RotationInterval)

	opts := beamlink.NewOptions()
	opts.Fallback = fallback.Config{Threshold: 0.4, ConsecutiveCount: 2}
	alice, err := beamlink.New(opts)
	if err != nil {
		return err
	}
	defer alice.Close()
	bob, err := beamlink.New(nil)
	if err != nil {
		return err
	}
	defer bob.Close()
	alice.SetRiskTier(params.Tier(tierFlag))

	sessionID, offer, err := alice.InitiateHandshake(protocol.ModeLongRange)
	if err != nil {
		return err
	}
	_, response, err := bob.AcceptHandshake(offer)
	if err != nil {
		return err
	}

	// The optical observation carries the peer's response; the acoustic one
	// carries the auth frame. Each digests the other.
	signer, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return err
	}
	authFrame := []byte("acoustic-auth-frame")
	base := time.Now().UnixNano()

	optical := &channel.Observation{
		Channel:        channel.ChannelOptical,
		SessionID:      sessionID,
		TimestampNanos: base,
		Payload:        response,
		Digest:         crypto.Fingerprint(authFrame),
		SignerKey:      signer.Public,
		Usable:         true,
	}
	acoustic := &channel.Observation{
		Channel:        channel.ChannelAcoustic,
		SessionID:      sessionID,
		TimestampNanos: base + (set.CorrelationWindow / 2).Nanoseconds(),
		Payload:        authFrame,
		Digest:         crypto.Fingerprint(response),
		SignerKey:      signer.Public,
		Usable:         true,
	}
	if err := channel.SignObservation(optical, signer.Seed); err != nil {
		return err
	}
	if err := channel.SignObservation(acoustic, signer.Seed); err != nil {
		return err
	}

	if err := alice.SubmitObservation(sessionID, optical); err != nil {
		return err
	}
	if err := alice.SubmitObservation(sessionID, acoustic); err != nil {
		return err
	}

	state, err := alice.GetState(sessionID)
	if err != nil {
		return err
	}
	fmt.Printf("session %s: %s\n", sessionID, state)

	metrics := alice.Validator().Snapshot()
	fmt.Printf("validator: %d coupled pairs\n", metrics.SuccessfulValidations)

	// Degrade the channel until the fallback trips.
	for _, score := range []float64{0.9, 0.3, 0.2} {
		transition, err := alice.SubmitHealthSample(sessionID, score)
		if err != nil {
			return err
		}
		fmt.Printf("health %.1f\n", score)
		if transition != nil {
			fmt.Printf("fallback: %s, replacement session %s\n",
				transition.Action, transition.NewSession)
			return nil
		}
	}
	return fmt.Errorf("fallback did not trigger")
}
