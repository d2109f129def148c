// Package beamlink establishes authenticated secure sessions between devices
// that communicate over directional beams.
//
// Two modes exist. In short-range mode the devices exchange handshake
// payloads directly over the beam: offer, response, and a mutual
// confirmation, each signed and bound to a single-use nonce. In long-range
// mode establishment additionally requires proof of physical line-of-sight:
// a coupled pair of signed observations, one acoustic and one optical, that
// reference each other and land inside a tight correlation window.
//
// Example:
//
//	mgr, err := beamlink.New(nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	mgr.OnEvent(func(ev protocol.Event) {
//	    fmt.Printf("%s: %s\n", ev.SessionID, ev.Type)
//	})
//
//	sessionID, offer, err := mgr.InitiateHandshake(protocol.ModeShortRange)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// transmit offer over the beam, feed the response back:
//	if err := mgr.SubmitPeerPayload(sessionID, response); err != nil {
//	    log.Fatal(err)
//	}
//
// The library performs no I/O itself. Beam drivers implement beam.Transport
// and shuttle the payloads; the Manager owns all session and key state.
package beamlink
