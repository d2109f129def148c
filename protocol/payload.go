package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/beamlink/beamlink/crypto"
)

// ProtocolVersion is the wire protocol version both peers must agree on.
const ProtocolVersion uint16 = 1

// Payload kinds on the wire.
const (
	kindOffer    byte = 1
	kindResponse byte = 2
	kindAck      byte = 3
	kindData     byte = 4
)

// MaxSessionIDLen bounds the variable-length session identifier field.
const MaxSessionIDLen = 64

// handshakeFixedLen is the byte count of a handshake payload minus the
// variable session identifier: version(2) + kind(1) + sidLen(1) + nonce(32) +
// timestamp(8) + dhPub(32) + verifyKey(32) + signature(64).
const handshakeFixedLen = 2 + 1 + 1 + crypto.HandshakeNonceSize + 8 + 32 + 32 + crypto.SignatureSize

// frameFixedLen is the byte count of a message frame minus the session
// identifier and ciphertext: version(2) + kind(1) + sidLen(1) + seq(4) +
// AEAD nonce.
const frameFixedLen = 2 + 1 + 1 + 4 + crypto.NonceSize

// HandshakePayload is the signed handshake message exchanged in both
// directions: the initiator's offer and the peer's response echoing the
// offer nonce. Every field requires exact peer agreement.
type HandshakePayload struct {
	Kind      byte
	SessionID string
	Nonce     crypto.HandshakeNonce
	Timestamp int64 // Unix seconds
	DHPublic  [32]byte
	VerifyKey [32]byte
	Signature crypto.Signature
}

// signedPortion serializes everything the signature covers. The handshake
// nonce is part of it, binding the nonce into every signature produced
// during the attempt.
func (p *HandshakePayload) signedPortion() []byte {
	buf := make([]byte, 0, handshakeFixedLen+len(p.SessionID)-crypto.SignatureSize)
	buf = binary.BigEndian.AppendUint16(buf, ProtocolVersion)
	buf = append(buf, p.Kind, byte(len(p.SessionID)))
	buf = append(buf, p.SessionID...)
	buf = append(buf, p.Nonce[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(p.Timestamp))
	buf = append(buf, p.DHPublic[:]...)
	buf = append(buf, p.VerifyKey[:]...)
	return buf
}

// SignWith signs the payload with the sender's Ed25519 seed.
func (p *HandshakePayload) SignWith(seed [32]byte) error {
	sig, err := crypto.Sign(p.signedPortion(), seed)
	if err != nil {
		return fmt.Errorf("handshake payload signing: %w", err)
	}
	p.Signature = sig
	return nil
}

// VerifySignature checks the payload signature against the embedded verify
// key. The verify key itself is authenticated by the nonce-echo: a forged
// key cannot produce a signature over the echoed nonce the initiator chose.
func (p *HandshakePayload) VerifySignature() (bool, error) {
	return crypto.Verify(p.signedPortion(), p.Signature, p.VerifyKey)
}

// Marshal serializes the payload for transmission.
func (p *HandshakePayload) Marshal() ([]byte, error) {
	if len(p.SessionID) == 0 || len(p.SessionID) > MaxSessionIDLen {
		return nil, fmt.Errorf("%w: session identifier length %d", ErrMalformedPayload, len(p.SessionID))
	}
	buf := p.signedPortion()
	buf = append(buf, p.Signature[:]...)
	return buf, nil
}

// ParseHandshakePayload deserializes and strictly validates a handshake
// payload. Every length and range check happens here, before any
// cryptographic verification.
func ParseHandshakePayload(data []byte) (*HandshakePayload, error) {
	if len(data) < handshakeFixedLen+1 {
		return nil, fmt.Errorf("%w: truncated handshake payload (%d bytes)", ErrMalformedPayload, len(data))
	}

	version := binary.BigEndian.Uint16(data[0:2])
	if version != ProtocolVersion {
		return nil, fmt.Errorf("%w: protocol version %d", ErrMalformedPayload, version)
	}

	kind := data[2]
	if kind != kindOffer && kind != kindResponse {
		return nil, fmt.Errorf("%w: payload kind %d", ErrMalformedPayload, kind)
	}

	sidLen := int(data[3])
	if sidLen == 0 || sidLen > MaxSessionIDLen {
		return nil, fmt.Errorf("%w: session identifier length %d", ErrMalformedPayload, sidLen)
	}
	if len(data) != handshakeFixedLen+sidLen {
		return nil, fmt.Errorf("%w: handshake payload length %d", ErrMalformedPayload, len(data))
	}

	p := &HandshakePayload{Kind: kind}
	off := 4
	p.SessionID = string(data[off : off+sidLen])
	off += sidLen
	copy(p.Nonce[:], data[off:off+crypto.HandshakeNonceSize])
	off += crypto.HandshakeNonceSize
	p.Timestamp = int64(binary.BigEndian.Uint64(data[off : off+8]))
	off += 8
	copy(p.DHPublic[:], data[off:off+32])
	off += 32
	copy(p.VerifyKey[:], data[off:off+32])
	off += 32
	copy(p.Signature[:], data[off:off+crypto.SignatureSize])

	return p, nil
}

// MessageFrame is an encrypted message or acknowledgement on an established
// channel.
type MessageFrame struct {
	Kind       byte
	SessionID  string
	Sequence   uint32
	Nonce      crypto.Nonce
	Ciphertext []byte
}

// header serializes the authenticated frame header. It doubles as the AEAD
// additional data, binding sequence number and session to the ciphertext.
func (f *MessageFrame) header() []byte {
	buf := make([]byte, 0, 2+1+1+len(f.SessionID)+4)
	buf = binary.BigEndian.AppendUint16(buf, ProtocolVersion)
	buf = append(buf, f.Kind, byte(len(f.SessionID)))
	buf = append(buf, f.SessionID...)
	buf = binary.BigEndian.AppendUint32(buf, f.Sequence)
	return buf
}

// Marshal serializes the frame for transmission.
func (f *MessageFrame) Marshal() ([]byte, error) {
	if len(f.SessionID) == 0 || len(f.SessionID) > MaxSessionIDLen {
		return nil, fmt.Errorf("%w: session identifier length %d", ErrMalformedPayload, len(f.SessionID))
	}
	buf := f.header()
	buf = append(buf, f.Nonce[:]...)
	buf = append(buf, f.Ciphertext...)
	return buf, nil
}

// ParseMessageFrame deserializes and validates a message frame. The
// ciphertext is left untouched; sequence checks and decryption happen in the
// engine.
func ParseMessageFrame(data []byte) (*MessageFrame, error) {
	if len(data) < frameFixedLen+1 {
		return nil, fmt.Errorf("%w: truncated frame (%d bytes)", ErrMalformedPayload, len(data))
	}

	version := binary.BigEndian.Uint16(data[0:2])
	if version != ProtocolVersion {
		return nil, fmt.Errorf("%w: protocol version %d", ErrMalformedPayload, version)
	}

	kind := data[2]
	if kind != kindAck && kind != kindData {
		return nil, fmt.Errorf("%w: frame kind %d", ErrMalformedPayload, kind)
	}

	sidLen := int(data[3])
	if sidLen == 0 || sidLen > MaxSessionIDLen {
		return nil, fmt.Errorf("%w: session identifier length %d", ErrMalformedPayload, sidLen)
	}
	if len(data) < frameFixedLen+sidLen+1 {
		return nil, fmt.Errorf("%w: frame length %d", ErrMalformedPayload, len(data))
	}

	f := &MessageFrame{Kind: kind}
	off := 4
	f.SessionID = string(data[off : off+sidLen])
	off += sidLen
	f.Sequence = binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	copy(f.Nonce[:], data[off:off+crypto.NonceSize])
	off += crypto.NonceSize
	f.Ciphertext = append([]byte(nil), data[off:]...)

	return f, nil
}
