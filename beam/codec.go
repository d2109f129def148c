package beam

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"

	"github.com/beamlink/beamlink/params"
)

const (
	frameVersion = 1

	// flagUncompressed marks a payload stored raw because LZ4 did not
	// shrink it.
	flagUncompressed = 0x01

	// frameHeaderSize is version(1) + flags(1) + index(2) + total(2) +
	// originalSize(4) + compressedSize(4) + shardLen(4).
	frameHeaderSize = 18

	// MaxPayloadSize bounds the payload accepted by Encode.
	MaxPayloadSize = 4 * 1024 * 1024
)

// Frame is one Reed-Solomon shard of an encoded payload plus the metadata
// needed to reassemble it. Any DataShards() of Total frames suffice.
type Frame struct {
	Version        uint8
	Flags          uint8
	Index          uint16
	Total          uint16
	OriginalSize   uint32
	CompressedSize uint32
	Shard          []byte
}

// Serialization and framing errors.
var (
	ErrFrameTooShort    = errors.New("frame data too short")
	ErrFrameVersion     = errors.New("unsupported frame version")
	ErrPayloadTooLarge  = errors.New("payload exceeds maximum frame payload size")
	ErrInconsistentSet  = errors.New("frames disagree on payload metadata")
	ErrInsufficientData = errors.New("not enough frames to reconstruct payload")
)

// Marshal serializes the frame for transmission.
func (f *Frame) Marshal() []byte {
	buf := make([]byte, frameHeaderSize+len(f.Shard))
	buf[0] = f.Version
	buf[1] = f.Flags
	binary.BigEndian.PutUint16(buf[2:4], f.Index)
	binary.BigEndian.PutUint16(buf[4:6], f.Total)
	binary.BigEndian.PutUint32(buf[6:10], f.OriginalSize)
	binary.BigEndian.PutUint32(buf[10:14], f.CompressedSize)
	binary.BigEndian.PutUint32(buf[14:18], uint32(len(f.Shard)))
	copy(buf[frameHeaderSize:], f.Shard)
	return buf
}

// ParseFrame deserializes one frame, validating structure before use.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < frameHeaderSize {
		return nil, ErrFrameTooShort
	}
	if data[0] != frameVersion {
		return nil, fmt.Errorf("%w: %d", ErrFrameVersion, data[0])
	}
	shardLen := binary.BigEndian.Uint32(data[14:18])
	if uint32(len(data)-frameHeaderSize) != shardLen {
		return nil, fmt.Errorf("%w: shard length %d, have %d bytes",
			ErrFrameTooShort, shardLen, len(data)-frameHeaderSize)
	}
	f := &Frame{
		Version:        data[0],
		Flags:          data[1],
		Index:          binary.BigEndian.Uint16(data[2:4]),
		Total:          binary.BigEndian.Uint16(data[4:6]),
		OriginalSize:   binary.BigEndian.Uint32(data[6:10]),
		CompressedSize: binary.BigEndian.Uint32(data[10:14]),
		Shard:          make([]byte, shardLen),
	}
	copy(f.Shard, data[frameHeaderSize:])
	if f.Index >= f.Total {
		return nil, fmt.Errorf("frame index %d out of range for %d shards", f.Index, f.Total)
	}
	return f, nil
}

// FrameCodec encodes payloads into beam frames for a given error-correction
// class. Payloads are LZ4-compressed, then sharded with Reed-Solomon so the
// receiver tolerates up to the class's parity count of lost frames.
type FrameCodec struct {
	class params.ECCClass
	codec *params.Codec
}

// NewFrameCodec builds the codec for one error-correction class.
func NewFrameCodec(class params.ECCClass) (*FrameCodec, error) {
	codec, err := class.NewCodec()
	if err != nil {
		return nil, err
	}
	return &FrameCodec{class: class, codec: codec}, nil
}

// Class returns the codec's error-correction class.
func (fc *FrameCodec) Class() params.ECCClass { return fc.class }

// FramesPerPayload returns the number of frames Encode produces.
func (fc *FrameCodec) FramesPerPayload() int { return fc.codec.TotalShards() }

// Encode compresses the payload and splits it into frames. All frames carry
// the metadata needed to reassemble independently of arrival order.
func (fc *FrameCodec) Encode(payload []byte) ([]Frame, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	flags := uint8(0)
	compressed := make([]byte, lz4.CompressBlockBound(len(payload)))
	var compressor lz4.Compressor
	n, err := compressor.CompressBlock(payload, compressed)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(payload) {
		// Incompressible payload, ship it raw.
		flags |= flagUncompressed
		compressed = payload
	} else {
		compressed = compressed[:n]
	}

	shards, err := fc.codec.Encode(compressed)
	if err != nil {
		return nil, err
	}

	frames := make([]Frame, len(shards))
	for i, shard := range shards {
		frames[i] = Frame{
			Version:        frameVersion,
			Flags:          flags,
			Index:          uint16(i),
			Total:          uint16(len(shards)),
			OriginalSize:   uint32(len(payload)),
			CompressedSize: uint32(len(compressed)),
			Shard:          shard,
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Encode",
		"class":      fc.class.String(),
		"payload":    len(payload),
		"compressed": len(compressed),
		"frames":     len(frames),
	}).Debug("Payload encoded into beam frames")

	return frames, nil
}

// Decode reassembles the payload from the frames that arrived. Missing
// frames are tolerated up to the class's parity count; returns
// params.ErrTooManyLost beyond that.
func (fc *FrameCodec) Decode(frames []Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrInsufficientData
	}

	first := frames[0]
	if int(first.Total) != fc.codec.TotalShards() {
		return nil, fmt.Errorf("%w: %d shards, codec expects %d",
			ErrInconsistentSet, first.Total, fc.codec.TotalShards())
	}

	shards := make([][]byte, fc.codec.TotalShards())
	for _, f := range frames {
		if f.Total != first.Total || f.OriginalSize != first.OriginalSize ||
			f.CompressedSize != first.CompressedSize || f.Flags != first.Flags {
			return nil, ErrInconsistentSet
		}
		if int(f.Index) >= len(shards) {
			return nil, fmt.Errorf("frame index %d out of range", f.Index)
		}
		shards[f.Index] = f.Shard
	}

	if err := fc.codec.Reconstruct(shards); err != nil {
		return nil, err
	}
	compressed, err := fc.codec.Join(shards, int(first.CompressedSize))
	if err != nil {
		return nil, err
	}

	if first.Flags&flagUncompressed != 0 {
		return compressed, nil
	}

	payload := make([]byte, first.OriginalSize)
	n, err := lz4.UncompressBlock(compressed, payload)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if uint32(n) != first.OriginalSize {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", n, first.OriginalSize)
	}
	return payload, nil
}
