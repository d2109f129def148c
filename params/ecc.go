package params

import (
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// ECCClass identifies an error-correction strength class for the lossy beam
// channels. Higher classes trade bandwidth for recoverability.
type ECCClass uint8

const (
	// ECCLight tolerates occasional symbol loss on clean channels.
	ECCLight ECCClass = iota
	// ECCStandard is the default for mixed conditions.
	ECCStandard
	// ECCStrong tolerates sustained interference.
	ECCStrong
	// ECCMaximum tolerates losing half the shards.
	ECCMaximum
)

// ErrTooManyLost indicates more shards were lost than the class can recover.
var ErrTooManyLost = errors.New("too many shards lost, cannot recover")

// geometry returns the Reed-Solomon data/parity shard counts for the class.
func (c ECCClass) geometry() (dataShards, parityShards int) {
	switch c {
	case ECCLight:
		return 10, 2
	case ECCStandard:
		return 10, 4
	case ECCStrong:
		return 8, 6
	default:
		return 8, 8
	}
}

// String returns a human-readable class name.
func (c ECCClass) String() string {
	switch c {
	case ECCLight:
		return "light"
	case ECCStandard:
		return "standard"
	case ECCStrong:
		return "strong"
	case ECCMaximum:
		return "maximum"
	default:
		return fmt.Sprintf("ecc(%d)", uint8(c))
	}
}

// Codec provides Reed-Solomon encoding and reconstruction for one ECC class.
type Codec struct {
	enc          reedsolomon.Encoder
	dataShards   int
	parityShards int
}

// NewCodec builds the Reed-Solomon codec for the class.
func (c ECCClass) NewCodec() (*Codec, error) {
	dataShards, parityShards := c.geometry()
	enc, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("reed-solomon init for class %s: %w", c, err)
	}
	return &Codec{
		enc:          enc,
		dataShards:   dataShards,
		parityShards: parityShards,
	}, nil
}

// DataShards returns the number of data shards.
func (c *Codec) DataShards() int { return c.dataShards }

// ParityShards returns the number of parity shards the class can lose.
func (c *Codec) ParityShards() int { return c.parityShards }

// TotalShards returns the total number of shards (data + parity).
func (c *Codec) TotalShards() int { return c.dataShards + c.parityShards }

// Encode splits data into shards and computes parity. The returned slice has
// TotalShards() entries; data is padded to a whole number of shards.
func (c *Codec) Encode(data []byte) ([][]byte, error) {
	shards, err := c.enc.Split(data)
	if err != nil {
		return nil, fmt.Errorf("shard split: %w", err)
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("parity encode: %w", err)
	}
	return shards, nil
}

// Reconstruct recovers missing shards in place. Missing shards are nil
// entries. Returns ErrTooManyLost when more than ParityShards() are missing.
func (c *Codec) Reconstruct(shards [][]byte) error {
	if err := c.enc.Reconstruct(shards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return ErrTooManyLost
		}
		return fmt.Errorf("shard reconstruct: %w", err)
	}
	return nil
}

// Join reassembles the original data from the data shards. outSize is the
// original length before padding.
func (c *Codec) Join(shards [][]byte, outSize int) ([]byte, error) {
	if len(shards) < c.dataShards {
		return nil, ErrTooManyLost
	}
	data := make([]byte, 0, outSize)
	for i := 0; i < c.dataShards && len(data) < outSize; i++ {
		if shards[i] == nil {
			return nil, ErrTooManyLost
		}
		remaining := outSize - len(data)
		if remaining >= len(shards[i]) {
			data = append(data, shards[i]...)
		} else {
			data = append(data, shards[i][:remaining]...)
		}
	}
	if len(data) < outSize {
		return nil, fmt.Errorf("joined %d bytes, expected %d", len(data), outSize)
	}
	return data, nil
}
