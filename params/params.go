// Package params resolves externally supplied risk tiers into the security
// parameter sets consumed by the protocol engine and channel validator.
//
// Resolution is a pure function from tier to parameter set; no mutable
// configuration exists. Callers snapshot the set at each decision point.
package params

import "time"

// Tier is the externally computed security-posture level. It is opaque to
// this package beyond its range; the risk model producing it is out of scope.
type Tier uint8

const (
	// TierRelaxed is used in benign, supervised environments.
	TierRelaxed Tier = 0
	// TierStandard is the default operating posture.
	TierStandard Tier = 1
	// TierElevated tightens windows under suspected interference.
	TierElevated Tier = 2
	// TierHostile is the most conservative posture.
	TierHostile Tier = 3
)

// ParameterSet holds the tier-dependent parameters for one session: the
// error-correction strength class for lossy beams, the correlation window
// for coupled-channel validation, and the session key rotation interval.
type ParameterSet struct {
	ECC               ECCClass
	CorrelationWindow time.Duration
	RotationInterval  time.Duration
}

// Resolve maps a risk tier to its parameter set. Tiers outside the declared
// 0-3 range clamp to the most conservative set rather than failing, so a
// misbehaving risk collaborator can only make sessions stricter.
func Resolve(tier Tier) ParameterSet {
	switch tier {
	case TierRelaxed:
		return ParameterSet{
			ECC:               ECCLight,
			CorrelationWindow: 250 * time.Millisecond,
			RotationInterval:  30 * time.Minute,
		}
	case TierStandard:
		return ParameterSet{
			ECC:               ECCStandard,
			CorrelationWindow: 100 * time.Millisecond,
			RotationInterval:  15 * time.Minute,
		}
	case TierElevated:
		return ParameterSet{
			ECC:               ECCStrong,
			CorrelationWindow: 50 * time.Millisecond,
			RotationInterval:  5 * time.Minute,
		}
	default:
		return ParameterSet{
			ECC:               ECCMaximum,
			CorrelationWindow: 25 * time.Millisecond,
			RotationInterval:  1 * time.Minute,
		}
	}
}

// RotationDue reports whether a session's keys should be rotated given the
// time of the last rotation.
func RotationDue(set ParameterSet, lastRotation, now time.Time) bool {
	return now.Sub(lastRotation) >= set.RotationInterval
}
