// Package channel routes per-neighbor basis blocks into the channels of the
// coefficient tensor according to a weighting policy.
package channel

import (
	"errors"
	"fmt"
	"strings"
)

// Policy is the closed set of channel-combination rules.
type Policy int

// Supported policies.
const (
	// None sums every neighbor into a single channel.
	None Policy = iota
	// PerType gives every neighbor type its own channel.
	PerType
	// PerTypeMerged adds a shared channel to PerType.
	PerTypeMerged
	// SignedParity adds a shared channel weighted +1 for even and -1 for odd types.
	SignedParity
	// Fuse mixes every neighbor into FuseSize learned channels with weights W[channel, type].
	Fuse
	// FuseMerged adds a shared unweighted channel to Fuse.
	FuseMerged
)

var policyNames = [...]string{
	None:          "none",
	PerType:       "per-type",
	PerTypeMerged: "per-type-merged",
	SignedParity:  "signed-parity",
	Fuse:          "fuse",
	FuseMerged:    "fuse-merged",
}

// Errors returned by Validate.
var (
	ErrPolicy   = errors.New("channel: unknown weighting policy")
	ErrTypes    = errors.New("channel: number of types must be positive")
	ErrFuseSize = errors.New("channel: fuse size does not match policy")
)

// String returns the policy name used in configuration files.
func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyNames[p]
}

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range policyNames {
		if n == name {
			return Policy(p), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrPolicy, s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(policyNames) {
		return nil, fmt.Errorf("%w: %d", ErrPolicy, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Fused reports whether the policy carries learned fuse weights.
func (p Policy) Fused() bool {
	return p == Fuse || p == FuseMerged
}

// Validate checks that the policy can serve numTypes neighbor types with the given fuse size.
func (p Policy) Validate(numTypes, fuseSize int) error {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Errorf("%w: %d", ErrPolicy, int(p))
	}
	if numTypes <= 0 {
		return fmt.Errorf("%w: got %d", ErrTypes, numTypes)
	}
	if p.Fused() && fuseSize <= 0 {
		return fmt.Errorf("%w: %v requires a positive fuse size, got %d", ErrFuseSize, p, fuseSize)
	}
	if !p.Fused() && fuseSize != 0 {
		return fmt.Errorf("%w: %v takes no fuse size, got %d", ErrFuseSize, p, fuseSize)
	}
	return nil
}

// Channels returns the channel count for numTypes types and fuse size fuseSize.
func (p Policy) Channels(numTypes, fuseSize int) int {
	switch p {
	case None:
		return 1
	case PerType:
		return numTypes
	case PerTypeMerged, SignedParity:
		return numTypes + 1
	case Fuse:
		return fuseSize
	case FuseMerged:
		return fuseSize + 1
	default:
		panic(fmt.Sprintf("channel.Policy.Channels: unknown policy %d", int(p)))
	}
}

// FuseWeights returns the number of learned fuse weights.
func (p Policy) FuseWeights(numTypes, fuseSize int) int {
	if !p.Fused() {
		return 0
	}
	return fuseSize * numTypes
}
