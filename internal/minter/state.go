package minter

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/stablebridge/gateway-minter/internal/wire"
)

// MaxAttesters bounds the enabled-attester list.
const MaxAttesters = 10

// Program-derived address seeds.
const (
	SeedConfig           = "gateway_minter"
	SeedCustody          = "gateway_minter_custody"
	SeedUsedTransferSpec = "used_transfer_spec_hash"
)

// Account discriminators. The marker discriminator doubles as the
// replay sentinel: a program-owned marker carrying these two bytes has
// consumed its transfer-spec hash.
var (
	configDiscriminator   = [2]byte{0x6D, 0x01}
	usedHashDiscriminator = [2]byte{0x75, 0x48}
)

// UsedHashAccountLen is the full size of a replay marker account.
const UsedHashAccountLen = 2

// State is the configuration singleton held in the config PDA account.
// It is created once at initialization, mutated only by administrative
// operations, and read by every redemption.
type State struct {
	LocalDomain     uint32
	Version         uint32
	Owner           wire.Identity
	PendingOwner    wire.Identity // all-zero when no transfer is in flight
	Pauser          wire.Identity
	TokenController wire.Identity
	Paused          bool
	Attesters       []wire.Identity // bounded at MaxAttesters, no duplicates, never all-zero
	Bump            uint8           // config PDA bump seed, also the custody authority derivation
}

// stateAccountLen is the fixed on-ledger footprint: discriminator,
// scalar fields, and a full-capacity attester table behind a count.
const stateAccountLen = 2 + 4 + 4 + 32 + 32 + 32 + 32 + 1 + 1 + MaxAttesters*32 + 1

// MarshalBinary encodes the state into its fixed-size account layout.
func (s *State) MarshalBinary() ([]byte, error) {
	if len(s.Attesters) > MaxAttesters {
		return nil, fmt.Errorf("%w: %d attesters", ErrAttesterLimitExceeded, len(s.Attesters))
	}

	var buf bytes.Buffer
	buf.Grow(stateAccountLen)
	buf.Write(configDiscriminator[:])

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], s.LocalDomain)
	buf.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], s.Version)
	buf.Write(u32[:])

	buf.Write(s.Owner[:])
	buf.Write(s.PendingOwner[:])
	buf.Write(s.Pauser[:])
	buf.Write(s.TokenController[:])

	if s.Paused {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	buf.WriteByte(uint8(len(s.Attesters)))
	for _, a := range s.Attesters {
		buf.Write(a[:])
	}
	buf.Write(make([]byte, (MaxAttesters-len(s.Attesters))*32))

	buf.WriteByte(s.Bump)
	return buf.Bytes(), nil
}

// UnmarshalState decodes a config account's data.
func UnmarshalState(data []byte) (*State, error) {
	if len(data) != stateAccountLen {
		return nil, fmt.Errorf("%w: config account is %d bytes, want %d", ErrNotInitialized, len(data), stateAccountLen)
	}
	if data[0] != configDiscriminator[0] || data[1] != configDiscriminator[1] {
		return nil, fmt.Errorf("%w: bad config discriminator", ErrNotInitialized)
	}

	dec := bin.NewBinDecoder(data[2:])
	var s State
	var err error

	if s.LocalDomain, err = dec.ReadUint32(binary.LittleEndian); err != nil {
		return nil, err
	}
	if s.Version, err = dec.ReadUint32(binary.LittleEndian); err != nil {
		return nil, err
	}

	for _, dst := range []*wire.Identity{&s.Owner, &s.PendingOwner, &s.Pauser, &s.TokenController} {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		copy(dst[:], raw)
	}

	paused, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	s.Paused = paused == 1

	count, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	if count > MaxAttesters {
		return nil, fmt.Errorf("%w: %d attesters in config account", ErrAttesterLimitExceeded, count)
	}
	s.Attesters = make([]wire.Identity, count)
	for i := range s.Attesters {
		raw, err := dec.ReadNBytes(32)
		if err != nil {
			return nil, err
		}
		copy(s.Attesters[i][:], raw)
	}
	if _, err := dec.ReadNBytes((MaxAttesters - int(count)) * 32); err != nil {
		return nil, err
	}

	if s.Bump, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	return &s, nil
}

// hasAttester reports whether the identity is enabled.
func (s *State) hasAttester(id wire.Identity) bool {
	for _, a := range s.Attesters {
		if a == id {
			return true
		}
	}
	return false
}
