// Package wire implements the attestation-set binary format: a zero-copy
// parser producing non-owning views over the input buffer, and the
// canonical encoder shared by the structured redemption entry and the
// off-chain signer. All integers are big-endian; there is no padding.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Sentinel errors returned by DecodeSet.
var (
	ErrAttestationTooShort      = errors.New("attestation too short")
	ErrAttestationTooLong       = errors.New("attestation too long")
	ErrAttestationMagicMismatch = errors.New("attestation magic mismatch")
	ErrEmptyAttestationSet      = errors.New("empty attestation set")
)

// Magic is the leading 4 bytes of every attestation set.
const Magic uint32 = 0xFF6FB334

// Wire layout constants. The set header is magic + version + count; each
// element carries a fixed header followed by hook_data_length bytes of
// hook payload.
const (
	SetHeaderLen     = 12
	ElementHeaderLen = 380

	offSourceDomain         = 0
	offDestinationDomain    = 4
	offSourceContract       = 8
	offDestinationContract  = 40
	offSourceToken          = 72
	offDestinationToken     = 104
	offSourceDepositor      = 136
	offDestinationRecipient = 168
	offDestinationCaller    = 200
	offSourceSigner         = 232
	offSourceTxHash         = 264
	offNonce                = 296
	offMaxBlockHeight       = 304
	offTransferSpecHash     = 312
	offValue                = 344
	offHookDataLength       = 376
)

// Identity is an opaque 32-byte actor, contract, or token identifier.
// EVM-native values occupy the low 20 bytes with a 12-byte zero prefix;
// the distinction only matters at the signature-verifier boundary.
type Identity [32]byte

// IsZero reports whether the identity is the all-zero wildcard.
func (id Identity) IsZero() bool { return id == Identity{} }

// Bytes returns the identity as a byte slice.
func (id Identity) Bytes() []byte { return id[:] }

func (id Identity) String() string { return fmt.Sprintf("%x", id[:]) }

// MarshalText renders the identity as lowercase hex in JSON and logs.
func (id Identity) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// Hash is a 32-byte digest (transfer-spec hashes, source tx hashes).
type Hash [32]byte

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// MarshalText renders the hash as lowercase hex in JSON and logs.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// SetView is a parsed, non-owning view over an attestation set. The
// underlying buffer must not be mutated while the view is in use.
type SetView struct {
	raw      []byte
	elements []ElementView
}

// ElementView is a non-owning view over a single attestation element.
// Accessors decode directly from the buffer; nothing is copied until a
// field is read.
type ElementView struct {
	raw []byte // fixed header plus hook data, exactly bounded
}

// DecodeSet parses buf into a SetView. No allocation beyond the element
// index occurs; every element view is an offset into buf.
//
// The set must be exactly bounded: every element's hook_data_length must
// account for precisely the bytes up to the next element, and no bytes
// may remain once num_attestations elements have been consumed.
func DecodeSet(buf []byte) (*SetView, error) {
	if len(buf) < SetHeaderLen {
		return nil, fmt.Errorf("%w: %d byte header, need %d", ErrAttestationTooShort, len(buf), SetHeaderLen)
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != Magic {
		return nil, fmt.Errorf("%w: %#08x", ErrAttestationMagicMismatch, magic)
	}
	count := binary.BigEndian.Uint32(buf[8:12])
	if count == 0 {
		return nil, ErrEmptyAttestationSet
	}

	elements := make([]ElementView, 0, count)
	rest := buf[SetHeaderLen:]
	for i := uint32(0); i < count; i++ {
		if len(rest) < ElementHeaderLen {
			return nil, fmt.Errorf("%w: element %d header", ErrAttestationTooShort, i)
		}
		hookLen := binary.BigEndian.Uint32(rest[offHookDataLength : offHookDataLength+4])
		total := ElementHeaderLen + int(hookLen)
		if len(rest) < total {
			return nil, fmt.Errorf("%w: element %d hook data", ErrAttestationTooShort, i)
		}
		elements = append(elements, ElementView{raw: rest[:total]})
		rest = rest[total:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrAttestationTooLong, len(rest))
	}

	return &SetView{raw: buf, elements: elements}, nil
}

// Bytes returns the raw set bytes the view was parsed from. These are the
// bytes the attester signature covers.
func (s *SetView) Bytes() []byte { return s.raw }

// Version returns the set-level format version.
func (s *SetView) Version() uint32 { return binary.BigEndian.Uint32(s.raw[4:8]) }

// NumAttestations returns the declared element count.
func (s *SetView) NumAttestations() uint32 { return binary.BigEndian.Uint32(s.raw[8:12]) }

// Elements returns the parsed element views in wire order.
func (s *SetView) Elements() []ElementView { return s.elements }

func (e ElementView) identity(off int) Identity {
	var id Identity
	copy(id[:], e.raw[off:off+32])
	return id
}

func (e ElementView) SourceDomain() uint32 { return binary.BigEndian.Uint32(e.raw[offSourceDomain:]) }

func (e ElementView) DestinationDomain() uint32 {
	return binary.BigEndian.Uint32(e.raw[offDestinationDomain:])
}

func (e ElementView) SourceContract() Identity       { return e.identity(offSourceContract) }
func (e ElementView) DestinationContract() Identity  { return e.identity(offDestinationContract) }
func (e ElementView) SourceToken() Identity          { return e.identity(offSourceToken) }
func (e ElementView) DestinationToken() Identity     { return e.identity(offDestinationToken) }
func (e ElementView) SourceDepositor() Identity      { return e.identity(offSourceDepositor) }
func (e ElementView) DestinationRecipient() Identity { return e.identity(offDestinationRecipient) }
func (e ElementView) DestinationCaller() Identity    { return e.identity(offDestinationCaller) }
func (e ElementView) SourceSigner() Identity         { return e.identity(offSourceSigner) }

func (e ElementView) SourceTxHash() Hash {
	var h Hash
	copy(h[:], e.raw[offSourceTxHash:offSourceTxHash+32])
	return h
}

func (e ElementView) Nonce() uint64 { return binary.BigEndian.Uint64(e.raw[offNonce:]) }

func (e ElementView) MaxBlockHeight() uint64 {
	return binary.BigEndian.Uint64(e.raw[offMaxBlockHeight:])
}

func (e ElementView) TransferSpecHash() Hash {
	var h Hash
	copy(h[:], e.raw[offTransferSpecHash:offTransferSpecHash+32])
	return h
}

// Value returns the 256-bit transfer value.
func (e ElementView) Value() *uint256.Int {
	return new(uint256.Int).SetBytes32(e.raw[offValue : offValue+32])
}

// HookData returns the element's hook payload. The slice aliases the
// original buffer.
func (e ElementView) HookData() []byte { return e.raw[ElementHeaderLen:] }

// Equal reports whether two views decode identical bytes.
func (e ElementView) Equal(o ElementView) bool { return bytes.Equal(e.raw, o.raw) }
