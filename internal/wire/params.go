package wire

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// ElementParams is the structured form of one attestation element, used
// by the parameter-based redemption entry and the off-chain signer. Its
// canonical encoding is byte-identical to the wire layout, so a signature
// produced over EncodeSet output verifies against either entry.
type ElementParams struct {
	SourceDomain         uint32
	DestinationDomain    uint32
	SourceContract       Identity
	DestinationContract  Identity
	SourceToken          Identity
	DestinationToken     Identity
	SourceDepositor      Identity
	DestinationRecipient Identity
	DestinationCaller    Identity
	SourceSigner         Identity
	SourceTxHash         Hash
	Nonce                uint64
	MaxBlockHeight       uint64
	TransferSpecHash     Hash
	Value                *uint256.Int
	HookData             []byte
}

// SetParams is the structured form of a whole attestation set.
type SetParams struct {
	Version  uint32
	Elements []ElementParams
}

// EncodedLen returns the canonical encoding size of the set.
func (p *SetParams) EncodedLen() int {
	n := SetHeaderLen
	for i := range p.Elements {
		n += ElementHeaderLen + len(p.Elements[i].HookData)
	}
	return n
}

// EncodeSet produces the canonical wire bytes for the set. The output of
// EncodeSet round-trips through DecodeSet without change; there is exactly
// one encoding per logical set.
func EncodeSet(p *SetParams) []byte {
	out := make([]byte, 0, p.EncodedLen())

	var hdr [SetHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[0:4], Magic)
	binary.BigEndian.PutUint32(hdr[4:8], p.Version)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(p.Elements)))
	out = append(out, hdr[:]...)

	for i := range p.Elements {
		out = appendElement(out, &p.Elements[i])
	}
	return out
}

func appendElement(out []byte, e *ElementParams) []byte {
	var u32 [4]byte
	var u64 [8]byte

	binary.BigEndian.PutUint32(u32[:], e.SourceDomain)
	out = append(out, u32[:]...)
	binary.BigEndian.PutUint32(u32[:], e.DestinationDomain)
	out = append(out, u32[:]...)

	out = append(out, e.SourceContract[:]...)
	out = append(out, e.DestinationContract[:]...)
	out = append(out, e.SourceToken[:]...)
	out = append(out, e.DestinationToken[:]...)
	out = append(out, e.SourceDepositor[:]...)
	out = append(out, e.DestinationRecipient[:]...)
	out = append(out, e.DestinationCaller[:]...)
	out = append(out, e.SourceSigner[:]...)
	out = append(out, e.SourceTxHash[:]...)

	binary.BigEndian.PutUint64(u64[:], e.Nonce)
	out = append(out, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], e.MaxBlockHeight)
	out = append(out, u64[:]...)

	out = append(out, e.TransferSpecHash[:]...)

	value := e.Value
	if value == nil {
		value = new(uint256.Int)
	}
	v := value.Bytes32()
	out = append(out, v[:]...)

	binary.BigEndian.PutUint32(u32[:], uint32(len(e.HookData)))
	out = append(out, u32[:]...)
	out = append(out, e.HookData...)
	return out
}

// Params copies an element view into its structured form.
func (e ElementView) Params() ElementParams {
	hook := make([]byte, len(e.HookData()))
	copy(hook, e.HookData())
	return ElementParams{
		SourceDomain:         e.SourceDomain(),
		DestinationDomain:    e.DestinationDomain(),
		SourceContract:       e.SourceContract(),
		DestinationContract:  e.DestinationContract(),
		SourceToken:          e.SourceToken(),
		DestinationToken:     e.DestinationToken(),
		SourceDepositor:      e.SourceDepositor(),
		DestinationRecipient: e.DestinationRecipient(),
		DestinationCaller:    e.DestinationCaller(),
		SourceSigner:         e.SourceSigner(),
		SourceTxHash:         e.SourceTxHash(),
		Nonce:                e.Nonce(),
		MaxBlockHeight:       e.MaxBlockHeight(),
		TransferSpecHash:     e.TransferSpecHash(),
		Value:                e.Value(),
		HookData:             hook,
	}
}
