package wire

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ComputeTransferSpecHash digests the semantic content of an element: two
// elements describing the same transfer share a hash regardless of
// source_tx_hash or max_block_height. The minter trusts the hash carried
// in the signed element; this helper is for the signing side and for
// audits.
func ComputeTransferSpecHash(e *ElementParams) Hash {
	var u32 [4]byte
	var u64 [8]byte

	h := crypto.NewKeccakState()

	binary.BigEndian.PutUint32(u32[:], e.SourceDomain)
	h.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], e.DestinationDomain)
	h.Write(u32[:])

	h.Write(e.SourceContract[:])
	h.Write(e.DestinationContract[:])
	h.Write(e.SourceToken[:])
	h.Write(e.DestinationToken[:])
	h.Write(e.SourceDepositor[:])
	h.Write(e.DestinationRecipient[:])
	h.Write(e.DestinationCaller[:])
	h.Write(e.SourceSigner[:])

	binary.BigEndian.PutUint64(u64[:], e.Nonce)
	h.Write(u64[:])

	value := e.Value
	if value == nil {
		value = new(uint256.Int)
	}
	v := value.Bytes32()
	h.Write(v[:])

	h.Write(e.HookData)

	var out Hash
	h.Read(out[:])
	return out
}
