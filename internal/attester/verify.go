// Package attester verifies attestation-set signatures. The scheme is
// fixed: secp256k1 ECDSA over the Keccak-256 of the raw set bytes, low-S
// canonical form, 65-byte r‖s‖v encoding with v in {0,1} or {27,28}.
package attester

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stablebridge/gateway-minter/internal/wire"
)

// ErrInvalidAttesterSignature covers every verification failure: bad
// length, non-canonical S, bad recovery id, recovery failure, or a
// recovered signer outside the enabled set.
var ErrInvalidAttesterSignature = errors.New("invalid attester signature")

// SignatureLength is the fixed r(32) ‖ s(32) ‖ v(1) encoding size.
const SignatureLength = 65

// Recover returns the 32-byte identity of the signer of message: the
// low 20 bytes are the signer's EVM address (Keccak-256 of the recovered
// public key's X‖Y, last 20 bytes), the high 12 bytes are zero.
func Recover(message, sig []byte) (wire.Identity, error) {
	var id wire.Identity

	if len(sig) != SignatureLength {
		return id, fmt.Errorf("%w: %d byte signature", ErrInvalidAttesterSignature, len(sig))
	}

	// Normalize the Ethereum-style recovery id.
	v := sig[64]
	if v == 27 || v == 28 {
		v -= 27
	}
	if v > 1 {
		return id, fmt.Errorf("%w: recovery id %d", ErrInvalidAttesterSignature, sig[64])
	}

	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	// Homestead rules reject S above the curve half-order.
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return id, fmt.Errorf("%w: non-canonical signature values", ErrInvalidAttesterSignature)
	}

	canonical := make([]byte, SignatureLength)
	copy(canonical, sig[:64])
	canonical[64] = v

	digest := crypto.Keccak256(message)
	pubkey, err := crypto.Ecrecover(digest, canonical)
	if err != nil {
		return id, fmt.Errorf("%w: recover: %v", ErrInvalidAttesterSignature, err)
	}

	// pubkey is the 65-byte uncompressed form (0x04 ‖ X ‖ Y). The EVM
	// address is the last 20 bytes of Keccak(X ‖ Y).
	copy(id[12:], crypto.Keccak256(pubkey[1:])[12:])
	return id, nil
}

// Verify recovers the signer of message and requires exact membership in
// enabled. The comparison is whole-identity equality; the 12-byte zero
// prefix must match too.
func Verify(message, sig []byte, enabled []wire.Identity) (wire.Identity, error) {
	signer, err := Recover(message, sig)
	if err != nil {
		return wire.Identity{}, err
	}
	for _, id := range enabled {
		if id == signer {
			return signer, nil
		}
	}
	return wire.Identity{}, fmt.Errorf("%w: signer %s not enabled", ErrInvalidAttesterSignature, signer)
}
