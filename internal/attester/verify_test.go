package attester

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stablebridge/gateway-minter/internal/wire"
)

// signedMessage signs msg with a fresh key and returns the signature and
// the signer's 32-byte identity.
func signedMessage(t *testing.T, msg []byte) ([]byte, wire.Identity) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sig, err := crypto.Sign(crypto.Keccak256(msg), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var id wire.Identity
	copy(id[12:], crypto.PubkeyToAddress(key.PublicKey).Bytes())
	return sig, id
}

func TestRecover_MatchesSignerAddress(t *testing.T) {
	msg := []byte("attestation set bytes")
	sig, want := signedMessage(t, msg)

	got, err := Recover(msg, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("recovered %s, want %s", got, want)
	}
	for _, b := range got[:12] {
		if b != 0 {
			t.Fatal("identity prefix is not zero-padded")
		}
	}
}

func TestRecover_EthereumStyleV(t *testing.T) {
	msg := []byte("attestation set bytes")
	sig, want := signedMessage(t, msg)

	// 27/28 must be accepted as aliases of 0/1.
	sig[64] += 27
	got, err := Recover(msg, sig)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("recovered %s, want %s", got, want)
	}
}

func TestRecover_BadRecoveryID(t *testing.T) {
	msg := []byte("attestation set bytes")
	sig, _ := signedMessage(t, msg)
	sig[64] = 29

	if _, err := Recover(msg, sig); !errors.Is(err, ErrInvalidAttesterSignature) {
		t.Fatalf("expected ErrInvalidAttesterSignature, got %v", err)
	}
}

func TestRecover_BadLength(t *testing.T) {
	msg := []byte("attestation set bytes")
	sig, _ := signedMessage(t, msg)

	if _, err := Recover(msg, sig[:64]); !errors.Is(err, ErrInvalidAttesterSignature) {
		t.Fatalf("expected ErrInvalidAttesterSignature, got %v", err)
	}
}

func TestRecover_HighS(t *testing.T) {
	msg := []byte("attestation set bytes")
	sig, _ := signedMessage(t, msg)

	// Flip s to its high form: s' = N - s, v' = 1 - v.
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(sig[32:64])
	s.Sub(n, s)
	high := make([]byte, 65)
	copy(high, sig[:32])
	s.FillBytes(high[32:64])
	high[64] = 1 - sig[64]

	if _, err := Recover(msg, high); !errors.Is(err, ErrInvalidAttesterSignature) {
		t.Fatalf("expected ErrInvalidAttesterSignature for high-S, got %v", err)
	}
}

func TestRecover_DifferentMessage(t *testing.T) {
	sig, want := signedMessage(t, []byte("signed bytes"))

	got, err := Recover([]byte("different bytes"), sig)
	if err == nil && got == want {
		t.Fatal("recovered the signer from a different message")
	}
}

func TestVerify_Membership(t *testing.T) {
	msg := []byte("attestation set bytes")
	sig, signer := signedMessage(t, msg)

	var other wire.Identity
	other[31] = 0x01

	if _, err := Verify(msg, sig, []wire.Identity{other, signer}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := Verify(msg, sig, []wire.Identity{other}); !errors.Is(err, ErrInvalidAttesterSignature) {
		t.Fatalf("expected ErrInvalidAttesterSignature, got %v", err)
	}

	if _, err := Verify(msg, sig, nil); !errors.Is(err, ErrInvalidAttesterSignature) {
		t.Fatalf("expected ErrInvalidAttesterSignature for empty set, got %v", err)
	}
}
