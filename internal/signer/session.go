// Package signer is the off-chain attestation signing service. It holds
// the attester key in locked memory and produces the 65-byte secp256k1
// signatures over canonical attestation-set bytes that the minter
// verifies.
package signer

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/stablebridge/gateway-minter/internal/wire"
)

var (
	ErrNoActiveSession    = errors.New("no active session")
	ErrSessionExpired     = errors.New("session expired")
	ErrValueLimitExceeded = errors.New("cumulative value limit exceeded")
)

// SessionManager holds a decrypted attester key in locked memory with TTL
// and cumulative value-limit enforcement. The key is encrypted at rest via
// memguard.Enclave and only opened momentarily during Sign.
type SessionManager struct {
	mu            sync.RWMutex
	enclave       *memguard.Enclave // encrypted-at-rest key buffer
	identity      wire.Identity     // attester identity as the minter stores it
	expiresAt     time.Time
	maxValueLimit *big.Int // token atomic units across all signed sets
	valueUsed     *big.Int // cumulative value signed
	ttl           time.Duration
}

// NewSessionManager creates a manager with the given default TTL.
// No session is active until Activate is called.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:       ttl,
		valueUsed: new(big.Int),
	}
}

// Activate seals keyBytes into a memguard Enclave, derives the attester
// identity from the private key, sets expiry, and resets counters.
// The caller MUST zero their copy of keyBytes after calling this.
func (sm *SessionManager) Activate(keyBytes []byte, maxValueLimit *big.Int) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Derive the identity before sealing the key.
	privKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(privKey.PublicKey)

	// Clear any previous session.
	sm.enclave = nil

	sm.enclave = memguard.NewEnclave(keyBytes)
	sm.expiresAt = time.Now().Add(sm.ttl)
	sm.maxValueLimit = new(big.Int).Set(maxValueLimit)
	sm.valueUsed = new(big.Int)
	sm.identity = wire.Identity{}
	copy(sm.identity[12:], addr.Bytes())

	return nil
}

// Sign parses raw attestation-set bytes, opens the enclave momentarily,
// signs their Keccak-256 digest, and returns a 65-byte signature
// (r ‖ s ‖ v, v ∈ {27,28}). It enforces session active, TTL, and the
// cumulative value limit over the set's total element value.
func (sm *SessionManager) Sign(raw []byte) ([]byte, error) {
	set, err := wire.DecodeSet(raw)
	if err != nil {
		return nil, fmt.Errorf("refusing to sign: %w", err)
	}
	total := new(big.Int)
	for _, elem := range set.Elements() {
		total.Add(total, elem.Value().ToBig())
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.enclave == nil {
		return nil, ErrNoActiveSession
	}

	if sm.isExpired() {
		sm.destroyLocked()
		return nil, ErrSessionExpired
	}

	// Check cumulative value limit.
	newTotal := new(big.Int).Add(sm.valueUsed, total)
	if newTotal.Cmp(sm.maxValueLimit) > 0 {
		return nil, ErrValueLimitExceeded
	}

	digest := crypto.Keccak256(raw)

	// Open the enclave into a LockedBuffer for signing.
	buf, err := sm.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open enclave: %w", err)
	}

	privKey, err := crypto.ToECDSA(buf.Bytes())
	buf.Destroy()
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	sig, err := crypto.Sign(digest, privKey)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}

	// Adjust v value for Ethereum compatibility (0/1 → 27/28).
	sig[64] += 27

	// Commit value usage only after successful signing.
	sm.valueUsed.Set(newTotal)

	return sig, nil
}

// SignSet canonically encodes a structured set and signs the result,
// returning both the bytes and the signature. The minter's byte entry
// verifies signatures over exactly these bytes.
func (sm *SessionManager) SignSet(params *wire.SetParams) ([]byte, []byte, error) {
	raw := wire.EncodeSet(params)
	sig, err := sm.Sign(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, sig, nil
}

// Status returns a read-only snapshot of the current session state.
// Monetary values are returned as decimal strings.
func (sm *SessionManager) Status() (active bool, ttlRemaining int64, maxLimit string, used string, identity string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if sm.enclave == nil {
		return false, 0, "0", "0", ""
	}

	if sm.isExpired() {
		return false, 0, "0", "0", ""
	}

	remaining := time.Until(sm.expiresAt).Seconds()
	if remaining < 0 {
		remaining = 0
	}

	return true, int64(remaining), sm.maxValueLimit.String(), sm.valueUsed.String(), sm.identity.String()
}

// Destroy zeroes and destroys the enclave, resetting all session state.
func (sm *SessionManager) Destroy() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.destroyLocked()
}

// destroyLocked performs the actual cleanup. Caller must hold sm.mu.
func (sm *SessionManager) destroyLocked() {
	sm.enclave = nil
	sm.identity = wire.Identity{}
	sm.valueUsed = new(big.Int)
	sm.maxValueLimit = nil
}

// isExpired checks whether the session TTL has elapsed. Caller must hold sm.mu.
func (sm *SessionManager) isExpired() bool {
	return time.Now().After(sm.expiresAt)
}
