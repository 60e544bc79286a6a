package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SPL token account layout sizes.
const (
	TokenAccountLen = 165
	MintLen         = 82
)

// Token account state byte.
const (
	tokenStateUninitialized = 0
	tokenStateInitialized   = 1
)

var (
	ErrInsufficientFunds      = errors.New("token: insufficient funds")
	ErrUninitializedAccount   = errors.New("token: account not initialized")
	ErrMintMismatch           = errors.New("token: account mint mismatch")
	ErrAuthorityMismatch      = errors.New("token: owner does not match authority")
	ErrNotTokenProgramAccount = errors.New("token: account not owned by token program")
)

// TokenAccount is the decoded form of the 165-byte SPL token account
// layout. The delegate, is_native, delegated_amount and close-authority
// fields are written as zeros on encode and skipped on decode; the minter
// never sets delegates or native balances.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
	State  uint8
}

// IsInitialized reports whether the account has been through
// InitializeAccount.
func (a *TokenAccount) IsInitialized() bool { return a.State == tokenStateInitialized }

// MarshalBinary encodes the account into the full SPL wire layout.
func (a *TokenAccount) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, TokenAccountLen)
	var u64 [8]byte

	buf = append(buf, a.Mint[:]...)
	buf = append(buf, a.Owner[:]...)
	binary.LittleEndian.PutUint64(u64[:], a.Amount)
	buf = append(buf, u64[:]...)
	buf = append(buf, make([]byte, 36)...) // delegate COption, none
	buf = append(buf, a.State)
	buf = append(buf, make([]byte, 12)...) // is_native COption, none
	buf = append(buf, make([]byte, 8)...)  // delegated_amount
	buf = append(buf, make([]byte, 36)...) // close_authority COption, none
	if len(buf) != TokenAccountLen {
		return nil, fmt.Errorf("token: encoded %d bytes, want %d", len(buf), TokenAccountLen)
	}
	return buf, nil
}

// DecodeTokenAccount parses the SPL token account layout.
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) != TokenAccountLen {
		return nil, fmt.Errorf("token: account data is %d bytes, want %d", len(data), TokenAccountLen)
	}
	dec := bin.NewBinDecoder(data)

	var acct TokenAccount
	mint, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	copy(acct.Mint[:], mint)
	owner, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	copy(acct.Owner[:], owner)
	if acct.Amount, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	if _, err = dec.ReadNBytes(36); err != nil { // delegate COption
		return nil, err
	}
	if acct.State, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	return &acct, nil
}

// Mint is the decoded form of the 82-byte SPL mint layout.
type Mint struct {
	Authority   solana.PublicKey
	Supply      uint64
	Decimals    uint8
	Initialized bool
}

// MarshalBinary encodes the mint into the SPL wire layout.
func (m *Mint) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, MintLen)
	var u64 [8]byte

	// mint_authority COption: present.
	buf = append(buf, 1, 0, 0, 0)
	buf = append(buf, m.Authority[:]...)
	binary.LittleEndian.PutUint64(u64[:], m.Supply)
	buf = append(buf, u64[:]...)
	buf = append(buf, m.Decimals)
	if m.Initialized {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, make([]byte, 36)...) // freeze_authority COption, none
	if len(buf) != MintLen {
		return nil, fmt.Errorf("token: encoded %d bytes, want %d", len(buf), MintLen)
	}
	return buf, nil
}

// DecodeMint parses the SPL mint layout.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintLen {
		return nil, fmt.Errorf("token: mint data is %d bytes, want %d", len(data), MintLen)
	}
	dec := bin.NewBinDecoder(data)

	var m Mint
	if _, err := dec.ReadNBytes(4); err != nil { // authority COption tag
		return nil, err
	}
	authority, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, err
	}
	copy(m.Authority[:], authority)
	if m.Supply, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	if m.Decimals, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	init, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	m.Initialized = init == 1
	return &m, nil
}

// Token is the in-process token engine. It enforces the same checks the
// SPL token program would on the sub-calls the minter issues, and its
// errors surface to redemption callers verbatim.
type Token struct {
	led *Ledger
}

// NewToken creates a token engine bound to the ledger.
func NewToken(led *Ledger) *Token {
	return &Token{led: led}
}

// InitializeMint writes a fresh mint into a token-program-owned account.
func (t *Token) InitializeMint(key solana.PublicKey, decimals uint8, authority solana.PublicKey) error {
	acct := t.led.Account(key)
	if acct.Owner != solana.TokenProgramID {
		return fmt.Errorf("%w: %s", ErrNotTokenProgramAccount, key)
	}
	m := Mint{Authority: authority, Decimals: decimals, Initialized: true}
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	acct.Data = data
	return nil
}

// InitializeAccount writes a fresh zero-balance token account for mint
// owned by owner.
func (t *Token) InitializeAccount(key, mint, owner solana.PublicKey) error {
	acct := t.led.Account(key)
	if acct.Owner != solana.TokenProgramID {
		return fmt.Errorf("%w: %s", ErrNotTokenProgramAccount, key)
	}
	ta := TokenAccount{Mint: mint, Owner: owner, State: tokenStateInitialized}
	data, err := ta.MarshalBinary()
	if err != nil {
		return err
	}
	acct.Data = data
	return nil
}

// Transfer moves amount from one token account to another. The authority
// must be the source account's owner; the runtime trusts the caller's
// claim that the authority signed (program-derived signers included).
func (t *Token) Transfer(from, to, authority solana.PublicKey, amount uint64) error {
	src, err := t.loadInitialized(from)
	if err != nil {
		return err
	}
	dst, err := t.loadInitialized(to)
	if err != nil {
		return err
	}
	if src.Owner != authority {
		return fmt.Errorf("%w: %s", ErrAuthorityMismatch, from)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, from, to)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from, src.Amount, amount)
	}
	src.Amount -= amount
	dst.Amount += amount
	if err := t.store(from, src); err != nil {
		return err
	}
	return t.store(to, dst)
}

// MintTo credits amount to a token account and bumps the mint supply.
// The authority must be the mint authority.
func (t *Token) MintTo(mint, dest, authority solana.PublicKey, amount uint64) error {
	m, err := t.loadMint(mint)
	if err != nil {
		return err
	}
	if m.Authority != authority {
		return fmt.Errorf("%w: mint %s", ErrAuthorityMismatch, mint)
	}
	dst, err := t.loadInitialized(dest)
	if err != nil {
		return err
	}
	if dst.Mint != mint {
		return fmt.Errorf("%w: %s", ErrMintMismatch, dest)
	}
	m.Supply += amount
	dst.Amount += amount
	if err := t.storeMint(mint, m); err != nil {
		return err
	}
	return t.store(dest, dst)
}

// Burn debits amount from a token account and reduces the mint supply.
func (t *Token) Burn(key, mint, authority solana.PublicKey, amount uint64) error {
	acct, err := t.loadInitialized(key)
	if err != nil {
		return err
	}
	if acct.Mint != mint {
		return fmt.Errorf("%w: %s", ErrMintMismatch, key)
	}
	if acct.Owner != authority {
		return fmt.Errorf("%w: %s", ErrAuthorityMismatch, key)
	}
	if acct.Amount < amount {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, key, acct.Amount, amount)
	}
	m, err := t.loadMint(mint)
	if err != nil {
		return err
	}
	acct.Amount -= amount
	m.Supply -= amount
	if err := t.store(key, acct); err != nil {
		return err
	}
	return t.storeMint(mint, m)
}

// Balance returns the current amount in a token account.
func (t *Token) Balance(key solana.PublicKey) (uint64, error) {
	acct, err := t.loadInitialized(key)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

func (t *Token) loadInitialized(key solana.PublicKey) (*TokenAccount, error) {
	raw := t.led.Account(key)
	if raw.Owner != solana.TokenProgramID {
		return nil, fmt.Errorf("%w: %s", ErrNotTokenProgramAccount, key)
	}
	acct, err := DecodeTokenAccount(raw.Data)
	if err != nil {
		return nil, err
	}
	if !acct.IsInitialized() {
		return nil, fmt.Errorf("%w: %s", ErrUninitializedAccount, key)
	}
	return acct, nil
}

func (t *Token) loadMint(key solana.PublicKey) (*Mint, error) {
	raw := t.led.Account(key)
	if raw.Owner != solana.TokenProgramID {
		return nil, fmt.Errorf("%w: %s", ErrNotTokenProgramAccount, key)
	}
	m, err := DecodeMint(raw.Data)
	if err != nil {
		return nil, err
	}
	if !m.Initialized {
		return nil, fmt.Errorf("%w: mint %s", ErrUninitializedAccount, key)
	}
	return m, nil
}

func (t *Token) store(key solana.PublicKey, acct *TokenAccount) error {
	data, err := acct.MarshalBinary()
	if err != nil {
		return err
	}
	t.led.Account(key).Data = data
	return nil
}

func (t *Token) storeMint(key solana.PublicKey, m *Mint) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	t.led.Account(key).Data = data
	return nil
}
