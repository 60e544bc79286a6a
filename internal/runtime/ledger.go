// Package runtime models the host chain's account machinery: a
// pubkey-addressed ledger with transaction-scoped rollback, the system
// program's account lifecycle operations, rent, a slot clock, and an
// SPL-compatible token engine. The minter core runs against this package
// the way the original runs against its chain runtime.
package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrInsufficientLamports = errors.New("insufficient lamports")
	ErrAccountInUse         = errors.New("account already in use")
)

// Account is the on-ledger state of one address. A missing account reads
// as the zero value: no lamports, no data, system-owned.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Exists reports whether the account holds any state at all.
func (a *Account) Exists() bool {
	return a.Lamports != 0 || len(a.Data) != 0 || a.Owner != solana.SystemProgramID
}

// clone deep-copies the account for transaction snapshots.
func (a *Account) clone() *Account {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Account{Lamports: a.Lamports, Owner: a.Owner, Data: data}
}

// Ledger is the account store. All mutation happens inside Transact,
// which gives callers the host's all-or-nothing transaction semantics:
// an error from the callback restores every account to its pre-call
// state.
type Ledger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*Account
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[solana.PublicKey]*Account)}
}

// Account returns the live account at key, materializing a zero-value
// system-owned entry if none exists yet. The returned pointer aliases
// ledger state; mutations through it are visible immediately.
func (l *Ledger) Account(key solana.PublicKey) *Account {
	acct, ok := l.accounts[key]
	if !ok {
		acct = &Account{Owner: solana.SystemProgramID}
		l.accounts[key] = acct
	}
	return acct
}

// Transact runs fn atomically. On error the ledger is restored to the
// snapshot taken at entry and the error is returned unchanged. Nested
// transactions are not supported; concurrent callers serialize on the
// ledger lock, mirroring the host's account-level write locking at the
// granularity we need.
func (l *Ledger) Transact(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := make(map[solana.PublicKey]*Account, len(l.accounts))
	for key, acct := range l.accounts {
		snapshot[key] = acct.clone()
	}

	if err := fn(); err != nil {
		l.accounts = snapshot
		return err
	}
	return nil
}

// CreateAccount funds a brand-new account from payer, sizes its data,
// and hands ownership to owner. Fails if the target already carries
// lamports or data.
func (l *Ledger) CreateAccount(payer, target solana.PublicKey, lamports uint64, space int, owner solana.PublicKey) error {
	dst := l.Account(target)
	if dst.Lamports != 0 || len(dst.Data) != 0 {
		return fmt.Errorf("%w: %s", ErrAccountInUse, target)
	}
	if err := l.TransferLamports(payer, target, lamports); err != nil {
		return err
	}
	dst.Data = make([]byte, space)
	dst.Owner = owner
	return nil
}

// Allocate sizes the data of a system-owned, zero-data account.
func (l *Ledger) Allocate(target solana.PublicKey, space int) error {
	acct := l.Account(target)
	if len(acct.Data) != 0 || acct.Owner != solana.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountInUse, target)
	}
	acct.Data = make([]byte, space)
	return nil
}

// Assign hands ownership of a system-owned account to owner.
func (l *Ledger) Assign(target, owner solana.PublicKey) error {
	acct := l.Account(target)
	if acct.Owner != solana.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountInUse, target)
	}
	acct.Owner = owner
	return nil
}

// TransferLamports moves lamports between accounts.
func (l *Ledger) TransferLamports(from, to solana.PublicKey, lamports uint64) error {
	src := l.Account(from)
	if src.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientLamports, from, src.Lamports, lamports)
	}
	src.Lamports -= lamports
	l.Account(to).Lamports += lamports
	return nil
}

// Fund mints lamports into an account out of thin air. Test and genesis
// setup only.
func (l *Ledger) Fund(key solana.PublicKey, lamports uint64) {
	l.Account(key).Lamports += lamports
}

// Clock supplies the current slot. Tests inject their own.
type Clock struct {
	Slot uint64
}

// Rent computes rent-exempt minimum balances.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

// accountStorageOverhead is the per-account metadata charge included in
// rent calculations.
const accountStorageOverhead = 128

// DefaultRent returns the mainnet rent parameters.
func DefaultRent() Rent {
	return Rent{LamportsPerByteYear: 3480, ExemptionThreshold: 2.0}
}

// MinimumBalance returns the lamports an account of the given data size
// must hold to be rent-exempt.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	bytes := uint64(accountStorageOverhead + dataLen)
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}
