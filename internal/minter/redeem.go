package minter

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/stablebridge/gateway-minter/internal/attester"
	"github.com/stablebridge/gateway-minter/internal/events"
	"github.com/stablebridge/gateway-minter/internal/runtime"
	"github.com/stablebridge/gateway-minter/internal/wire"
)

// Triplet is the per-element account set a redemption caller supplies:
// the custody reserve to pay from, the recipient token account, and the
// replay marker for the element's transfer-spec hash.
type Triplet struct {
	Custody     solana.PublicKey
	Destination solana.PublicKey
	UsedHash    solana.PublicKey
}

// RedeemWithBytes releases custodied tokens for every element of the
// attestation set, all-or-nothing. payer funds marker rent; caller is the
// transaction's designated destination caller; accounts is the flat
// ordered triplet list, three entries per element.
func (p *Program) RedeemWithBytes(payer, caller solana.PublicKey, attestation, sig []byte, accounts []solana.PublicKey) error {
	// Events are buffered and flushed only on commit: an aborted batch
	// must leave no observable trace.
	var emitted []events.Event
	err := p.led.Transact(func() error {
		var err error
		emitted, err = p.redeem(payer, caller, attestation, sig, accounts)
		return err
	})
	if err != nil {
		return err
	}
	for _, ev := range emitted {
		p.sink.Emit(ev)
	}
	return nil
}

// RedeemWithParameters is the structured entry: it re-serializes params
// to canonical bytes and runs the byte path, so both entries share a
// single signing domain.
func (p *Program) RedeemWithParameters(payer, caller solana.PublicKey, params *wire.SetParams, sig []byte, accounts []solana.PublicKey) error {
	return p.RedeemWithBytes(payer, caller, wire.EncodeSet(params), sig, accounts)
}

// redeem runs the transaction-level gates in order, then the per-element
// loop. Callers wrap it in a ledger transaction; any error rolls back
// every marker and transfer made so far.
func (p *Program) redeem(payer, caller solana.PublicKey, attestation, sig []byte, accounts []solana.PublicKey) ([]events.Event, error) {
	state, err := p.loadState()
	if err != nil {
		return nil, err
	}
	if state.Paused {
		return nil, ErrProgramPaused
	}

	set, err := wire.DecodeSet(attestation)
	if err != nil {
		return nil, err
	}

	if _, err := attester.Verify(set.Bytes(), sig, state.Attesters); err != nil {
		return nil, err
	}

	if set.Version() != state.Version {
		return nil, fmt.Errorf("%w: attestation %d, state %d", ErrVersionMismatch, set.Version(), state.Version)
	}

	elements := set.Elements()
	if len(accounts) != 3*len(elements) {
		return nil, fmt.Errorf("%w: %d accounts for %d attestations",
			ErrRemainingAccountsLengthMismatch, len(accounts), len(elements))
	}

	emitted := make([]events.Event, 0, len(elements))
	for i, elem := range elements {
		t := Triplet{
			Custody:     accounts[3*i],
			Destination: accounts[3*i+1],
			UsedHash:    accounts[3*i+2],
		}
		ev, err := p.redeemElement(payer, caller, state, elem, t)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		emitted = append(emitted, ev)
	}
	return emitted, nil
}

// redeemElement runs one element's gate sequence. Gate order is
// load-bearing: callers distinguish failures by the first gate tripped.
func (p *Program) redeemElement(payer, caller solana.PublicKey, state *State, elem wire.ElementView, t Triplet) (events.Event, error) {
	if elem.DestinationDomain() != state.LocalDomain {
		return nil, fmt.Errorf("%w: attestation %d, local %d",
			ErrDestinationDomainMismatch, elem.DestinationDomain(), state.LocalDomain)
	}
	if solana.PublicKey(elem.DestinationContract()) != p.id {
		return nil, fmt.Errorf("%w: %s", ErrDestinationContractMismatch, elem.DestinationContract())
	}
	// Equality passes: an attestation is good through its stated height.
	if elem.MaxBlockHeight() < p.clock.Slot {
		return nil, fmt.Errorf("%w: max height %d, slot %d", ErrAttestationExpired, elem.MaxBlockHeight(), p.clock.Slot)
	}
	if dc := elem.DestinationCaller(); !dc.IsZero() && solana.PublicKey(dc) != caller {
		return nil, fmt.Errorf("%w: attestation names %s", ErrDestinationCallerMismatch, dc)
	}

	value := elem.Value()
	if value.IsZero() {
		return nil, ErrInvalidAttestationValue
	}
	// Token amounts are u64; a value that cannot be paid out in one
	// transfer is rejected rather than truncated.
	if !value.IsUint64() {
		return nil, fmt.Errorf("%w: %s overflows u64", ErrInvalidAttestationValue, value)
	}
	amount := value.Uint64()

	// Consume the replay key before moving funds; a later failure in
	// this transaction rolls both back together.
	if err := p.markUsed(payer, t.UsedHash, elem.TransferSpecHash()); err != nil {
		return nil, err
	}

	mint := solana.PublicKey(elem.DestinationToken())
	if err := p.checkCustody(t.Custody, mint); err != nil {
		return nil, err
	}
	if err := p.checkDestination(t.Destination, mint, elem.DestinationRecipient()); err != nil {
		return nil, err
	}

	if err := p.token.Transfer(t.Custody, t.Destination, p.Authority(), amount); err != nil {
		return nil, err
	}

	return events.AttestationUsed{
		SourceDomain:         elem.SourceDomain(),
		DestinationDomain:    elem.DestinationDomain(),
		SourceToken:          elem.SourceToken(),
		DestinationToken:     elem.DestinationToken(),
		SourceDepositor:      elem.SourceDepositor(),
		DestinationRecipient: elem.DestinationRecipient(),
		Nonce:                elem.Nonce(),
		Value:                value,
		TransferSpecHash:     elem.TransferSpecHash(),
	}, nil
}

// checkCustody requires the provided custody account to be the derived
// custody for the element's mint: token-program-owned, initialized, and
// holding the right mint.
func (p *Program) checkCustody(provided, mint solana.PublicKey) error {
	expected, err := p.CustodyKey(mint)
	if err != nil {
		return err
	}
	if provided != expected {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidCustodyTokenAccount, provided, expected)
	}
	acct := p.led.Account(provided)
	if acct.Owner != solana.TokenProgramID {
		return fmt.Errorf("%w: not a token account", ErrInvalidCustodyTokenAccount)
	}
	custody, err := runtime.DecodeTokenAccount(acct.Data)
	if err != nil || !custody.IsInitialized() {
		return fmt.Errorf("%w: uninitialized", ErrInvalidCustodyTokenAccount)
	}
	if custody.Mint != mint {
		return fmt.Errorf("%w: custody holds %s", ErrDestinationTokenMismatch, custody.Mint)
	}
	return nil
}

// checkDestination requires the provided destination to be an
// initialized token account of the element's mint whose stored owner is
// the attested recipient.
func (p *Program) checkDestination(provided, mint solana.PublicKey, recipient wire.Identity) error {
	acct := p.led.Account(provided)
	if acct.Owner != solana.TokenProgramID {
		return fmt.Errorf("%w: not a token account", ErrInvalidDestinationTokenAccount)
	}
	dest, err := runtime.DecodeTokenAccount(acct.Data)
	if err != nil || !dest.IsInitialized() {
		return fmt.Errorf("%w: uninitialized", ErrInvalidDestinationTokenAccount)
	}
	if dest.Mint != mint {
		return fmt.Errorf("%w: destination holds %s", ErrDestinationTokenMismatch, dest.Mint)
	}
	if dest.Owner != solana.PublicKey(recipient) {
		return fmt.Errorf("%w: destination owned by %s", ErrDestinationRecipientMismatch, dest.Owner)
	}
	return nil
}
