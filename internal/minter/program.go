// Package minter implements the gateway minter core: the configuration
// singleton and its authorization guards, the replay-marker manager, the
// per-element account-constraint checker, and the batched release engine
// that moves custodied tokens on the strength of signed attestations.
package minter

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/stablebridge/gateway-minter/internal/events"
	"github.com/stablebridge/gateway-minter/internal/runtime"
	"github.com/stablebridge/gateway-minter/internal/wire"
)

// Program binds the minter to its ledger, clock, rent model, and event
// sink. One Program serves one deployment (one config singleton).
type Program struct {
	id    solana.PublicKey
	led   *runtime.Ledger
	token *runtime.Token
	clock *runtime.Clock
	rent  runtime.Rent
	sink  events.Sink

	configKey  solana.PublicKey
	configBump uint8
}

// nopSink swallows events when no sink is wired (tests that do not care).
type nopSink struct{}

func (nopSink) Emit(events.Event) {}

// New creates a Program addressed by id against the given runtime. Pass
// a nil sink to discard events.
func New(id solana.PublicKey, led *runtime.Ledger, clock *runtime.Clock, rent runtime.Rent, sink events.Sink) (*Program, error) {
	if sink == nil {
		sink = nopSink{}
	}
	configKey, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedConfig)}, id)
	if err != nil {
		return nil, fmt.Errorf("derive config address: %w", err)
	}
	return &Program{
		id:         id,
		led:        led,
		token:      runtime.NewToken(led),
		clock:      clock,
		rent:       rent,
		sink:       sink,
		configKey:  configKey,
		configBump: bump,
	}, nil
}

// ID returns the program address.
func (p *Program) ID() solana.PublicKey { return p.id }

// ConfigKey returns the config singleton's derived address.
func (p *Program) ConfigKey() solana.PublicKey { return p.configKey }

// Authority returns the program-derived signing authority that owns every
// custody account. It is the config PDA itself.
func (p *Program) Authority() solana.PublicKey { return p.configKey }

// CustodyKey derives the custody token account address for a mint.
func (p *Program) CustodyKey(mint solana.PublicKey) (solana.PublicKey, error) {
	key, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedCustody), mint[:]}, p.id)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive custody address: %w", err)
	}
	return key, nil
}

// UsedHashKey derives the replay-marker address for a transfer-spec hash.
func (p *Program) UsedHashKey(hash wire.Hash) (solana.PublicKey, error) {
	key, _, err := solana.FindProgramAddress([][]byte{[]byte(SeedUsedTransferSpec), hash[:]}, p.id)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive used-hash address: %w", err)
	}
	return key, nil
}

// loadState reads and decodes the config singleton.
func (p *Program) loadState() (*State, error) {
	acct := p.led.Account(p.configKey)
	if acct.Owner != p.id {
		return nil, ErrNotInitialized
	}
	return UnmarshalState(acct.Data)
}

// saveState writes the config singleton back.
func (p *Program) saveState(s *State) error {
	data, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	p.led.Account(p.configKey).Data = data
	return nil
}

// Initialize creates the config singleton, rent-funded by payer. It can
// run exactly once per deployment.
func (p *Program) Initialize(payer solana.PublicKey, localDomain, version uint32, owner, pauser, tokenController wire.Identity) error {
	return p.led.Transact(func() error {
		if p.led.Account(p.configKey).Exists() {
			return ErrAlreadyInitialized
		}
		s := &State{
			LocalDomain:     localDomain,
			Version:         version,
			Owner:           owner,
			Pauser:          pauser,
			TokenController: tokenController,
			Bump:            p.configBump,
		}
		data, err := s.MarshalBinary()
		if err != nil {
			return err
		}
		if err := p.led.CreateAccount(payer, p.configKey, p.rent.MinimumBalance(len(data)), len(data), p.id); err != nil {
			return err
		}
		p.led.Account(p.configKey).Data = data
		p.sink.Emit(events.GatewayMinterInitialized{})
		return nil
	})
}

// TransferOwnership begins the two-step ownership handover. Owner only.
func (p *Program) TransferOwnership(authority, newOwner wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Owner {
			return fmt.Errorf("%w: owner required", ErrInvalidAuthority)
		}
		s.PendingOwner = newOwner
		return p.saveState(s)
	})
}

// AcceptOwnership completes the handover. Pending owner only.
func (p *Program) AcceptOwnership(authority wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if s.PendingOwner.IsZero() || authority != s.PendingOwner {
			return fmt.Errorf("%w: pending owner required", ErrInvalidAuthority)
		}
		s.Owner = s.PendingOwner
		s.PendingOwner = wire.Identity{}
		return p.saveState(s)
	})
}

// UpdatePauser designates a new pauser. Owner only.
func (p *Program) UpdatePauser(authority, pauser wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Owner {
			return fmt.Errorf("%w: owner required", ErrInvalidAuthority)
		}
		s.Pauser = pauser
		return p.saveState(s)
	})
}

// UpdateTokenController designates a new token controller. Owner only.
func (p *Program) UpdateTokenController(authority, controller wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Owner {
			return fmt.Errorf("%w: owner required", ErrInvalidAuthority)
		}
		s.TokenController = controller
		return p.saveState(s)
	})
}

// AddAttester enables an attestation signer. Owner only. Re-adding an
// enabled signer emits the event again without duplicating the entry.
func (p *Program) AddAttester(authority, attester wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Owner {
			return fmt.Errorf("%w: owner required", ErrInvalidAuthority)
		}
		if attester.IsZero() {
			return ErrInvalidAttester
		}
		if !s.hasAttester(attester) {
			if len(s.Attesters) >= MaxAttesters {
				return ErrAttesterLimitExceeded
			}
			s.Attesters = append(s.Attesters, attester)
			if err := p.saveState(s); err != nil {
				return err
			}
		}
		p.sink.Emit(events.AttestationSignerAdded{Signer: attester})
		return nil
	})
}

// RemoveAttester disables an attestation signer. Owner only. Removing an
// unknown signer still emits the event.
func (p *Program) RemoveAttester(authority, attester wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Owner {
			return fmt.Errorf("%w: owner required", ErrInvalidAuthority)
		}
		for i, a := range s.Attesters {
			if a == attester {
				s.Attesters = append(s.Attesters[:i], s.Attesters[i+1:]...)
				if err := p.saveState(s); err != nil {
					return err
				}
				break
			}
		}
		p.sink.Emit(events.AttestationSignerRemoved{Signer: attester})
		return nil
	})
}

// Pause halts all redemptions. Pauser only. Idempotent.
func (p *Program) Pause(authority wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Pauser {
			return fmt.Errorf("%w: pauser required", ErrInvalidAuthority)
		}
		s.Paused = true
		if err := p.saveState(s); err != nil {
			return err
		}
		p.sink.Emit(events.Paused{Account: authority})
		return nil
	})
}

// Unpause resumes redemptions. Pauser only. Idempotent.
func (p *Program) Unpause(authority wire.Identity) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Pauser {
			return fmt.Errorf("%w: pauser required", ErrInvalidAuthority)
		}
		s.Paused = false
		if err := p.saveState(s); err != nil {
			return err
		}
		p.sink.Emit(events.Unpaused{Account: authority})
		return nil
	})
}

// AddToken registers a mint as redeemable by creating its custody token
// account at the derived address, rent-funded by payer and owned by the
// program's signing authority. Owner only. The custody account's
// existence with the expected derivation is the whole registry.
func (p *Program) AddToken(payer solana.PublicKey, authority wire.Identity, mint solana.PublicKey) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.Owner {
			return fmt.Errorf("%w: owner required", ErrInvalidAuthority)
		}
		custody, err := p.CustodyKey(mint)
		if err != nil {
			return err
		}
		if p.led.Account(custody).Exists() {
			return fmt.Errorf("%w: custody for mint %s", ErrAlreadyInitialized, mint)
		}
		lamports := p.rent.MinimumBalance(runtime.TokenAccountLen)
		if err := p.led.CreateAccount(payer, custody, lamports, runtime.TokenAccountLen, solana.TokenProgramID); err != nil {
			return err
		}
		return p.token.InitializeAccount(custody, mint, p.Authority())
	})
}

// BurnTokenCustody burns amount out of the mint's custody reserve.
// Token controller only. The token-program failure for an overdrawn burn
// surfaces verbatim.
func (p *Program) BurnTokenCustody(authority wire.Identity, mint solana.PublicKey, amount uint64) error {
	return p.led.Transact(func() error {
		s, err := p.loadState()
		if err != nil {
			return err
		}
		if authority != s.TokenController {
			return fmt.Errorf("%w: token controller required", ErrInvalidAuthority)
		}
		custody, err := p.CustodyKey(mint)
		if err != nil {
			return err
		}
		return p.token.Burn(custody, mint, p.Authority(), amount)
	})
}
