package minter

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/stablebridge/gateway-minter/internal/wire"
)

// markUsed consumes a transfer-spec hash by materializing its replay
// marker: a program-owned account at the derived address holding the
// 2-byte discriminator. The marker's presence is the whole replay record;
// once written it is never mutated or erased.
//
// Three funding regimes are tolerated, because anyone can send lamports
// to the derived address before the marker exists:
//
//   - the account does not exist: created from payer, rent-exempt;
//   - system-owned, empty, already rent-exempt: adopted in place;
//   - system-owned, empty, underfunded: topped up from payer, then adopted.
//
// A program-owned marker with the discriminator is the replay-detected
// branch; any other shape is a caller error.
func (p *Program) markUsed(payer, provided solana.PublicKey, hash wire.Hash) error {
	expected, err := p.UsedHashKey(hash)
	if err != nil {
		return err
	}
	if provided != expected {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidTransferSpecHashAccount, provided, expected)
	}

	acct := p.led.Account(expected)
	switch {
	case acct.Owner == p.id:
		if len(acct.Data) == UsedHashAccountLen &&
			acct.Data[0] == usedHashDiscriminator[0] &&
			acct.Data[1] == usedHashDiscriminator[1] {
			return fmt.Errorf("%w: %s", ErrTransferSpecHashAlreadyUsed, hash)
		}
		return fmt.Errorf("%w: malformed marker %s", ErrInvalidTransferSpecHashAccount, expected)

	case acct.Owner == solana.SystemProgramID && len(acct.Data) == 0:
		min := p.rent.MinimumBalance(UsedHashAccountLen)
		if acct.Lamports == 0 {
			if err := p.led.CreateAccount(payer, expected, min, UsedHashAccountLen, p.id); err != nil {
				return err
			}
		} else {
			if acct.Lamports < min {
				if err := p.led.TransferLamports(payer, expected, min-acct.Lamports); err != nil {
					return err
				}
			}
			if err := p.led.Allocate(expected, UsedHashAccountLen); err != nil {
				return err
			}
			if err := p.led.Assign(expected, p.id); err != nil {
				return err
			}
		}
		copy(p.led.Account(expected).Data, usedHashDiscriminator[:])
		return nil

	default:
		return fmt.Errorf("%w: unexpected shape at %s", ErrInvalidTransferSpecHashAccount, expected)
	}
}
