package tasks

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/crypto"

	"github.com/deptagency/algomart-sub001/account"
	"github.com/deptagency/algomart-sub001/cache"
	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/txbuild"
	"github.com/deptagency/algomart-sub001/txn"
)

// maxFundingAttempts bounds rebuilds when funding transactions keep
// dying of expired validity windows.
const maxFundingAttempts = 3

// EnsureAccountFunded makes the user's custodial account usable and
// returns it: generate the keypair on first sight, build and sign the
// funding group, link it to the account while nobody else has, then
// drive it to confirmation. Safe to call concurrently and repeatedly;
// every step re-checks state before acting.
func (p *Processor) EnsureAccountFunded(ctx context.Context, userID string) (*account.Custodial, error) {
	for attempt := 0; attempt < maxFundingAttempts; attempt++ {
		acct, err := p.store.AccountByUserID(userID)
		if err != nil {
			return nil, err
		}

		if acct == nil {
			fresh, _, err := account.Generate(userID, p.cipher)
			if err != nil {
				return nil, err
			}
			if err := p.store.InsertAccount(fresh); err != nil {
				// Likely lost an insert race; reload and re-check.
				if existing, lookupErr := p.store.AccountByUserID(userID); lookupErr == nil && existing != nil {
					continue
				}
				return nil, err
			}
			acct = fresh
		}

		if acct.CreationTxnID == "" {
			if err := p.fundAccount(acct); err != nil {
				return nil, err
			}
			continue
		}

		t, err := p.store.TransactionByID(acct.CreationTxnID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			if err := p.store.ClearAccountCreationTxn(acct.ID, acct.CreationTxnID); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case t.Status == txn.StatusConfirmed:
			return acct, nil

		case deadTxn(t):
			// The window passed before the group committed. Detach the
			// dead group and rebuild from fresh parameters.
			cache.InvalidateParams()
			if err := p.store.ClearAccountCreationTxn(acct.ID, t.ID); err != nil {
				return nil, err
			}
			if t.GroupID != "" {
				if err := p.store.DeleteGroup(t.GroupID); err != nil {
					return nil, err
				}
			}
			continue

		case t.Status == txn.StatusFailed:
			return nil, fault.Systemf("funding transaction for %s failed: %s", acct.Address, t.Error)

		default:
			if err := p.driveToConfirmation(ctx, *t); err != nil {
				// Re-inspect: the failure may be a dead window we can
				// recover from on the next attempt.
				logTransient(err)
				continue
			}
			return acct, nil
		}
	}

	return nil, fault.Systemf("unable to fund account for user %s after %d attempts", userID, maxFundingAttempts)
}

// fundAccount builds, signs and records the funding group, then links
// its payment to the account. A lost link race drops our copy; the
// winner's group proceeds.
func (p *Processor) fundAccount(acct *account.Custodial) error {
	keys, err := account.Recover(acct, p.cipher)
	if err != nil {
		return err
	}

	params, err := p.buildParams(acct.ID)
	if err != nil {
		return err
	}

	g, err := txbuild.FundAccount(params, p.funding.Address, keys.Address, p.opts.InitialBalance)
	if err != nil {
		return err
	}

	rows, err := p.rowsForGroup(g, []crypto.Account{p.funding, keys})
	if err != nil {
		return err
	}

	stored, err := p.recordGroup(rows)
	if err != nil {
		return err
	}

	linked, err := p.store.SetAccountCreationTxn(acct.ID, stored[0].ID)
	if err != nil {
		return err
	}
	if !linked {
		return p.store.DeleteGroup(stored[0].GroupID)
	}
	return nil
}
