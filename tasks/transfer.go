package tasks

import (
	"context"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/deptagency/algomart-sub001/account"
	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/txbuild"
	"github.com/deptagency/algomart-sub001/txn"
	"github.com/deptagency/algomart-sub001/wallet"
)

// InitializeExport builds the group that moves the user's collectible
// to an external wallet. Members our keys cover are signed and stored;
// the returned batch is the ARC-1 handoff for the external wallet,
// which signs only the members naming its address. Submission waits
// until CompleteTransfer stores those signatures.
func (p *Processor) InitializeExport(ctx context.Context, userID string, assetIndex uint64, externalAddress string) ([]wallet.Transaction, error) {
	external, err := types.DecodeAddress(externalAddress)
	if err != nil {
		return nil, fault.Userf(400, "invalid external address: %s", err)
	}

	c, err := p.store.CollectibleByAddress(assetIndex)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fault.Userf(404, "no collectible with asset index %d", assetIndex)
	}
	if c.OwnerID != userID {
		return nil, fault.Userf(403, "collectible %d is not owned by user %s", assetIndex, userID)
	}

	asset, err := p.assetInfo(assetIndex)
	if err != nil {
		return nil, err
	}
	if asset.Params.DefaultFrozen {
		return nil, fault.Userf(400, "frozen assets cannot be exported")
	}

	acct, err := p.store.AccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fault.Userf(404, "user %s has no custodial account", userID)
	}
	keys, err := account.Recover(acct, p.cipher)
	if err != nil {
		return nil, err
	}

	params, err := p.buildParams(c.ID)
	if err != nil {
		return nil, err
	}

	g, err := txbuild.Export(params, p.funding.Address, p.funding.Address, keys.Address, external, assetIndex)
	if err != nil {
		return nil, err
	}

	stored, err := p.storePartialGroup(g, []crypto.Account{p.funding, keys})
	if err != nil {
		return nil, err
	}

	transferRow := stored[2]
	if _, err := p.store.SetCollectibleOwner(c.ID, c.LatestTransferTxnID, transferRow.ID, ""); err != nil {
		return nil, err
	}

	return p.walletBatch(g, stored)
}

// InitializeImport builds the group that brings an externally held
// asset back under custody. The external wallet signs its opt-out
// member through the returned batch.
func (p *Processor) InitializeImport(ctx context.Context, userID string, assetIndex uint64, externalAddress string) ([]wallet.Transaction, error) {
	external, err := types.DecodeAddress(externalAddress)
	if err != nil {
		return nil, fault.Userf(400, "invalid external address: %s", err)
	}

	c, err := p.store.CollectibleByAddress(assetIndex)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fault.Userf(404, "no collectible with asset index %d", assetIndex)
	}

	acct, err := p.store.AccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fault.Userf(404, "user %s has no custodial account", userID)
	}
	keys, err := account.Recover(acct, p.cipher)
	if err != nil {
		return nil, err
	}

	info, err := p.client.AccountInfo(acct.Address)
	if err != nil {
		return nil, err
	}

	params, err := p.buildParams(c.ID)
	if err != nil {
		return nil, err
	}

	g, err := txbuild.Import(params, p.funding.Address, p.funding.Address, keys.Address, external, assetIndex, info.HoldsAsset(assetIndex))
	if err != nil {
		return nil, err
	}

	stored, err := p.storePartialGroup(g, []crypto.Account{p.funding, keys})
	if err != nil {
		return nil, err
	}

	// The clawback member is the last-but-one of either shape.
	transferRow := stored[len(stored)-2]
	if _, err := p.store.SetCollectibleOwner(c.ID, c.LatestTransferTxnID, transferRow.ID, userID); err != nil {
		return nil, err
	}

	return p.walletBatch(g, stored)
}

// CompleteTransfer stores externally produced signatures. Each entry
// must wrap a transaction we are holding Unsigned; once the last
// member of a group is signed the submission worker takes it.
func (p *Processor) CompleteTransfer(ctx context.Context, signed []wallet.Transaction) error {
	for _, wt := range signed {
		if wt.Stxn == "" {
			return fault.Userf(400, "transaction is missing its signature")
		}

		stx, err := wallet.DecodeSigned(wt.Stxn)
		if err != nil {
			return fault.Userf(400, "undecodable signed transaction: %s", err)
		}

		address := crypto.GetTxID(stx.Txn)
		row, err := p.store.TransactionByAddress(address)
		if err != nil {
			return err
		}
		if row == nil {
			return fault.Userf(404, "no stored transaction %s", address)
		}
		if row.Status != txn.StatusUnsigned {
			// Replay of a signature we already hold.
			continue
		}

		if err := p.store.SetSigned(row.ID, wt.Stxn); err != nil {
			return err
		}
	}
	return nil
}

// TradeCollectible moves an asset between two custodial users, seller
// to buyer. Fully platform-signed; the pollers drive it from here.
func (p *Processor) TradeCollectible(ctx context.Context, sellerID, buyerID string, assetIndex uint64) error {
	c, err := p.store.CollectibleByAddress(assetIndex)
	if err != nil {
		return err
	}
	if c == nil {
		return fault.Userf(404, "no collectible with asset index %d", assetIndex)
	}
	if c.OwnerID != sellerID {
		return fault.Userf(403, "collectible %d is not owned by user %s", assetIndex, sellerID)
	}

	sellerAcct, err := p.store.AccountByUserID(sellerID)
	if err != nil {
		return err
	}
	buyerAcct, err := p.store.AccountByUserID(buyerID)
	if err != nil {
		return err
	}
	if sellerAcct == nil || buyerAcct == nil {
		return fault.Userf(404, "both trade parties need custodial accounts")
	}

	sellerKeys, err := account.Recover(sellerAcct, p.cipher)
	if err != nil {
		return err
	}
	buyerKeys, err := account.Recover(buyerAcct, p.cipher)
	if err != nil {
		return err
	}

	params, err := p.buildParams(c.ID)
	if err != nil {
		return err
	}

	g, err := txbuild.Trade(params, p.funding.Address, p.funding.Address, sellerKeys.Address, buyerKeys.Address, assetIndex)
	if err != nil {
		return err
	}

	rows, err := p.rowsForGroup(g, []crypto.Account{p.funding, sellerKeys, buyerKeys})
	if err != nil {
		return err
	}
	stored, err := p.recordGroup(rows)
	if err != nil {
		return err
	}

	transferRow := stored[2]
	linked, err := p.store.SetCollectibleOwner(c.ID, c.LatestTransferTxnID, transferRow.ID, buyerID)
	if err != nil {
		return err
	}
	if !linked {
		return p.store.DeleteGroup(transferRow.GroupID)
	}
	return nil
}

// storePartialGroup signs and records a group some of whose members
// wait on external signatures.
func (p *Processor) storePartialGroup(g txbuild.Group, holders []crypto.Account) ([]txn.Transaction, error) {
	rows, err := p.rowsForGroup(g, holders)
	if err != nil {
		return nil, err
	}
	return p.recordGroup(rows)
}

// walletBatch shapes a stored group into its ARC-1 handoff: members we
// signed carry their stxn and an empty signer list ("do not sign"),
// the rest name the address expected to sign.
func (p *Processor) walletBatch(g txbuild.Group, stored []txn.Transaction) ([]wallet.Transaction, error) {
	batch := make([]wallet.Transaction, len(stored))
	for i, row := range stored {
		if row.EncodedSignedTxn != "" {
			wt := wallet.Transaction{
				Txn:     row.EncodedTxn,
				Signers: []string{},
				Stxn:    row.EncodedSignedTxn,
			}
			batch[i] = wt
			continue
		}
		batch[i] = wallet.Transaction{
			Txn:     row.EncodedTxn,
			Signers: []string{g.Signers[i]},
		}
	}
	return batch, nil
}
