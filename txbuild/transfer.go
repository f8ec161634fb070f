package txbuild

import (
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/note"
)

// ClawbackTransfer moves an asset between two custodial accounts. When
// the recipient has not opted in yet the group starts with a funding
// payment and the recipient's opt-in; skipOptIn collapses it to the
// single clawback transaction.
//
// Signers: [funding, recipient, clawback] or [clawback].
func ClawbackTransfer(p Params, funding, clawback, owner, recipient types.Address, assetIndex uint64, skipOptIn bool) (Group, error) {
	g := Group{}

	if !skipOptIn {
		payNote, err := p.note(note.TypeClawbackPayFunds, note.Payload{AssetIndex: assetIndex})
		if err != nil {
			return Group{}, err
		}
		payTxn, err := transaction.MakePaymentTxn(
			funding.String(), recipient.String(), MinBalance+OptInFee, payNote, "", p.Suggested)
		if err != nil {
			return Group{}, fault.Wrap(err)
		}
		g.add(payTxn, funding)

		optInNote, err := p.note(note.TypeClawbackOptIn, note.Payload{})
		if err != nil {
			return Group{}, err
		}
		optInTxn, err := transaction.MakeAssetAcceptanceTxn(
			recipient.String(), optInNote, p.Suggested, assetIndex)
		if err != nil {
			return Group{}, fault.Wrap(err)
		}
		g.add(optInTxn, recipient)
	}

	transferNote, err := p.note(note.TypeClawbackTransfer, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	transferTxn, err := transaction.MakeAssetRevocationTxn(
		clawback.String(), owner.String(), 1, recipient.String(), transferNote, p.Suggested, assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(transferTxn, clawback)

	if err := g.assignGroup(); err != nil {
		return Group{}, fault.Wrap(err)
	}
	return g, nil
}

// Export moves an asset from a custodial account to an external wallet
// and unwinds the custodial side: fund the external wallet's opt-in,
// opt in, clawback the asset out, opt the custody account out of the
// asset, and return the freed minimum balance to the funding account.
//
// Signers: [funding, external, clawback, custody, custody].
func Export(p Params, funding, clawback, custody, external types.Address, assetIndex uint64) (Group, error) {
	g := Group{}

	payNote, err := p.note(note.TypeExportPayFunds, note.Payload{AssetIndex: assetIndex})
	if err != nil {
		return Group{}, err
	}
	payTxn, err := transaction.MakePaymentTxn(
		funding.String(), external.String(), MinBalance+OptInFee, payNote, "", p.Suggested)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(payTxn, funding)

	optInNote, err := p.note(note.TypeExportOptIn, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	optInTxn, err := transaction.MakeAssetAcceptanceTxn(
		external.String(), optInNote, p.Suggested, assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(optInTxn, external)

	transferNote, err := p.note(note.TypeExportTransfer, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	transferTxn, err := transaction.MakeAssetRevocationTxn(
		clawback.String(), custody.String(), 1, external.String(), transferNote, p.Suggested, assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(transferTxn, clawback)

	optOutNote, err := p.note(note.TypeExportOptOut, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	optOutTxn, err := transaction.MakeAssetTransferTxn(
		custody.String(), external.String(), 0, optOutNote, p.Suggested, external.String(), assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(optOutTxn, custody)

	returnNote, err := p.note(note.TypeExportReturnFunds, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	returnTxn, err := transaction.MakePaymentTxn(
		custody.String(), funding.String(), MinBalance, returnNote, "", p.Suggested)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(returnTxn, custody)

	if err := g.assignGroup(); err != nil {
		return Group{}, fault.Wrap(err)
	}
	return g, nil
}

// Import brings an asset held in an external wallet back under custody.
// The leading funding payment and custody opt-in are built only when
// the custody account has not opted in already (custodyOptedIn).
//
// Signers: [funding, custody, clawback, external] or [clawback, external].
func Import(p Params, funding, clawback, custody, external types.Address, assetIndex uint64, custodyOptedIn bool) (Group, error) {
	g := Group{}

	if !custodyOptedIn {
		payNote, err := p.note(note.TypeImportPayFunds, note.Payload{AssetIndex: assetIndex})
		if err != nil {
			return Group{}, err
		}
		payTxn, err := transaction.MakePaymentTxn(
			funding.String(), custody.String(), MinBalance+OptInFee, payNote, "", p.Suggested)
		if err != nil {
			return Group{}, fault.Wrap(err)
		}
		g.add(payTxn, funding)

		optInNote, err := p.note(note.TypeImportOptIn, note.Payload{})
		if err != nil {
			return Group{}, err
		}
		optInTxn, err := transaction.MakeAssetAcceptanceTxn(
			custody.String(), optInNote, p.Suggested, assetIndex)
		if err != nil {
			return Group{}, fault.Wrap(err)
		}
		g.add(optInTxn, custody)
	}

	transferNote, err := p.note(note.TypeImportTransfer, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	transferTxn, err := transaction.MakeAssetRevocationTxn(
		clawback.String(), external.String(), 1, custody.String(), transferNote, p.Suggested, assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(transferTxn, clawback)

	optOutNote, err := p.note(note.TypeImportOptOut, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	optOutTxn, err := transaction.MakeAssetTransferTxn(
		external.String(), custody.String(), 0, optOutNote, p.Suggested, custody.String(), assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(optOutTxn, external)

	if err := g.assignGroup(); err != nil {
		return Group{}, fault.Wrap(err)
	}
	return g, nil
}

// Trade moves an asset between two custodial peers, seller to buyer:
// fund the buyer's opt-in, buyer opts in, clawback moves the asset, the
// seller opts out of it and returns the freed minimum balance.
//
// Signers: [funding, buyer, clawback, seller, seller].
func Trade(p Params, funding, clawback, seller, buyer types.Address, assetIndex uint64) (Group, error) {
	g := Group{}

	payNote, err := p.note(note.TypeTradePayFunds, note.Payload{AssetIndex: assetIndex})
	if err != nil {
		return Group{}, err
	}
	payTxn, err := transaction.MakePaymentTxn(
		funding.String(), buyer.String(), MinBalance+OptInFee, payNote, "", p.Suggested)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(payTxn, funding)

	optInNote, err := p.note(note.TypeTradeOptIn, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	optInTxn, err := transaction.MakeAssetAcceptanceTxn(
		buyer.String(), optInNote, p.Suggested, assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(optInTxn, buyer)

	transferNote, err := p.note(note.TypeTradeTransfer, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	transferTxn, err := transaction.MakeAssetRevocationTxn(
		clawback.String(), seller.String(), 1, buyer.String(), transferNote, p.Suggested, assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(transferTxn, clawback)

	optOutNote, err := p.note(note.TypeTradeOptOut, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	optOutTxn, err := transaction.MakeAssetTransferTxn(
		seller.String(), buyer.String(), 0, optOutNote, p.Suggested, buyer.String(), assetIndex)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(optOutTxn, seller)

	returnNote, err := p.note(note.TypeTradeReturnFunds, note.Payload{})
	if err != nil {
		return Group{}, err
	}
	returnTxn, err := transaction.MakePaymentTxn(
		seller.String(), funding.String(), MinBalance, returnNote, "", p.Suggested)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}
	g.add(returnTxn, seller)

	if err := g.assignGroup(); err != nil {
		return Group{}, fault.Wrap(err)
	}
	return g, nil
}
