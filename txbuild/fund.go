package txbuild

import (
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/algorand/go-algorand-sdk/v2/transaction"

	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/note"
)

// FundAccount builds the two-transaction group that makes a fresh
// custodial account usable: a payment covering the initial balance plus
// the keyreg fee, then a non-participation key registration so the
// account never accrues staking state.
//
// Signers: funding account, then the custodial account itself.
func FundAccount(p Params, funding, custodial types.Address, initialBalance uint64) (Group, error) {
	payNote, err := p.note(note.TypeCustodialFundPayment, note.Payload{})
	if err != nil {
		return Group{}, err
	}

	payTxn, err := transaction.MakePaymentTxn(
		funding.String(),
		custodial.String(),
		initialBalance+KeyRegFee,
		payNote,
		"",
		p.Suggested,
	)
	if err != nil {
		return Group{}, fault.Wrap(err)
	}

	keyRegNote, err := p.note(note.TypeCustodialNonParticipation, note.Payload{})
	if err != nil {
		return Group{}, err
	}

	keyRegTxn := types.Transaction{
		Type: types.KeyRegistrationTx,
		Header: types.Header{
			Sender:      custodial,
			Fee:         minFee(p.Suggested),
			FirstValid:  p.Suggested.FirstRoundValid,
			LastValid:   p.Suggested.LastRoundValid,
			Note:        keyRegNote,
			GenesisID:   p.Suggested.GenesisID,
			GenesisHash: genesisDigest(p.Suggested),
		},
		KeyregTxnFields: types.KeyregTxnFields{
			Nonparticipation: true,
		},
	}

	g := Group{
		Txns:    []types.Transaction{payTxn, keyRegTxn},
		Signers: []string{funding.String(), custodial.String()},
	}
	if err := g.assignGroup(); err != nil {
		return Group{}, fault.Wrap(err)
	}
	return g, nil
}
