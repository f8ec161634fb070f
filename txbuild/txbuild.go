// Package txbuild turns high-level intents (fund an account, mint
// editions, move an asset in or out of custody) into ordered unsigned
// transaction groups plus the signer each member expects.
//
// Transfers out of custody always use a clawback issued by the platform
// authority, never a plain transfer signed by the holder: asset
// movement stays platform-authorized and auditable through the ARC-2
// notes attached here.
package txbuild

import (
	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/deptagency/algomart-sub001/note"
)

// Fee-covering constants. The ledger requires the receiving account to
// pre-fund its minimum balance and the opt-in fee; these are the fixed
// amounts rather than a live minimum query.
const (
	// MinBalance is the per-asset minimum balance increase in microAlgos.
	MinBalance = 100_000
	// OptInFee covers a single opt-in transaction.
	OptInFee = 1_000
	// KeyRegFee covers the non-participation key registration that
	// follows an initial funding payment.
	KeyRegFee = 1_000
	// MaxMintBatch is the most editions a single mint call may create,
	// bounded by the ledger's atomic group size.
	MaxMintBatch = 16
)

// Params carries the suggested network parameters and note metadata
// shared by every transaction of one build call. Callers widen
// Suggested.LastRoundValid before building if they want a longer
// validity window.
type Params struct {
	Suggested types.SuggestedParams
	AppID     string
	Reference string
}

func (p Params) note(t note.Type, payload note.Payload) ([]byte, error) {
	payload.Type = t
	if payload.Reference == "" {
		payload.Reference = p.Reference
	}
	if payload.Standards == nil {
		payload.Standards = []string{"arc2"}
	}
	return note.Encode(p.AppID, payload)
}

// Group is an ordered set of unsigned transactions with the address
// expected to sign each member. Multi-transaction intents carry a
// ledger group hash; singletons do not.
type Group struct {
	Txns    []types.Transaction
	Signers []string
}

// IDs returns the ledger transaction id of every member, in order.
func (g Group) IDs() []string {
	ids := make([]string, len(g.Txns))
	for i, tx := range g.Txns {
		ids[i] = crypto.GetTxID(tx)
	}
	return ids
}

func (g *Group) add(tx types.Transaction, signer types.Address) {
	g.Txns = append(g.Txns, tx)
	g.Signers = append(g.Signers, signer.String())
}

// Size returns the number of member transactions.
func (g Group) Size() int {
	return len(g.Txns)
}

// assignGroup stamps a shared group hash when the intent produced more
// than one transaction.
func (g *Group) assignGroup() error {
	if len(g.Txns) < 2 {
		return nil
	}
	grouped, err := transaction.AssignGroupID(g.Txns, "")
	if err != nil {
		return err
	}
	g.Txns = grouped
	return nil
}

// minFee picks the flat fee for hand-assembled transactions.
func minFee(sp types.SuggestedParams) types.MicroAlgos {
	if sp.FlatFee && sp.Fee > 0 {
		return sp.Fee
	}
	return types.MicroAlgos(transaction.MinTxnFee)
}

// genesisDigest converts the raw suggested-params hash.
func genesisDigest(sp types.SuggestedParams) types.Digest {
	var d types.Digest
	copy(d[:], sp.GenesisHash)
	return d
}
