package wallet

import (
	"encoding/base64"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/deptagency/algomart-sub001/txn"
)

// SignFunc signs a batch of wallet transactions. The result has one
// entry per input: the raw signed transaction bytes, or nil where the
// input declared signing should be skipped.
type SignFunc func(batch []Transaction) ([][]byte, error)

// ConfigureSigner builds a SignFunc over the given key holders.
//
// Rules, per ARC-1:
//  1. batches are 1..16 transactions; a batch of more than one must
//     share a single non-zero group hash
//  2. empty Signers means "do not sign here": the attached stxn is used
//     after verifying it wraps the same transaction, or the slot is nil
//  3. exactly one signer (optionally restated as AuthAddr) names the
//     keypair; it must be one of ours
//  4. multiple signers would be multisig, which is unsupported
//  5. nil Signers defers to the transaction's own sender field
func ConfigureSigner(accounts []crypto.Account) SignFunc {
	byAddress := make(map[string]crypto.Account, len(accounts))
	for _, acct := range accounts {
		byAddress[acct.Address.String()] = acct
	}

	return func(batch []Transaction) ([][]byte, error) {
		decoded, err := validateBatch(batch)
		if err != nil {
			return nil, err
		}

		out := make([][]byte, len(batch))
		for i, wt := range batch {
			sig, err := signOne(byAddress, wt, decoded[i])
			if err != nil {
				return nil, err
			}
			out[i] = sig
		}
		return out, nil
	}
}

func validateBatch(batch []Transaction) ([]types.Transaction, error) {
	if len(batch) == 0 {
		return nil, errf(CodeInvalidInput, "empty transaction batch")
	}
	if len(batch) > txn.MaxGroupSize {
		return nil, errf(CodeTooManyTransactions, "batch of %d exceeds the group limit of %d", len(batch), txn.MaxGroupSize)
	}

	decoded := make([]types.Transaction, len(batch))
	for i, wt := range batch {
		tx, err := Decode(wt.Txn)
		if err != nil {
			return nil, err
		}
		decoded[i] = tx
	}

	group := decoded[0].Group
	if len(batch) > 1 && group == (types.Digest{}) {
		return nil, errf(CodeInvalidInput, "multi-transaction batch has no group hash")
	}
	if group != (types.Digest{}) {
		for _, tx := range decoded {
			if tx.Group != group {
				return nil, errf(CodeInvalidInput, "group hash mismatch within batch")
			}
		}
	}

	return decoded, nil
}

func signOne(byAddress map[string]crypto.Account, wt Transaction, tx types.Transaction) ([]byte, error) {
	if wt.Signers == nil {
		// No declared signers: the sender field decides.
		sender := tx.Sender.String()
		acct, ok := byAddress[sender]
		if !ok {
			return nil, errf(CodeUnauthorized, "signer %s not found", sender)
		}
		return sign(acct, tx)
	}

	for _, signer := range wt.Signers {
		if _, err := types.DecodeAddress(signer); err != nil {
			return nil, errf(CodeInvalidInput, "signer %q is not a valid address", signer)
		}
	}

	switch len(wt.Signers) {
	case 0:
		if wt.Stxn == "" {
			// Explicitly skipped, nothing to verify.
			return nil, nil
		}
		stx, err := DecodeSigned(wt.Stxn)
		if err != nil {
			return nil, err
		}
		if crypto.GetTxID(stx.Txn) != crypto.GetTxID(tx) {
			return nil, errf(CodeInvalidInput, "inner signed transaction does not match")
		}
		raw, err := base64.StdEncoding.DecodeString(wt.Stxn)
		if err != nil {
			return nil, errf(CodeInvalidInput, "signed transaction is not base64: %s", err)
		}
		return raw, nil

	case 1:
		if wt.Msig != nil {
			return nil, errf(CodeUnsupportedOp, "multisig is not supported")
		}
		signer := wt.Signers[0]
		if wt.AuthAddr != "" && wt.AuthAddr != signer {
			return nil, errf(CodeInvalidInput, "authAddr must match the declared signer")
		}
		acct, ok := byAddress[signer]
		if !ok {
			return nil, errf(CodeUnauthorized, "signer %s not found", signer)
		}
		return sign(acct, tx)

	default:
		return nil, errf(CodeUnsupportedOp, "multisig is not supported")
	}
}

func sign(acct crypto.Account, tx types.Transaction) ([]byte, error) {
	_, stxn, err := crypto.SignTransaction(acct.PrivateKey, tx)
	if err != nil {
		return nil, errf(CodeInvalidInput, "cannot sign transaction: %s", err)
	}
	return stxn, nil
}
