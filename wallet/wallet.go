// Package wallet implements the ARC-1 portable transaction format used
// between the builder, the signer and the transaction store, plus the
// signing protocol over it.
package wallet

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/encoding/msgpack"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// ARC-1 error codes.
const (
	CodeUserRejected        = 4001
	CodeUnauthorized        = 4100
	CodeUnsupportedOp       = 4200
	CodeTooManyTransactions = 4201
	CodeUninitializedWallet = 4202
	CodeInvalidInput        = 4300
)

// Error is a signing protocol failure with its ARC-1 code.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Msg)
}

func errf(code int, format string, v ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, v...)}
}

// Multisig metadata per ARC-1. Declared for wire compatibility only;
// signing multisig transactions is not supported.
type Multisig struct {
	Version   int      `json:"version"`
	Threshold int      `json:"threshold"`
	Addrs     []string `json:"addrs"`
}

// Transaction is the ARC-1 wallet transaction record.
//
// Signers is deliberately not omitempty: a nil slice ("sign according
// to the transaction's from field") and an empty slice ("do not sign,
// use the attached stxn") mean different things and both must survive
// JSON round trips.
type Transaction struct {
	Txn      string    `json:"txn"`
	Signers  []string  `json:"signers"`
	AuthAddr string    `json:"authAddr,omitempty"`
	Msig     *Multisig `json:"msig,omitempty"`
	Stxn     string    `json:"stxn,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Encode wraps an unsigned transaction into its portable form.
func Encode(tx types.Transaction, signers []string, message string) Transaction {
	return Transaction{
		Txn:     base64.StdEncoding.EncodeToString(msgpack.Encode(&tx)),
		Signers: signers,
		Message: message,
	}
}

// EncodeAll assigns a group id across txs and wraps each member. The
// caller sets Signers afterwards if any member needs them. messages may
// be nil or match len(txs).
func EncodeAll(txs []types.Transaction, messages []string) ([]Transaction, error) {
	grouped, err := transaction.AssignGroupID(txs, "")
	if err != nil {
		return nil, errf(CodeInvalidInput, "cannot assign group: %s", err)
	}

	out := make([]Transaction, len(grouped))
	for i, tx := range grouped {
		var msg string
		if i < len(messages) {
			msg = messages[i]
		}
		out[i] = Encode(tx, nil, msg)
	}
	return out, nil
}

// EncodeSigned wraps tx and eagerly signs it with sk. The result's
// empty (non-nil) Signers marks the transaction as pre-signed so that a
// later signing pass skips it and uses Stxn. Call after group
// assignment; signatures cover the group hash.
func EncodeSigned(tx types.Transaction, sk ed25519.PrivateKey, message string) (Transaction, error) {
	_, stxn, err := crypto.SignTransaction(sk, tx)
	if err != nil {
		return Transaction{}, errf(CodeInvalidInput, "cannot sign transaction: %s", err)
	}

	wrapped := Encode(tx, []string{}, message)
	wrapped.Stxn = base64.StdEncoding.EncodeToString(stxn)
	return wrapped, nil
}

// Decode recovers the unsigned transaction from its portable form.
func Decode(encoded string) (types.Transaction, error) {
	var tx types.Transaction

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return tx, errf(CodeInvalidInput, "transaction is not base64: %s", err)
	}
	if err := msgpack.Decode(raw, &tx); err != nil {
		return tx, errf(CodeInvalidInput, "cannot decode transaction: %s", err)
	}
	return tx, nil
}

// DecodeSigned recovers a signed transaction from base64 msgpack.
func DecodeSigned(encoded string) (types.SignedTxn, error) {
	var stx types.SignedTxn

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return stx, errf(CodeInvalidInput, "signed transaction is not base64: %s", err)
	}
	if err := msgpack.Decode(raw, &stx); err != nil {
		return stx, errf(CodeInvalidInput, "cannot decode signed transaction: %s", err)
	}
	return stx, nil
}
