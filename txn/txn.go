// Package txn holds the db models for ledger transactions and their
// atomic groups.
package txn

import "time"

// Status of a ledger transaction. Transitions only move forward:
//
//	Unsigned -> Signed -> Submitting -> Pending -> Confirmed
//	                                            -> Failed
//
// Submitting marks a row actively claimed by a submission worker; it
// reverts to Signed when a submit attempt fails for transport reasons.
// The only other backward move is the explicit dead-transaction reset,
// which deletes the rows outright.
type Status string

const (
	StatusUnsigned   Status = "Unsigned"
	StatusSigned     Status = "Signed"
	StatusSubmitting Status = "Submitting"
	StatusPending    Status = "Pending"
	StatusConfirmed  Status = "Confirmed"
	StatusFailed     Status = "Failed"
)

// MaxGroupSize is the ledger's atomic group limit.
const MaxGroupSize = 16

// Transaction db model. Address is the ledger transaction ID, unique
// and immutable once assigned at build time.
type Transaction struct {
	ID               string
	Address          string
	Status           Status
	Order            int
	GroupID          string
	EncodedTxn       string
	EncodedSignedTxn string
	Signer           string
	Error            string
	CreatedAt        time.Time
}

// Group db model. Member transactions share a ledger group hash and are
// submitted together in Order.
type Group struct {
	ID        string
	CreatedAt time.Time
}

func rank(s Status) int {
	switch s {
	case StatusUnsigned:
		return 0
	case StatusSigned:
		return 1
	case StatusSubmitting:
		return 2
	case StatusPending:
		return 3
	case StatusConfirmed, StatusFailed:
		return 4
	default:
		return -1
	}
}

// CanAdvance reports whether moving from s to next respects the
// forward-only rule. The Submitting->Signed revert is the one allowed
// exception.
func CanAdvance(s, next Status) bool {
	if s == StatusSubmitting && next == StatusSigned {
		return true
	}
	return rank(next) > rank(s)
}
