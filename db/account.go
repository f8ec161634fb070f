package db

import (
	"database/sql"

	"github.com/deptagency/algomart-sub001/account"
	"github.com/deptagency/algomart-sub001/fault"
)

const accountColumns = "`id`, `user_id`, `address`, `encrypted_key`, COALESCE(`creation_txn_id`, '')"

func scanAccount(rows *sql.Rows) (account.Custodial, error) {
	var a account.Custodial
	err := rows.Scan(&a.ID, &a.UserID, &a.Address, &a.EncryptedKey, &a.CreationTxnID)
	return a, fault.Wrap(err)
}

// InsertAccount stores a freshly generated custodial account. The
// address unique key rejects duplicates.
func (s *Store) InsertAccount(a *account.Custodial) error {
	_, err := wrappedExec(
		"INSERT INTO `custodial_account` (`id`, `user_id`, `address`, `encrypted_key`, `creation_txn_id`) VALUES (?, ?, ?, ?, NULLIF(?, ''))",
		a.ID, a.UserID, a.Address, a.EncryptedKey, a.CreationTxnID)
	return err
}

func (s *Store) accountWhere(clause string, arg interface{}) (*account.Custodial, error) {
	rows, err := wrappedQuery("SELECT "+accountColumns+" FROM `custodial_account` WHERE "+clause, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Wrap(rows.Err())
	}
	a, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AccountByUserID returns the user's custodial account, or nil.
func (s *Store) AccountByUserID(userID string) (*account.Custodial, error) {
	return s.accountWhere("`user_id` = ?", userID)
}

// AccountByAddress returns the custodial account holding address.
func (s *Store) AccountByAddress(address string) (*account.Custodial, error) {
	return s.accountWhere("`address` = ?", address)
}

// SetAccountCreationTxn links the funding transaction to the account,
// but only while no other worker has. False means somebody else won.
func (s *Store) SetAccountCreationTxn(accountID, txnID string) (bool, error) {
	n, err := wrappedExec(
		"UPDATE `custodial_account` SET `creation_txn_id` = ? WHERE `id` = ? AND `creation_txn_id` IS NULL",
		txnID, accountID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearAccountCreationTxn detaches a dead funding transaction so the
// account can be funded again. Matching on the old txn id keeps the
// clear from racing a fresh link.
func (s *Store) ClearAccountCreationTxn(accountID, txnID string) error {
	_, err := wrappedExec(
		"UPDATE `custodial_account` SET `creation_txn_id` = NULL WHERE `id` = ? AND `creation_txn_id` = ?",
		accountID, txnID)
	return err
}

// UserBalance reads the user's soft balance used by purchase
// eligibility.
func (s *Store) UserBalance(userID string) (uint64, error) {
	rows, err := wrappedQuery("SELECT `balance` FROM `user_account` WHERE `id` = ?", userID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, fault.Userf(404, "user %s not found", userID)
	}
	var balance uint64
	if err := rows.Scan(&balance); err != nil {
		return 0, fault.Wrap(err)
	}
	return balance, nil
}
