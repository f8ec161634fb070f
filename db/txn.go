package db

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/txn"
)

const txnColumns = "`id`, `address`, `status`, `order_idx`, COALESCE(`group_id`, ''), `encoded_txn`, COALESCE(`encoded_signed_txn`, ''), `signer`, COALESCE(`error`, ''), `created_at`"

func scanTxn(rows *sql.Rows) (txn.Transaction, error) {
	var t txn.Transaction
	err := rows.Scan(
		&t.ID,
		&t.Address,
		&t.Status,
		&t.Order,
		&t.GroupID,
		&t.EncodedTxn,
		&t.EncodedSignedTxn,
		&t.Signer,
		&t.Error,
		&t.CreatedAt,
	)
	return t, fault.Wrap(err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func idArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// InsertGroup stores the members of one atomic group under a fresh
// group row. Members get ids and the shared group id assigned; order
// follows slice order.
func (s *Store) InsertGroup(txns []txn.Transaction) (string, []txn.Transaction, error) {
	groupID := uuid.NewString()

	err := transact(func(dbTx *sql.Tx) error {
		if _, err := dbTx.Exec("INSERT INTO `ledger_txn_group` (`id`) VALUES (?)", groupID); err != nil {
			return err
		}

		for i := range txns {
			txns[i].ID = uuid.NewString()
			txns[i].GroupID = groupID
			txns[i].Order = i

			_, err := dbTx.Exec(
				"INSERT INTO `ledger_txn` (`id`, `address`, `status`, `order_idx`, `group_id`, `encoded_txn`, `encoded_signed_txn`, `signer`) VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)",
				txns[i].ID, txns[i].Address, txns[i].Status, i, groupID,
				txns[i].EncodedTxn, txns[i].EncodedSignedTxn, txns[i].Signer)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return groupID, txns, nil
}

// InsertTransaction stores one ungrouped transaction.
func (s *Store) InsertTransaction(t txn.Transaction) (txn.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := wrappedExec(
		"INSERT INTO `ledger_txn` (`id`, `address`, `status`, `order_idx`, `encoded_txn`, `encoded_signed_txn`, `signer`) VALUES (?, ?, ?, 0, ?, NULLIF(?, ''), ?)",
		t.ID, t.Address, t.Status, t.EncodedTxn, t.EncodedSignedTxn, t.Signer)
	return t, err
}

// SetSigned attaches the signed bytes and moves Unsigned to Signed.
func (s *Store) SetSigned(id, encodedSignedTxn string) error {
	n, err := wrappedExec(
		"UPDATE `ledger_txn` SET `encoded_signed_txn` = ?, `status` = ? WHERE `id` = ? AND `status` = ?",
		encodedSignedTxn, txn.StatusSigned, id, txn.StatusUnsigned)
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.Userf(409, "transaction %s is not awaiting a signature", id)
	}
	return nil
}

// OldestSigned returns the longest-waiting Signed transaction whose
// whole group is ready to go, or nil. Groups with members still
// awaiting a signature are skipped so they cannot block the line.
func (s *Store) OldestSigned() (*txn.Transaction, error) {
	rows, err := wrappedQuery(
		"SELECT "+txnColumns+" FROM `ledger_txn` WHERE `status` = ?"+
			" AND NOT EXISTS (SELECT 1 FROM `ledger_txn` `u` WHERE `u`.`group_id` = `ledger_txn`.`group_id` AND `u`.`status` <> ?)"+
			" ORDER BY `created_at` ASC, `order_idx` ASC LIMIT 1",
		txn.StatusSigned, txn.StatusSigned)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Wrap(rows.Err())
	}
	t, err := scanTxn(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GroupTransactions returns every member of the group in submit order.
func (s *Store) GroupTransactions(groupID string) ([]txn.Transaction, error) {
	rows, err := wrappedQuery(
		"SELECT "+txnColumns+" FROM `ledger_txn` WHERE `group_id` = ? ORDER BY `order_idx` ASC",
		groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []txn.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, fault.Wrap(rows.Err())
}

// TransactionByID loads one row, or nil when absent.
func (s *Store) TransactionByID(id string) (*txn.Transaction, error) {
	rows, err := wrappedQuery("SELECT "+txnColumns+" FROM `ledger_txn` WHERE `id` = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Wrap(rows.Err())
	}
	t, err := scanTxn(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TransactionByAddress loads the row carrying the given ledger
// transaction id, or nil.
func (s *Store) TransactionByAddress(address string) (*txn.Transaction, error) {
	rows, err := wrappedQuery("SELECT "+txnColumns+" FROM `ledger_txn` WHERE `address` = ?", address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Wrap(rows.Err())
	}
	t, err := scanTxn(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ClaimForSubmit atomically moves the given rows from Signed to
// Submitting. It claims all of them or none: a partial claim (another
// worker won part of the set) is rolled back and reported false.
func (s *Store) ClaimForSubmit(ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}

	args := append([]interface{}{txn.StatusSubmitting}, idArgs(ids)...)
	args = append(args, txn.StatusSigned)
	n, err := wrappedExec(
		"UPDATE `ledger_txn` SET `status` = ? WHERE `id` IN ("+placeholders(len(ids))+") AND `status` = ?",
		args...)
	if err != nil {
		return false, err
	}
	if n == int64(len(ids)) {
		return true, nil
	}
	if n > 0 {
		if err := s.ReleaseSubmitClaim(ids); err != nil {
			return false, err
		}
	}
	return false, nil
}

// ReleaseSubmitClaim reverts Submitting rows to Signed after a
// transport failure so another attempt can pick them up.
func (s *Store) ReleaseSubmitClaim(ids []string) error {
	args := append([]interface{}{txn.StatusSigned}, idArgs(ids)...)
	args = append(args, txn.StatusSubmitting)
	_, err := wrappedExec(
		"UPDATE `ledger_txn` SET `status` = ? WHERE `id` IN ("+placeholders(len(ids))+") AND `status` = ?",
		args...)
	return err
}

// MarkPending advances claimed rows to Pending after a successful
// broadcast.
func (s *Store) MarkPending(ids []string) error {
	args := append([]interface{}{txn.StatusPending}, idArgs(ids)...)
	args = append(args, txn.StatusSubmitting)
	_, err := wrappedExec(
		"UPDATE `ledger_txn` SET `status` = ? WHERE `id` IN ("+placeholders(len(ids))+") AND `status` = ?",
		args...)
	return err
}

// MarkFailed terminally fails the rows with the given message. Already
// terminal rows are left alone.
func (s *Store) MarkFailed(ids []string, msg string) error {
	args := append([]interface{}{txn.StatusFailed, msg}, idArgs(ids)...)
	args = append(args, txn.StatusConfirmed, txn.StatusFailed)
	_, err := wrappedExec(
		"UPDATE `ledger_txn` SET `status` = ?, `error` = ? WHERE `id` IN ("+placeholders(len(ids))+") AND `status` NOT IN (?, ?)",
		args...)
	return err
}

// MarkConfirmed moves one Pending row to Confirmed.
func (s *Store) MarkConfirmed(id string) error {
	_, err := wrappedExec(
		"UPDATE `ledger_txn` SET `status` = ? WHERE `id` = ? AND `status` = ?",
		txn.StatusConfirmed, id, txn.StatusPending)
	return err
}

// PendingTransactions returns up to limit rows awaiting confirmation,
// oldest first.
func (s *Store) PendingTransactions(limit int) ([]txn.Transaction, error) {
	rows, err := wrappedQuery(
		"SELECT "+txnColumns+" FROM `ledger_txn` WHERE `status` = ? ORDER BY `created_at` ASC LIMIT ?",
		txn.StatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []txn.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, fault.Wrap(rows.Err())
}

// DeleteGroup removes a dead group and its members so the operation
// that produced it can rebuild from scratch. Callers clear referencing
// foreign keys first.
func (s *Store) DeleteGroup(groupID string) error {
	return transact(func(dbTx *sql.Tx) error {
		if _, err := dbTx.Exec("DELETE FROM `ledger_txn` WHERE `group_id` = ?", groupID); err != nil {
			return err
		}
		_, err := dbTx.Exec("DELETE FROM `ledger_txn_group` WHERE `id` = ?", groupID)
		return err
	})
}
