package db

import (
	"database/sql"

	"github.com/deptagency/algomart-sub001/collectible"
	"github.com/deptagency/algomart-sub001/fault"
)

const collectibleColumns = "`c`.`id`, `c`.`template_id`, `c`.`edition`, COALESCE(`c`.`address`, 0), COALESCE(`c`.`owner_id`, ''), COALESCE(`c`.`creation_txn_id`, ''), COALESCE(`c`.`latest_transfer_txn_id`, ''), `c`.`claimed_at`, COALESCE(`c`.`pack_id`, '')"

func scanCollectible(rows *sql.Rows) (collectible.Collectible, error) {
	var c collectible.Collectible
	err := rows.Scan(
		&c.ID,
		&c.TemplateID,
		&c.Edition,
		&c.Address,
		&c.OwnerID,
		&c.CreationTxnID,
		&c.LatestTransferTxnID,
		&c.ClaimedAt,
		&c.PackID,
	)
	return c, fault.Wrap(err)
}

// CollectiblesByPack returns the pack's collectibles joined with their
// templates, in edition order.
func (s *Store) CollectiblesByPack(packID string) ([]collectible.Collectible, []collectible.Template, error) {
	rows, err := wrappedQuery(
		"SELECT "+collectibleColumns+", `t`.`id`, `t`.`unique_code`, `t`.`asset_url`, `t`.`metadata_hash`, `t`.`total_editions` "+
			"FROM `collectible` `c` JOIN `collectible_template` `t` ON `t`.`id` = `c`.`template_id` "+
			"WHERE `c`.`pack_id` = ? ORDER BY `c`.`edition` ASC",
		packID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var cs []collectible.Collectible
	var ts []collectible.Template
	for rows.Next() {
		var c collectible.Collectible
		var t collectible.Template
		err := rows.Scan(
			&c.ID, &c.TemplateID, &c.Edition, &c.Address, &c.OwnerID,
			&c.CreationTxnID, &c.LatestTransferTxnID, &c.ClaimedAt, &c.PackID,
			&t.ID, &t.UniqueCode, &t.AssetURL, &t.MetadataHash, &t.TotalEditions)
		if err != nil {
			return nil, nil, fault.Wrap(err)
		}
		cs = append(cs, c)
		ts = append(ts, t)
	}
	return cs, ts, fault.Wrap(rows.Err())
}

// CollectibleByID loads one collectible, or nil.
func (s *Store) CollectibleByID(id string) (*collectible.Collectible, error) {
	rows, err := wrappedQuery("SELECT "+collectibleColumns+" FROM `collectible` `c` WHERE `c`.`id` = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Wrap(rows.Err())
	}
	c, err := scanCollectible(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CollectibleByAddress looks a collectible up by its asset index.
func (s *Store) CollectibleByAddress(assetIndex uint64) (*collectible.Collectible, error) {
	rows, err := wrappedQuery("SELECT "+collectibleColumns+" FROM `collectible` `c` WHERE `c`.`address` = ?", assetIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Wrap(rows.Err())
	}
	c, err := scanCollectible(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetCollectibleCreationTxn links a mint transaction to the
// collectible while it has none. False means another worker won.
func (s *Store) SetCollectibleCreationTxn(collectibleID, txnID string) (bool, error) {
	n, err := wrappedExec(
		"UPDATE `collectible` SET `creation_txn_id` = ? WHERE `id` = ? AND `creation_txn_id` IS NULL",
		txnID, collectibleID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearCollectibleCreationTxn detaches a dead mint transaction.
func (s *Store) ClearCollectibleCreationTxn(collectibleID, txnID string) error {
	_, err := wrappedExec(
		"UPDATE `collectible` SET `creation_txn_id` = NULL WHERE `id` = ? AND `creation_txn_id` = ?",
		collectibleID, txnID)
	return err
}

// SetCollectibleAddressByCreationTxn records the asset index the
// confirmation worker read off the creation transaction. The address
// is assigned exactly once.
func (s *Store) SetCollectibleAddressByCreationTxn(txnID string, assetIndex uint64) error {
	_, err := wrappedExec(
		"UPDATE `collectible` SET `address` = ? WHERE `creation_txn_id` = ? AND `address` IS NULL",
		assetIndex, txnID)
	return err
}

// SetCollectibleOwner records an ownership change together with the
// transfer transaction that effected it, guarded on the expected
// previous transfer so concurrent transfers cannot double-apply.
func (s *Store) SetCollectibleOwner(collectibleID, prevTransferTxnID, transferTxnID, ownerID string) (bool, error) {
	n, err := wrappedExec(
		"UPDATE `collectible` SET `owner_id` = NULLIF(?, ''), `latest_transfer_txn_id` = ?, `claimed_at` = COALESCE(`claimed_at`, NOW()) "+
			"WHERE `id` = ? AND COALESCE(`latest_transfer_txn_id`, '') = ?",
		ownerID, transferTxnID, collectibleID, prevTransferTxnID)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearCollectibleTransferTxn rolls the transfer link back to its
// previous value after the linked transaction died.
func (s *Store) ClearCollectibleTransferTxn(collectibleID, txnID, prevTxnID string) error {
	_, err := wrappedExec(
		"UPDATE `collectible` SET `latest_transfer_txn_id` = NULLIF(?, '') WHERE `id` = ? AND `latest_transfer_txn_id` = ?",
		prevTxnID, collectibleID, txnID)
	return err
}
