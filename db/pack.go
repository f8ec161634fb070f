package db

import (
	"database/sql"

	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/pack"
)

const packColumns = "`id`, `template_id`, COALESCE(`owner_id`, ''), `claimed_at`, COALESCE(`redeem_code`, ''), COALESCE(`active_bid_id`, '')"

func scanPack(rows *sql.Rows) (pack.Pack, error) {
	var p pack.Pack
	err := rows.Scan(&p.ID, &p.TemplateID, &p.OwnerID, &p.ClaimedAt, &p.RedeemCode, &p.ActiveBidID)
	return p, fault.Wrap(err)
}

// ReservePack assigns one eligible unclaimed pack of the template to
// the user. Eligibility and the claim itself are a single conditional
// UPDATE, so concurrent claimants can never take the same pack: the
// statement's WHERE re-checks every predicate at write time. The inner
// derived table works around MySQL's restriction on selecting from the
// table being updated.
//
// Predicates: template released, pack not redeem-gated, pack unowned,
// one-per-customer honored, and for purchase templates the user's
// balance covers the price.
//
// The subquery picks a random eligible pack so concurrent claimants
// spread across the pool instead of all racing for the same row; a
// claimant whose picked row was taken between SELECT and UPDATE retries
// once before reporting the pool empty.
func (s *Store) ReservePack(userID, templateID string) (*pack.Pack, error) {
	const reserve = "UPDATE `pack` SET `owner_id` = ?, `claimed_at` = NOW() WHERE `owner_id` IS NULL AND `id` = (" +
		" SELECT `id` FROM (" +
		"  SELECT `p`.`id` FROM `pack` `p`" +
		"  JOIN `pack_template` `t` ON `t`.`id` = `p`.`template_id`" +
		"  WHERE `p`.`template_id` = ?" +
		"   AND `p`.`owner_id` IS NULL" +
		"   AND `p`.`claimed_at` IS NULL" +
		"   AND `p`.`redeem_code` IS NULL" +
		"   AND `t`.`released_at` <= NOW()" +
		"   AND (`t`.`one_per_customer` = 0 OR NOT EXISTS (" +
		"        SELECT 1 FROM `pack` `q` WHERE `q`.`template_id` = `p`.`template_id` AND `q`.`owner_id` = ?))" +
		"   AND (`t`.`type` <> ? OR `t`.`price` <= COALESCE((" +
		"        SELECT `balance` FROM `user_account` WHERE `id` = ?), 0))" +
		"  ORDER BY RAND() LIMIT 1" +
		" ) AS `eligible`)"

	for attempt := 0; attempt < 2; attempt++ {
		n, err := wrappedExec(reserve, userID, templateID, userID, pack.TypePurchase, userID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return s.ownedPack(userID, templateID)
		}
	}
	return nil, fault.Userf(404, "no eligible pack of template %s for user %s", templateID, userID)
}

// ReservePackByRedeemCode claims the one pack carrying the code. Same
// single-statement guarantee as ReservePack.
func (s *Store) ReservePackByRedeemCode(userID, redeemCode string) (*pack.Pack, error) {
	const reserve = "UPDATE `pack` `p` JOIN `pack_template` `t` ON `t`.`id` = `p`.`template_id`" +
		" SET `p`.`owner_id` = ?, `p`.`claimed_at` = NOW()" +
		" WHERE `p`.`redeem_code` = ? AND `p`.`owner_id` IS NULL AND `p`.`claimed_at` IS NULL" +
		"  AND `t`.`type` = ? AND `t`.`released_at` <= NOW()"

	n, err := wrappedExec(reserve, userID, redeemCode, pack.TypeRedeem)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fault.Userf(404, "no claimable pack for that redeem code")
	}

	rows, err := wrappedQuery(
		"SELECT "+packColumns+" FROM `pack` WHERE `redeem_code` = ? AND `owner_id` = ?",
		redeemCode, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Systemf("reserved pack for code vanished")
	}
	p, err := scanPack(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReleasePack is the saga compensation: it hands the pack back only if
// the given user still holds it.
func (s *Store) ReleasePack(packID, userID string) error {
	_, err := wrappedExec(
		"UPDATE `pack` SET `owner_id` = NULL, `claimed_at` = NULL WHERE `id` = ? AND `owner_id` = ?",
		packID, userID)
	return err
}

// PackByID loads one pack, or nil.
func (s *Store) PackByID(id string) (*pack.Pack, error) {
	rows, err := wrappedQuery("SELECT "+packColumns+" FROM `pack` WHERE `id` = ?", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Wrap(rows.Err())
	}
	p, err := scanPack(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ownedPack(userID, templateID string) (*pack.Pack, error) {
	rows, err := wrappedQuery(
		"SELECT "+packColumns+" FROM `pack` WHERE `template_id` = ? AND `owner_id` = ? ORDER BY `claimed_at` DESC LIMIT 1",
		templateID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fault.Systemf("reserved pack vanished for user %s", userID)
	}
	p, err := scanPack(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
