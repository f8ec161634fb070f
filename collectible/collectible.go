// Package collectible models single NFT editions and their templates.
package collectible

import "time"

// Collectible db model. Address is the ledger asset index, zero until
// the creation transaction confirms; it is assigned exactly once.
// Every OwnerID change is recorded together with the transaction that
// effected it.
type Collectible struct {
	ID                  string
	TemplateID          string
	Edition             uint64
	Address             uint64
	OwnerID             string
	CreationTxnID       string
	LatestTransferTxnID string
	ClaimedAt           *time.Time
	PackID              string
}

// Template carries the ARC-3 asset parameters shared by all editions.
type Template struct {
	ID            string
	UniqueCode    string
	AssetURL      string
	MetadataHash  string
	TotalEditions uint64
}

// Minted reports whether the on-chain asset exists.
func (c *Collectible) Minted() bool {
	return c.Address != 0
}
