// Package pack models allocation units: bundles of collectibles offered
// to exactly one claimant.
package pack

import "time"

// Type of a pack template, deciding which claim flow applies.
type Type string

const (
	TypeFree     Type = "free"
	TypePurchase Type = "purchase"
	TypeRedeem   Type = "redeem"
	TypeAuction  Type = "auction"
)

// Pack db model. OwnerID and ClaimedAt are set together, exactly once,
// by the reservation engine's conditional update.
type Pack struct {
	ID          string
	TemplateID  string
	OwnerID     string
	ClaimedAt   *time.Time
	RedeemCode  string
	ActiveBidID string
}

// Template carries the eligibility policy for its packs.
type Template struct {
	ID             string
	Type           Type
	Price          uint64
	ReleasedAt     time.Time
	OnePerCustomer bool
}

// Claimed reports whether the pack has been reserved.
func (p *Pack) Claimed() bool {
	return p.OwnerID != "" && p.ClaimedAt != nil
}
