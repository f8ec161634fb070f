package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"

	"github.com/deptagency/algomart-sub001/account"
	"github.com/deptagency/algomart-sub001/cache"
	"github.com/deptagency/algomart-sub001/collectible"
	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/log"
	"github.com/deptagency/algomart-sub001/mail"
	"github.com/deptagency/algomart-sub001/pack"
	"github.com/deptagency/algomart-sub001/queue"
	"github.com/deptagency/algomart-sub001/txbuild"
	"github.com/deptagency/algomart-sub001/txn"
)

// maxTransferAttempts bounds per-collectible rebuilds when transfer
// groups die of expired validity windows.
const maxTransferAttempts = 3

// ClaimRandomPack reserves one eligible pack of the template for the
// user and queues the claim work. Reservation and enqueue form a saga:
// when the enqueue fails the reservation is handed back.
func (p *Processor) ClaimRandomPack(ctx context.Context, userID, templateID string) (*pack.Pack, error) {
	reserved, err := p.store.ReservePack(userID, templateID)
	if err != nil {
		return nil, err
	}
	return p.enqueueClaim(ctx, reserved, userID)
}

// RedeemPack claims the pack carrying the redeem code, with the same
// saga contract as ClaimRandomPack.
func (p *Processor) RedeemPack(ctx context.Context, userID, redeemCode string) (*pack.Pack, error) {
	reserved, err := p.store.ReservePackByRedeemCode(userID, redeemCode)
	if err != nil {
		return nil, err
	}
	return p.enqueueClaim(ctx, reserved, userID)
}

func (p *Processor) enqueueClaim(ctx context.Context, reserved *pack.Pack, userID string) (*pack.Pack, error) {
	job := queue.ClaimJob{
		PackID: reserved.ID,
		UserID: userID,
		Step:   queue.StepEnsureFunded,
	}
	if err := p.jobs.Enqueue(ctx, job); err != nil {
		// Compensate: the pack goes back on the shelf.
		if relErr := p.store.ReleasePack(reserved.ID, userID); relErr != nil {
			log.Errorf("cannot release pack %s after enqueue failure: %s", reserved.ID, relErr)
		}
		return nil, err
	}
	return reserved, nil
}

// runClaimWorker consumes claim jobs until ctx ends. Failed jobs are
// requeued at their current step; every step is idempotent, so
// at-least-once delivery converges.
func (p *Processor) runClaimWorker(ctx context.Context) {
	defer mail.AlertIfErr()

	log.Printf("Claim worker started")

	for {
		select {
		case <-ctx.Done():
			log.Printf("Claim worker stopped")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx, 5*time.Second)
		if err != nil {
			logTransient(err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.ProcessClaim(ctx, *job); err != nil {
			log.Errorf("claim step %s for pack %s failed: %s", job.Step, job.PackID, err)
			if enqErr := p.jobs.Enqueue(ctx, *job); enqErr != nil {
				log.Errorf("cannot requeue claim for pack %s: %s", job.PackID, enqErr)
			}
			time.Sleep(time.Second)
		}
	}
}

// ProcessClaim runs one step of the claim saga and queues the next.
func (p *Processor) ProcessClaim(ctx context.Context, job queue.ClaimJob) error {
	switch job.Step {
	case queue.StepEnsureFunded:
		if _, err := p.EnsureAccountFunded(ctx, job.UserID); err != nil {
			return err
		}
		job.Step = queue.StepMint
		return p.jobs.Enqueue(ctx, job)

	case queue.StepMint:
		if err := p.MintPackCollectibles(ctx, job.PackID); err != nil {
			return err
		}
		job.Step = queue.StepTransfer
		return p.jobs.Enqueue(ctx, job)

	case queue.StepTransfer:
		return p.TransferPack(ctx, job.PackID, job.UserID)

	default:
		return fault.Systemf("unknown claim step %q for pack %s", job.Step, job.PackID)
	}
}

// MintPackCollectibles creates the pack's on-chain assets. Already
// minted editions are skipped; editions with a live mint transaction
// are driven to confirmation; dead mint transactions are detached and
// rebuilt. The whole call is idempotent.
func (p *Processor) MintPackCollectibles(ctx context.Context, packID string) error {
	cs, ts, err := p.store.CollectiblesByPack(packID)
	if err != nil {
		return err
	}
	if len(cs) == 0 {
		return fault.Userf(404, "pack %s has no collectibles", packID)
	}
	if len(cs) > txbuild.MaxMintBatch {
		return fault.Userf(400, "pack %s exceeds the mint batch limit", packID)
	}

	var toMint []collectible.Collectible
	var nfts []txbuild.NFT

	for i, c := range cs {
		if c.Minted() {
			continue
		}

		if c.CreationTxnID != "" {
			done, err := p.resumeMint(ctx, c)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			// Dead transaction detached; rebuild below.
		}

		toMint = append(toMint, c)
		nfts = append(nfts, txbuild.NFT{
			AssetName:     fmt.Sprintf("%s %d/%d", ts[i].UniqueCode, c.Edition, ts[i].TotalEditions),
			UnitName:      ts[i].UniqueCode,
			AssetURL:      ts[i].AssetURL,
			MetadataHash:  ts[i].MetadataHash,
			Edition:       c.Edition,
			TotalEditions: ts[i].TotalEditions,
		})
	}

	if len(toMint) == 0 {
		return nil
	}

	params, err := p.buildParams(packID)
	if err != nil {
		return err
	}

	g, err := txbuild.MintAssets(params, p.funding.Address, p.opts.EnforcerAppID, nfts)
	if err != nil {
		return err
	}

	rows, err := p.rowsForGroup(g, []crypto.Account{p.funding})
	if err != nil {
		return err
	}
	stored, err := p.recordGroup(rows)
	if err != nil {
		return err
	}

	if ok, err := p.linkMints(toMint, stored); err != nil || !ok {
		// Another worker owns the mint; its job drives it.
		return err
	}

	return p.driveToConfirmation(ctx, stored[0])
}

// resumeMint drives an in-flight mint transaction. It reports true
// when the collectible needs no further minting and false after
// detaching a dead transaction so the caller can rebuild.
func (p *Processor) resumeMint(ctx context.Context, c collectible.Collectible) (bool, error) {
	t, err := p.store.TransactionByID(c.CreationTxnID)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, p.store.ClearCollectibleCreationTxn(c.ID, c.CreationTxnID)
	}

	if deadTxn(t) {
		cache.InvalidateParams()
		if err := p.store.ClearCollectibleCreationTxn(c.ID, t.ID); err != nil {
			return false, err
		}
		if t.GroupID != "" {
			if err := p.store.DeleteGroup(t.GroupID); err != nil {
				return false, err
			}
		}
		return false, nil
	}

	if t.Status == txn.StatusFailed {
		return false, fault.Systemf("mint transaction %s failed: %s", t.Address, t.Error)
	}

	return true, p.driveToConfirmation(ctx, *t)
}

// linkMints attaches each freshly recorded mint row to its collectible
// while the collectible has none. Losing any single link means another
// worker recorded a competing mint first; everything we linked is
// unwound and our rows dropped so only one mint per edition reaches
// the ledger.
func (p *Processor) linkMints(toMint []collectible.Collectible, stored []txn.Transaction) (bool, error) {
	for i, c := range toMint {
		ok, err := p.store.SetCollectibleCreationTxn(c.ID, stored[i].ID)
		if err != nil {
			return false, err
		}
		if ok {
			continue
		}

		for j := 0; j < i; j++ {
			if err := p.store.ClearCollectibleCreationTxn(toMint[j].ID, stored[j].ID); err != nil {
				return false, err
			}
		}
		if stored[0].GroupID != "" {
			if err := p.store.DeleteGroup(stored[0].GroupID); err != nil {
				return false, err
			}
		} else if err := p.store.MarkFailed([]string{stored[0].ID}, "superseded by concurrent mint"); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// TransferPack clawbacks every minted collectible of the pack into the
// claimant's custodial account. Idempotent per collectible; dead
// transfer groups are detached and rebuilt.
func (p *Processor) TransferPack(ctx context.Context, packID, userID string) error {
	acct, err := p.store.AccountByUserID(userID)
	if err != nil {
		return err
	}
	if acct == nil {
		return fault.Systemf("user %s has no custodial account for pack %s", userID, packID)
	}

	keys, err := account.Recover(acct, p.cipher)
	if err != nil {
		return err
	}

	cs, _, err := p.store.CollectiblesByPack(packID)
	if err != nil {
		return err
	}

	info, err := p.client.AccountInfo(acct.Address)
	if err != nil {
		return err
	}

	for _, c := range cs {
		if !c.Minted() {
			return fault.Systemf("collectible %s of pack %s is not minted yet", c.ID, packID)
		}
		if err := p.transferCollectible(ctx, c, keys, userID, info.HoldsAsset(c.Address)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) transferCollectible(ctx context.Context, c collectible.Collectible, keys crypto.Account, userID string, optedIn bool) error {
	for attempt := 0; attempt < maxTransferAttempts; attempt++ {
		fresh, err := p.store.CollectibleByID(c.ID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return fault.Systemf("collectible %s vanished", c.ID)
		}

		if fresh.OwnerID == userID && fresh.LatestTransferTxnID != "" {
			t, err := p.store.TransactionByID(fresh.LatestTransferTxnID)
			if err != nil {
				return err
			}
			switch {
			case t == nil:
				return fault.Systemf("transfer transaction %s vanished", fresh.LatestTransferTxnID)
			case t.Status == txn.StatusConfirmed:
				return nil
			case deadTxn(t):
				cache.InvalidateParams()
				if err := p.store.ClearCollectibleTransferTxn(c.ID, t.ID, ""); err != nil {
					return err
				}
				if t.GroupID != "" {
					if err := p.store.DeleteGroup(t.GroupID); err != nil {
						return err
					}
				}
				continue
			case t.Status == txn.StatusFailed:
				return fault.Systemf("transfer transaction %s failed: %s", t.Address, t.Error)
			default:
				return p.driveToConfirmation(ctx, *t)
			}
		}

		params, err := p.buildParams(c.ID)
		if err != nil {
			return err
		}

		// Minted assets sit with the creator until claimed; clawback
		// authority and creator are both the funding account.
		g, err := txbuild.ClawbackTransfer(
			params, p.funding.Address, p.funding.Address, p.funding.Address, keys.Address,
			fresh.Address, optedIn)
		if err != nil {
			return err
		}

		rows, err := p.rowsForGroup(g, []crypto.Account{p.funding, keys})
		if err != nil {
			return err
		}
		stored, err := p.recordGroup(rows)
		if err != nil {
			return err
		}

		transferRow := stored[len(stored)-1]
		linked, err := p.store.SetCollectibleOwner(c.ID, fresh.LatestTransferTxnID, transferRow.ID, userID)
		if err != nil {
			return err
		}
		if !linked {
			// Another worker recorded a competing transfer.
			if transferRow.GroupID != "" {
				return p.store.DeleteGroup(transferRow.GroupID)
			}
			return p.store.MarkFailed([]string{transferRow.ID}, "superseded by concurrent transfer")
		}

		if err := p.driveToConfirmation(ctx, stored[0]); err != nil {
			logTransient(err)
			continue
		}
		return nil
	}

	return fault.Systemf("unable to transfer collectible %s after %d attempts", c.ID, maxTransferAttempts)
}
