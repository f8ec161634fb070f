// Package tasks runs the engine's workers: the submission and
// confirmation pollers over the transaction store, the claim saga
// consumers, and the synchronous orchestration entry points they share.
// Every worker is safe to run in multiple processes at once; all
// exclusion happens through the store's conditional updates.
package tasks

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/types"

	"github.com/deptagency/algomart-sub001/algod"
	"github.com/deptagency/algomart-sub001/cache"
	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/keycipher"
	"github.com/deptagency/algomart-sub001/log"
	"github.com/deptagency/algomart-sub001/txbuild"
	"github.com/deptagency/algomart-sub001/txn"
	"github.com/deptagency/algomart-sub001/wallet"
)

// Options tune a Processor.
type Options struct {
	DappName       string
	EnforcerAppID  uint64
	InitialBalance uint64
	// ExtraRounds widens every built transaction's validity window.
	ExtraRounds uint64
	// PollInterval paces synchronous confirmation waits.
	PollInterval time.Duration
}

// Processor owns the engine's orchestration state: the funding account
// that pays fees and holds clawback authority, the node client, the
// store and the claim queue.
type Processor struct {
	store   Store
	client  algod.Client
	jobs    JobQueue
	cipher  keycipher.Cipher
	funding crypto.Account
	opts    Options
}

// NewProcessor wires a processor from its dependencies.
func NewProcessor(store Store, client algod.Client, jobs JobQueue, cipher keycipher.Cipher, funding crypto.Account, opts Options) *Processor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Processor{
		store:   store,
		client:  client,
		jobs:    jobs,
		cipher:  cipher,
		funding: funding,
		opts:    opts,
	}
}

// buildParams fetches network parameters and stamps the processor's
// note metadata onto them. Parameters are cached briefly; builders that
// hit a dead validity window invalidate the cache before rebuilding.
func (p *Processor) buildParams(reference string) (txbuild.Params, error) {
	sp, ok := cache.GetParams()
	if !ok {
		fetched, err := p.client.SuggestedParams()
		if err != nil {
			return txbuild.Params{}, err
		}
		cache.PutParams(fetched)
		sp = fetched
	}
	sp.LastRoundValid += types.Round(p.opts.ExtraRounds)

	return txbuild.Params{
		Suggested: sp,
		AppID:     p.opts.DappName,
		Reference: reference,
	}, nil
}

// rowsForGroup signs the members whose keys we hold and shapes the
// group into store rows. Members signed by keys outside holders stay
// Unsigned with an empty signed column; their signatures arrive later
// through the wallet protocol.
func (p *Processor) rowsForGroup(g txbuild.Group, holders []crypto.Account) ([]txn.Transaction, error) {
	held := make(map[string]bool, len(holders))
	for _, h := range holders {
		held[h.Address.String()] = true
	}

	batch := make([]wallet.Transaction, g.Size())
	for i := range g.Txns {
		if held[g.Signers[i]] {
			batch[i] = wallet.Encode(g.Txns[i], []string{g.Signers[i]}, "")
		} else {
			batch[i] = wallet.Encode(g.Txns[i], []string{}, "")
		}
	}

	sigs, err := wallet.ConfigureSigner(holders)(batch)
	if err != nil {
		return nil, fault.Wrap(err)
	}

	ids := g.IDs()
	rows := make([]txn.Transaction, g.Size())
	for i := range rows {
		rows[i] = txn.Transaction{
			Address:    ids[i],
			Status:     txn.StatusUnsigned,
			EncodedTxn: batch[i].Txn,
			Signer:     g.Signers[i],
		}
		if sigs[i] != nil {
			rows[i].Status = txn.StatusSigned
			rows[i].EncodedSignedTxn = base64.StdEncoding.EncodeToString(sigs[i])
		}
	}
	return rows, nil
}

// recordGroup persists the rows, grouped when there is more than one.
func (p *Processor) recordGroup(rows []txn.Transaction) ([]txn.Transaction, error) {
	if len(rows) == 1 {
		stored, err := p.store.InsertTransaction(rows[0])
		if err != nil {
			return nil, err
		}
		return []txn.Transaction{stored}, nil
	}
	_, stored, err := p.store.InsertGroup(rows)
	return stored, err
}

// submitMembers claims and broadcasts one fully signed group. The
// group either advances to Pending, fails terminally, or reverts to
// Signed on transport trouble for the next attempt.
func (p *Processor) submitMembers(members []txn.Transaction) error {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}

	claimed, err := p.store.ClaimForSubmit(ids)
	if err != nil {
		return err
	}
	if !claimed {
		// Not all members are Signed, or another worker won the claim.
		return nil
	}

	var raw []byte
	for _, m := range members {
		if m.EncodedSignedTxn == "" {
			return p.store.MarkFailed(ids, "missing signature for "+m.Address)
		}
		stxn, err := base64.StdEncoding.DecodeString(m.EncodedSignedTxn)
		if err != nil {
			return p.store.MarkFailed(ids, "undecodable signature for "+m.Address)
		}
		raw = append(raw, stxn...)
	}

	_, err = p.client.Submit(raw)
	switch {
	case err == nil, algod.IsAlreadyInLedger(err):
		// Already-in-ledger means an earlier attempt won the race; the
		// confirmation worker converges either way.
		return p.store.MarkPending(ids)
	case isNodeError(err):
		return p.store.MarkFailed(ids, err.Error())
	default:
		// Transport trouble: release the claim and retry next poll.
		if relErr := p.store.ReleaseSubmitClaim(ids); relErr != nil {
			return relErr
		}
		return err
	}
}

// confirmOne checks a Pending row against the node and advances it.
func (p *Processor) confirmOne(t txn.Transaction) error {
	info, err := p.client.PendingInfo(t.Address)
	if err != nil {
		if isNodeError(err) {
			// The node does not know the transaction (yet); leave the
			// row Pending and check again next pass.
			return nil
		}
		return err
	}

	if info.PoolError != "" {
		return p.store.MarkFailed([]string{t.ID}, info.PoolError)
	}
	if info.ConfirmedRound == 0 {
		return nil
	}

	if info.AssetIndex != 0 {
		// The transaction created an asset; hand the index to the
		// collectible it minted, if any, before the status flip. A
		// crash between the two writes then leaves the row Pending and
		// the next pass repeats both, instead of stranding a Confirmed
		// mint with no asset index.
		if err := p.store.SetCollectibleAddressByCreationTxn(t.ID, info.AssetIndex); err != nil {
			return err
		}
	}
	return p.store.MarkConfirmed(t.ID)
}

// assetInfo looks an asset up with a read-through cache. Callers only
// consult immutable creation parameters, so a cached hit never goes
// stale.
func (p *Processor) assetInfo(index uint64) (algod.AssetInfo, error) {
	if info, ok := cache.GetAsset(index); ok {
		return info, nil
	}
	info, err := p.client.AssetInfo(index)
	if err != nil {
		return info, err
	}
	cache.PutAsset(info)
	return info, nil
}

// memberRows reloads a transaction's whole group, or just itself when
// ungrouped.
func (p *Processor) memberRows(t txn.Transaction) ([]txn.Transaction, error) {
	if t.GroupID == "" {
		fresh, err := p.store.TransactionByID(t.ID)
		if err != nil {
			return nil, err
		}
		if fresh == nil {
			return nil, fault.Systemf("transaction %s vanished", t.ID)
		}
		return []txn.Transaction{*fresh}, nil
	}
	return p.store.GroupTransactions(t.GroupID)
}

// driveToConfirmation synchronously pushes a recorded group through
// submission and confirmation. It returns nil once every member is
// Confirmed, and the group's failure as an error otherwise.
func (p *Processor) driveToConfirmation(ctx context.Context, head txn.Transaction) error {
	for {
		members, err := p.memberRows(head)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return fault.Systemf("group of %s vanished", head.ID)
		}

		confirmed := 0
		anyPending := false
		for _, m := range members {
			switch m.Status {
			case txn.StatusConfirmed:
				confirmed++
			case txn.StatusPending:
				anyPending = true
			case txn.StatusFailed:
				return fault.Systemf("transaction %s failed: %s", m.Address, m.Error)
			}
		}
		if confirmed == len(members) {
			return nil
		}

		// Submission moves the whole group at once, so Signed is a
		// group-wide state; confirmation advances member by member and
		// must keep driving as long as any member lags Pending.
		switch {
		case members[0].Status == txn.StatusSigned:
			if err := p.submitMembers(members); err != nil {
				logTransient(err)
			}
		case anyPending:
			for _, m := range members {
				if m.Status != txn.StatusPending {
					continue
				}
				if err := p.confirmOne(m); err != nil {
					logTransient(err)
				}
			}
		}

		select {
		case <-ctx.Done():
			return fault.Wrap(ctx.Err())
		case <-time.After(p.opts.PollInterval):
		}
	}
}

// deadTxn reports whether a failed row died of an expired validity
// window, the one failure the orchestrators recover from by rebuilding.
func deadTxn(t *txn.Transaction) bool {
	return t != nil && t.Status == txn.StatusFailed && strings.Contains(t.Error, "txn dead")
}

func isNodeError(err error) bool {
	var ne *algod.NodeError
	return errors.As(err, &ne)
}

// logTransient records an error that the surrounding loop will retry.
func logTransient(err error) {
	if err != nil {
		log.Errorf("transient worker error: %s", err)
	}
}
