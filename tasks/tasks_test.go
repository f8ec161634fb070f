package tasks

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deptagency/algomart-sub001/account"
	"github.com/deptagency/algomart-sub001/algod"
	"github.com/deptagency/algomart-sub001/cache"
	"github.com/deptagency/algomart-sub001/collectible"
	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/pack"
	"github.com/deptagency/algomart-sub001/queue"
	"github.com/deptagency/algomart-sub001/txbuild"
	"github.com/deptagency/algomart-sub001/txn"
	"github.com/deptagency/algomart-sub001/wallet"
)

// plainCipher stores keys unencrypted; good enough for worker tests.
type plainCipher struct{}

func (plainCipher) Encrypt(plain string) (string, error) { return plain, nil }
func (plainCipher) Decrypt(encrypted string) string      { return encrypted }

func newTestProcessor(t *testing.T) (*Processor, *fakeStore, *fakeClient, *fakeQueue) {
	t.Helper()

	// Each test gets its own fake node; drop parameters cached from a
	// previous one.
	cache.InvalidateParams()

	store := newFakeStore()
	client := newFakeClient()
	jobs := &fakeQueue{}
	funding := crypto.GenerateAccount()

	p := NewProcessor(store, client, jobs, plainCipher{}, funding, Options{
		DappName:       "AlgoMart",
		InitialBalance: 100_000,
		PollInterval:   time.Millisecond,
	})
	return p, store, client, jobs
}

// seedFundingGroup records a fully signed two-member funding group and
// returns its rows.
func seedFundingGroup(t *testing.T, p *Processor) []txn.Transaction {
	t.Helper()

	user := crypto.GenerateAccount()
	params, err := p.buildParams("seed")
	require.NoError(t, err)

	g, err := txbuild.FundAccount(params, p.funding.Address, user.Address, p.opts.InitialBalance)
	require.NoError(t, err)

	rows, err := p.rowsForGroup(g, []crypto.Account{p.funding, user})
	require.NoError(t, err)

	stored, err := p.recordGroup(rows)
	require.NoError(t, err)
	return stored
}

func TestSubmitPendingBatchAdvancesGroup(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	stored := seedFundingGroup(t, p)

	did, err := p.SubmitPendingBatch()
	require.NoError(t, err)
	assert.True(t, did)

	for _, row := range stored {
		fresh, err := store.TransactionByID(row.ID)
		require.NoError(t, err)
		assert.Equal(t, txn.StatusPending, fresh.Status)
	}

	// Nothing left to submit.
	did, err = p.SubmitPendingBatch()
	require.NoError(t, err)
	assert.False(t, did)
}

func TestSubmitAlreadyInLedgerMarksPending(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)
	stored := seedFundingGroup(t, p)

	client.submitErr = &algod.NodeError{Status: 400, Message: "transaction already in ledger: ABC"}

	did, err := p.SubmitPendingBatch()
	require.NoError(t, err)
	assert.True(t, did)

	for _, row := range stored {
		fresh, err := store.TransactionByID(row.ID)
		require.NoError(t, err)
		assert.Equal(t, txn.StatusPending, fresh.Status)
	}
}

func TestSubmitMissingSignatureFailsWholeGroup(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)
	stored := seedFundingGroup(t, p)

	// Drop one member's signature while keeping it claimable.
	store.mu.Lock()
	store.txns[stored[1].ID].EncodedSignedTxn = ""
	store.mu.Unlock()

	_, err := p.SubmitPendingBatch()
	require.NoError(t, err)

	for _, row := range stored {
		fresh, err := store.TransactionByID(row.ID)
		require.NoError(t, err)
		assert.Equal(t, txn.StatusFailed, fresh.Status)
	}
	assert.Zero(t, client.submitCalls)
}

func TestSubmitNodeRejectionFailsGroup(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)
	stored := seedFundingGroup(t, p)

	client.submitErr = &algod.NodeError{Status: 400, Message: "overspend"}

	_, err := p.SubmitPendingBatch()
	require.NoError(t, err)

	for _, row := range stored {
		fresh, err := store.TransactionByID(row.ID)
		require.NoError(t, err)
		assert.Equal(t, txn.StatusFailed, fresh.Status)
		assert.Contains(t, fresh.Error, "overspend")
	}
}

func TestSubmitTransportErrorReleasesClaim(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)
	stored := seedFundingGroup(t, p)

	client.submitErr = errors.New("dial tcp: i/o timeout")

	_, err := p.SubmitPendingBatch()
	require.Error(t, err)

	for _, row := range stored {
		fresh, err := store.TransactionByID(row.ID)
		require.NoError(t, err)
		assert.Equal(t, txn.StatusSigned, fresh.Status)
	}
}

func TestConfirmPropagatesAssetIndex(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)

	row, err := store.InsertTransaction(txn.Transaction{
		Address: "MINTTXID",
		Status:  txn.StatusPending,
	})
	require.NoError(t, err)

	store.collectibles["c1"] = &collectible.Collectible{
		ID:            "c1",
		CreationTxnID: row.ID,
	}
	client.pending["MINTTXID"] = algod.PendingInfo{ConfirmedRound: 5, AssetIndex: 77}

	n, err := p.ConfirmPendingBatch(16)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fresh, err := store.TransactionByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, fresh.Status)

	c, err := store.CollectibleByID("c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(77), c.Address)
}

// confirmCrashStore drops the connection on the first status flip,
// simulating a worker dying between the confirmation pass's writes.
type confirmCrashStore struct {
	*fakeStore
	failOnce bool
}

func (s *confirmCrashStore) MarkConfirmed(id string) error {
	if s.failOnce {
		s.failOnce = false
		return errors.New("connection reset by peer")
	}
	return s.fakeStore.MarkConfirmed(id)
}

func TestConfirmInterruptedPassLeavesRecoverableState(t *testing.T) {
	_, store, client, jobs := newTestProcessor(t)
	crash := &confirmCrashStore{fakeStore: store, failOnce: true}
	p := NewProcessor(crash, client, jobs, plainCipher{}, crypto.GenerateAccount(), Options{
		PollInterval: time.Millisecond,
	})

	row, err := store.InsertTransaction(txn.Transaction{
		Address: "MINTTXID",
		Status:  txn.StatusPending,
	})
	require.NoError(t, err)

	store.collectibles["c1"] = &collectible.Collectible{
		ID:            "c1",
		CreationTxnID: row.ID,
	}
	client.pending["MINTTXID"] = algod.PendingInfo{ConfirmedRound: 5, AssetIndex: 77}

	_, err = p.ConfirmPendingBatch(16)
	require.Error(t, err)

	// The asset index landed before the interrupted status flip, and
	// the row is still Pending, so the next pass picks it back up.
	c, err := store.CollectibleByID("c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(77), c.Address)

	fresh, err := store.TransactionByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusPending, fresh.Status)

	n, err := p.ConfirmPendingBatch(16)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fresh, err = store.TransactionByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, fresh.Status)
}

func TestConfirmPoolErrorFailsTransaction(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)

	row, err := store.InsertTransaction(txn.Transaction{
		Address: "DEADTXID",
		Status:  txn.StatusPending,
	})
	require.NoError(t, err)

	client.pending["DEADTXID"] = algod.PendingInfo{
		PoolError: "txn dead: round 1200 outside of 100-1100",
	}

	_, err = p.ConfirmPendingBatch(16)
	require.NoError(t, err)

	fresh, err := store.TransactionByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusFailed, fresh.Status)
	assert.True(t, deadTxn(fresh))
}

func TestEnsureAccountFunded(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)
	client.autoConfirm = true

	acct, err := p.EnsureAccountFunded(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.NotEmpty(t, acct.Address)
	require.NotEmpty(t, acct.CreationTxnID)

	head, err := store.TransactionByID(acct.CreationTxnID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, head.Status)
	assert.Equal(t, p.funding.Address.String(), head.Signer)

	members, err := store.GroupTransactions(head.GroupID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, acct.Address, members[1].Signer)
	assert.Equal(t, txn.StatusConfirmed, members[1].Status)

	// A second call is a no-op returning the same account.
	again, err := p.EnsureAccountFunded(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, again.ID)
	assert.Equal(t, acct.CreationTxnID, again.CreationTxnID)
}

func TestEnsureAccountFundedRecoversDeadGroup(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)

	fresh, _, err := account.Generate("user-1", plainCipher{})
	require.NoError(t, err)
	require.NoError(t, store.InsertAccount(fresh))

	require.NoError(t, p.fundAccount(fresh))

	acct, err := store.AccountByUserID("user-1")
	require.NoError(t, err)
	oldTxnID := acct.CreationTxnID
	require.NotEmpty(t, oldTxnID)

	oldHead, err := store.TransactionByID(oldTxnID)
	require.NoError(t, err)
	members, err := store.GroupTransactions(oldHead.GroupID)
	require.NoError(t, err)

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	require.NoError(t, store.MarkFailed(ids, "txn dead: round 1200 outside of 100-1100"))

	client.autoConfirm = true
	acct, err = p.EnsureAccountFunded(context.Background(), "user-1")
	require.NoError(t, err)

	// The dead group was detached and deleted, and the rebuilt group is
	// a different ledger transaction entirely.
	assert.NotEqual(t, oldTxnID, acct.CreationTxnID)
	gone, err := store.TransactionByID(oldTxnID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	newHead, err := store.TransactionByID(acct.CreationTxnID)
	require.NoError(t, err)
	assert.NotEqual(t, oldHead.Address, newHead.Address)
	assert.Equal(t, txn.StatusConfirmed, newHead.Status)
}

func TestDriveToConfirmationRescuesLaggingMember(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)
	client.autoConfirm = true

	// A prior pass confirmed the head but a transient error left the
	// second member Pending; the drive loop must keep confirming.
	_, stored, err := store.InsertGroup([]txn.Transaction{
		{Address: "T0", Status: txn.StatusConfirmed},
		{Address: "T1", Status: txn.StatusPending},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.driveToConfirmation(ctx, stored[0]))

	fresh, err := store.TransactionByID(stored[1].ID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, fresh.Status)
}

func TestEnsureAccountFundedTerminalFailure(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)

	fresh, _, err := account.Generate("user-1", plainCipher{})
	require.NoError(t, err)
	require.NoError(t, store.InsertAccount(fresh))
	require.NoError(t, p.fundAccount(fresh))

	acct, err := store.AccountByUserID("user-1")
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed([]string{acct.CreationTxnID}, "overspend"))

	_, err = p.EnsureAccountFunded(context.Background(), "user-1")
	require.Error(t, err)
	assert.False(t, fault.IsUser(err))
	assert.Contains(t, err.Error(), "overspend")
}

func seedPack(store *fakeStore, templateID string, tpl pack.Template, packs ...pack.Pack) {
	tpl.ID = templateID
	store.packTemplates[templateID] = tpl
	for i := range packs {
		cp := packs[i]
		cp.TemplateID = templateID
		store.packs[cp.ID] = &cp
	}
}

func TestClaimRandomPackQueuesJob(t *testing.T) {
	p, store, _, jobs := newTestProcessor(t)
	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeFree, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1"})

	claimed, err := p.ClaimRandomPack(context.Background(), "user-1", "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "pack-1", claimed.ID)
	assert.Equal(t, "user-1", claimed.OwnerID)

	job := jobs.pop()
	require.NotNil(t, job)
	assert.Equal(t, "pack-1", job.PackID)
	assert.Equal(t, "user-1", job.UserID)
}

func TestClaimEnqueueFailureReleasesPack(t *testing.T) {
	p, store, _, jobs := newTestProcessor(t)
	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeFree, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1"})

	jobs.enqueueErr = errors.New("queue unavailable")

	_, err := p.ClaimRandomPack(context.Background(), "user-1", "tpl-1")
	require.Error(t, err)

	// Compensated: the pack is claimable again.
	released := store.packs["pack-1"]
	assert.Empty(t, released.OwnerID)
	assert.Nil(t, released.ClaimedAt)
}

func TestClaimOnePerCustomer(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeFree, ReleasedAt: time.Now().Add(-time.Hour), OnePerCustomer: true},
		pack.Pack{ID: "pack-1"}, pack.Pack{ID: "pack-2"})

	_, err := p.ClaimRandomPack(context.Background(), "user-1", "tpl-1")
	require.NoError(t, err)

	_, err = p.ClaimRandomPack(context.Background(), "user-1", "tpl-1")
	require.Error(t, err)
	assert.True(t, fault.IsUser(err))
	assert.Equal(t, 404, fault.StatusOf(err))

	// A different user still gets the second pack.
	claimed, err := p.ClaimRandomPack(context.Background(), "user-2", "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "pack-2", claimed.ID)
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	p, store, _, jobs := newTestProcessor(t)
	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeFree, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1"})

	const claimants = 16

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	var losses []error

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.ClaimRandomPack(context.Background(), fmt.Sprintf("user-%d", i), "tpl-1")

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else {
				losses = append(losses, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	require.Len(t, losses, claimants-1)
	for _, err := range losses {
		assert.True(t, fault.IsUser(err))
		assert.Equal(t, 404, fault.StatusOf(err))
	}

	// Exactly one claim job was queued for the one reserved pack.
	require.NotNil(t, jobs.pop())
	assert.Nil(t, jobs.pop())
}

func TestConcurrentClaimsDrainPool(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeFree, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1"}, pack.Pack{ID: "pack-2"},
		pack.Pack{ID: "pack-3"}, pack.Pack{ID: "pack-4"})

	const claimants = 4

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := make(map[string]string)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i)
			claimed, err := p.ClaimRandomPack(context.Background(), user, "tpl-1")

			mu.Lock()
			defer mu.Unlock()
			if assert.NoError(t, err) {
				taken[claimed.ID] = user
			}
		}(i)
	}
	wg.Wait()

	// Losing a race for one row never costs a claimant a pack while
	// others remain: every claimant got a distinct pack.
	assert.Len(t, taken, claimants)
}

func TestClaimPurchaseRequiresBalance(t *testing.T) {
	p, store, _, _ := newTestProcessor(t)
	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypePurchase, Price: 500, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1"})

	_, err := p.ClaimRandomPack(context.Background(), "user-1", "tpl-1")
	require.Error(t, err)
	assert.Equal(t, 404, fault.StatusOf(err))

	store.balances["user-1"] = 500
	claimed, err := p.ClaimRandomPack(context.Background(), "user-1", "tpl-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claimed.OwnerID)
}

func TestRedeemPack(t *testing.T) {
	p, store, _, jobs := newTestProcessor(t)
	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeRedeem, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1", RedeemCode: "SECRET99"})

	_, err := p.RedeemPack(context.Background(), "user-1", "WRONG")
	require.Error(t, err)
	assert.True(t, fault.IsUser(err))

	claimed, err := p.RedeemPack(context.Background(), "user-1", "SECRET99")
	require.NoError(t, err)
	assert.Equal(t, "pack-1", claimed.ID)
	assert.Equal(t, "user-1", claimed.OwnerID)
	require.NotNil(t, jobs.pop())

	// Codes are single-use.
	_, err = p.RedeemPack(context.Background(), "user-2", "SECRET99")
	require.Error(t, err)
}

func seedCollectibles(store *fakeStore, packID string, editions uint64) {
	tpl := collectible.Template{
		ID:            "ctpl-1",
		UniqueCode:    "RARE01",
		AssetURL:      "https://cdn.example.com/rare01.json#arc3",
		MetadataHash:  strings.Repeat("ab", 32),
		TotalEditions: editions,
	}
	store.templates[tpl.ID] = tpl

	for e := uint64(1); e <= editions; e++ {
		id := "c" + string(rune('0'+e))
		store.collectibles[id] = &collectible.Collectible{
			ID:         id,
			TemplateID: tpl.ID,
			Edition:    e,
			PackID:     packID,
		}
	}
}

func TestClaimSagaEndToEnd(t *testing.T) {
	p, store, client, jobs := newTestProcessor(t)
	client.autoConfirm = true
	client.assignAssets = true

	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeFree, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1"})
	seedCollectibles(store, "pack-1", 2)

	ctx := context.Background()
	_, err := p.ClaimRandomPack(ctx, "user-1", "tpl-1")
	require.NoError(t, err)

	// Pump the saga through its steps.
	for job := jobs.pop(); job != nil; job = jobs.pop() {
		require.NoError(t, p.ProcessClaim(ctx, *job))
	}

	acct, err := store.AccountByUserID("user-1")
	require.NoError(t, err)
	require.NotNil(t, acct)

	head, err := store.TransactionByID(acct.CreationTxnID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, head.Status)

	cs, _, err := store.CollectiblesByPack("pack-1")
	require.NoError(t, err)
	require.Len(t, cs, 2)

	seen := map[uint64]bool{}
	for _, c := range cs {
		assert.True(t, c.Minted(), "edition %d has no asset index", c.Edition)
		assert.False(t, seen[c.Address], "asset index %d assigned twice", c.Address)
		seen[c.Address] = true

		assert.Equal(t, "user-1", c.OwnerID)
		require.NotNil(t, c.ClaimedAt)
		require.NotEmpty(t, c.LatestTransferTxnID)

		transfer, err := store.TransactionByID(c.LatestTransferTxnID)
		require.NoError(t, err)
		assert.Equal(t, txn.StatusConfirmed, transfer.Status)
	}
}

func TestExportAwaitsExternalSignature(t *testing.T) {
	p, store, client, _ := newTestProcessor(t)
	client.autoConfirm = true

	ctx := context.Background()
	_, err := p.EnsureAccountFunded(ctx, "user-1")
	require.NoError(t, err)

	store.collectibles["c1"] = &collectible.Collectible{
		ID:      "c1",
		Address: 4242,
		OwnerID: "user-1",
	}

	external := crypto.GenerateAccount()
	batch, err := p.InitializeExport(ctx, "user-1", 4242, external.Address.String())
	require.NoError(t, err)
	require.Len(t, batch, 5)

	// Member 1 belongs to the external wallet: unsigned, addressed to
	// it. Every other member is pre-signed and marked skip.
	assert.Equal(t, []string{external.Address.String()}, batch[1].Signers)
	assert.Empty(t, batch[1].Stxn)
	for _, i := range []int{0, 2, 3, 4} {
		assert.Empty(t, batch[i].Signers, "member %d should carry a signature", i)
		assert.NotEmpty(t, batch[i].Stxn, "member %d should carry a signature", i)
	}

	// Custody is released up front; the collectible has no owner while
	// the export is in flight.
	c, err := store.CollectibleByID("c1")
	require.NoError(t, err)
	assert.Empty(t, c.OwnerID)
	require.NotEmpty(t, c.LatestTransferTxnID)

	// The group must not submit while one member awaits its signature.
	did, err := p.SubmitPendingBatch()
	require.NoError(t, err)
	assert.False(t, did)

	// The external wallet signs its member and hands it back.
	unsigned, err := wallet.Decode(batch[1].Txn)
	require.NoError(t, err)
	_, stxn, err := crypto.SignTransaction(external.PrivateKey, unsigned)
	require.NoError(t, err)

	signed := wallet.Transaction{
		Txn:  batch[1].Txn,
		Stxn: base64.StdEncoding.EncodeToString(stxn),
	}
	require.NoError(t, p.CompleteTransfer(ctx, []wallet.Transaction{signed}))

	// Replays of the same signed payload are accepted.
	require.NoError(t, p.CompleteTransfer(ctx, []wallet.Transaction{signed}))

	did, err = p.SubmitPendingBatch()
	require.NoError(t, err)
	assert.True(t, did)

	n, err := p.ConfirmPendingBatch(16)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	transfer, err := store.TransactionByID(c.LatestTransferTxnID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, transfer.Status)
}

func TestProcessClaimIsIdempotent(t *testing.T) {
	p, store, client, jobs := newTestProcessor(t)
	client.autoConfirm = true
	client.assignAssets = true

	seedPack(store, "tpl-1",
		pack.Template{Type: pack.TypeFree, ReleasedAt: time.Now().Add(-time.Hour)},
		pack.Pack{ID: "pack-1"})
	seedCollectibles(store, "pack-1", 1)

	ctx := context.Background()
	_, err := p.ClaimRandomPack(ctx, "user-1", "tpl-1")
	require.NoError(t, err)

	var delivered []queue.ClaimJob
	for job := jobs.pop(); job != nil; job = jobs.pop() {
		delivered = append(delivered, *job)
		require.NoError(t, p.ProcessClaim(ctx, *job))
	}

	// Redeliver every step, as an at-least-once queue may. Each replay
	// must converge on the already-committed state.
	for _, job := range delivered {
		require.NoError(t, p.ProcessClaim(ctx, job))
	}
	for job := jobs.pop(); job != nil; job = jobs.pop() {
		require.NoError(t, p.ProcessClaim(ctx, *job))
	}

	cs, _, err := store.CollectiblesByPack("pack-1")
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.True(t, cs[0].Minted())
	assert.Equal(t, "user-1", cs[0].OwnerID)

	// Exactly one mint group exists for the edition.
	creation, err := store.TransactionByID(cs[0].CreationTxnID)
	require.NoError(t, err)
	assert.Equal(t, txn.StatusConfirmed, creation.Status)
}
