package tasks

import (
	"context"
	"time"

	"github.com/deptagency/algomart-sub001/account"
	"github.com/deptagency/algomart-sub001/collectible"
	"github.com/deptagency/algomart-sub001/pack"
	"github.com/deptagency/algomart-sub001/queue"
	"github.com/deptagency/algomart-sub001/txn"
)

// Store is the persistence surface the workers run on. db.Store is the
// production implementation; tests use in-memory fakes.
type Store interface {
	InsertGroup(txns []txn.Transaction) (string, []txn.Transaction, error)
	InsertTransaction(t txn.Transaction) (txn.Transaction, error)
	SetSigned(id, encodedSignedTxn string) error
	OldestSigned() (*txn.Transaction, error)
	GroupTransactions(groupID string) ([]txn.Transaction, error)
	TransactionByID(id string) (*txn.Transaction, error)
	TransactionByAddress(address string) (*txn.Transaction, error)
	ClaimForSubmit(ids []string) (bool, error)
	ReleaseSubmitClaim(ids []string) error
	MarkPending(ids []string) error
	MarkFailed(ids []string, msg string) error
	MarkConfirmed(id string) error
	PendingTransactions(limit int) ([]txn.Transaction, error)
	DeleteGroup(groupID string) error

	InsertAccount(a *account.Custodial) error
	AccountByUserID(userID string) (*account.Custodial, error)
	AccountByAddress(address string) (*account.Custodial, error)
	SetAccountCreationTxn(accountID, txnID string) (bool, error)
	ClearAccountCreationTxn(accountID, txnID string) error

	CollectiblesByPack(packID string) ([]collectible.Collectible, []collectible.Template, error)
	CollectibleByID(id string) (*collectible.Collectible, error)
	CollectibleByAddress(assetIndex uint64) (*collectible.Collectible, error)
	SetCollectibleCreationTxn(collectibleID, txnID string) (bool, error)
	ClearCollectibleCreationTxn(collectibleID, txnID string) error
	SetCollectibleAddressByCreationTxn(txnID string, assetIndex uint64) error
	SetCollectibleOwner(collectibleID, prevTransferTxnID, transferTxnID, ownerID string) (bool, error)
	ClearCollectibleTransferTxn(collectibleID, txnID, prevTxnID string) error

	ReservePack(userID, templateID string) (*pack.Pack, error)
	ReservePackByRedeemCode(userID, redeemCode string) (*pack.Pack, error)
	ReleasePack(packID, userID string) error
}

// JobQueue hands claim jobs between the reservation path and the claim
// workers.
type JobQueue interface {
	Enqueue(ctx context.Context, job queue.ClaimJob) error
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.ClaimJob, error)
}
