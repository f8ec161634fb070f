package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deptagency/algomart-sub001/account"
	"github.com/deptagency/algomart-sub001/algod"
	"github.com/deptagency/algomart-sub001/collectible"
	"github.com/deptagency/algomart-sub001/fault"
	"github.com/deptagency/algomart-sub001/pack"
	"github.com/deptagency/algomart-sub001/queue"
	"github.com/deptagency/algomart-sub001/txn"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// fakeStore mirrors the store's conditional-update semantics in maps.
type fakeStore struct {
	mu sync.Mutex

	txns     map[string]*txn.Transaction
	txnOrder []string
	groups   map[string][]string

	accounts      map[string]*account.Custodial
	balances      map[string]uint64
	collectibles  map[string]*collectible.Collectible
	templates     map[string]collectible.Template
	packs         map[string]*pack.Pack
	packTemplates map[string]pack.Template
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txns:          make(map[string]*txn.Transaction),
		groups:        make(map[string][]string),
		accounts:      make(map[string]*account.Custodial),
		balances:      make(map[string]uint64),
		collectibles:  make(map[string]*collectible.Collectible),
		templates:     make(map[string]collectible.Template),
		packs:         make(map[string]*pack.Pack),
		packTemplates: make(map[string]pack.Template),
	}
}

func (s *fakeStore) insertLocked(t txn.Transaction) txn.Transaction {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	cp := t
	s.txns[cp.ID] = &cp
	s.txnOrder = append(s.txnOrder, cp.ID)
	return cp
}

func (s *fakeStore) InsertGroup(rows []txn.Transaction) (string, []txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gid := uuid.NewString()
	for i := range rows {
		rows[i].GroupID = gid
		rows[i].Order = i
		rows[i] = s.insertLocked(rows[i])
		s.groups[gid] = append(s.groups[gid], rows[i].ID)
	}
	return gid, rows, nil
}

func (s *fakeStore) InsertTransaction(t txn.Transaction) (txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(t), nil
}

func (s *fakeStore) SetSigned(id, encodedSignedTxn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[id]
	if !ok || t.Status != txn.StatusUnsigned {
		return fault.Userf(409, "transaction %s is not awaiting a signature", id)
	}
	t.EncodedSignedTxn = encodedSignedTxn
	t.Status = txn.StatusSigned
	return nil
}

func (s *fakeStore) groupReadyLocked(t *txn.Transaction) bool {
	if t.GroupID == "" {
		return true
	}
	for _, id := range s.groups[t.GroupID] {
		if s.txns[id].Status != txn.StatusSigned {
			return false
		}
	}
	return true
}

func (s *fakeStore) OldestSigned() (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.txnOrder {
		t := s.txns[id]
		if t != nil && t.Status == txn.StatusSigned && s.groupReadyLocked(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) GroupTransactions(groupID string) ([]txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []txn.Transaction
	for _, id := range s.groups[groupID] {
		out = append(out, *s.txns[id])
	}
	return out, nil
}

func (s *fakeStore) TransactionByID(id string) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) TransactionByAddress(address string) (*txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.txns {
		if t.Address == address {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ClaimForSubmit(ids []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		t, ok := s.txns[id]
		if !ok || t.Status != txn.StatusSigned {
			return false, nil
		}
	}
	for _, id := range ids {
		s.txns[id].Status = txn.StatusSubmitting
	}
	return true, nil
}

func (s *fakeStore) setStatus(ids []string, from, to txn.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if t, ok := s.txns[id]; ok && t.Status == from {
			t.Status = to
		}
	}
}

func (s *fakeStore) ReleaseSubmitClaim(ids []string) error {
	s.setStatus(ids, txn.StatusSubmitting, txn.StatusSigned)
	return nil
}

func (s *fakeStore) MarkPending(ids []string) error {
	s.setStatus(ids, txn.StatusSubmitting, txn.StatusPending)
	return nil
}

func (s *fakeStore) MarkFailed(ids []string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		t, ok := s.txns[id]
		if !ok || t.Status == txn.StatusConfirmed || t.Status == txn.StatusFailed {
			continue
		}
		t.Status = txn.StatusFailed
		t.Error = msg
	}
	return nil
}

func (s *fakeStore) MarkConfirmed(id string) error {
	s.setStatus([]string{id}, txn.StatusPending, txn.StatusConfirmed)
	return nil
}

func (s *fakeStore) PendingTransactions(limit int) ([]txn.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []txn.Transaction
	for _, id := range s.txnOrder {
		if len(out) == limit {
			break
		}
		if t := s.txns[id]; t != nil && t.Status == txn.StatusPending {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteGroup(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.groups[groupID] {
		delete(s.txns, id)
	}
	delete(s.groups, groupID)
	return nil
}

func (s *fakeStore) InsertAccount(a *account.Custodial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.UserID == a.UserID {
			return fault.Userf(409, "user %s already has an account", a.UserID)
		}
	}
	cp := *a
	s.accounts[cp.ID] = &cp
	return nil
}

func (s *fakeStore) AccountByUserID(userID string) (*account.Custodial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.UserID == userID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) AccountByAddress(address string) (*account.Custodial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Address == address {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SetAccountCreationTxn(accountID, txnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok || a.CreationTxnID != "" {
		return false, nil
	}
	a.CreationTxnID = txnID
	return true, nil
}

func (s *fakeStore) ClearAccountCreationTxn(accountID, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.accounts[accountID]; ok && a.CreationTxnID == txnID {
		a.CreationTxnID = ""
	}
	return nil
}

func (s *fakeStore) CollectiblesByPack(packID string) ([]collectible.Collectible, []collectible.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cs []collectible.Collectible
	var ts []collectible.Template
	for _, c := range s.collectibles {
		if c.PackID == packID {
			cs = append(cs, *c)
			ts = append(ts, s.templates[c.TemplateID])
		}
	}
	for i := 0; i < len(cs); i++ {
		for j := i + 1; j < len(cs); j++ {
			if cs[j].Edition < cs[i].Edition {
				cs[i], cs[j] = cs[j], cs[i]
				ts[i], ts[j] = ts[j], ts[i]
			}
		}
	}
	return cs, ts, nil
}

func (s *fakeStore) CollectibleByID(id string) (*collectible.Collectible, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collectibles[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) CollectibleByAddress(assetIndex uint64) (*collectible.Collectible, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.collectibles {
		if c.Address == assetIndex {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SetCollectibleCreationTxn(collectibleID, txnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collectibles[collectibleID]
	if !ok || c.CreationTxnID != "" {
		return false, nil
	}
	c.CreationTxnID = txnID
	return true, nil
}

func (s *fakeStore) ClearCollectibleCreationTxn(collectibleID, txnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collectibles[collectibleID]; ok && c.CreationTxnID == txnID {
		c.CreationTxnID = ""
	}
	return nil
}

func (s *fakeStore) SetCollectibleAddressByCreationTxn(txnID string, assetIndex uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.collectibles {
		if c.CreationTxnID == txnID && c.Address == 0 {
			c.Address = assetIndex
		}
	}
	return nil
}

func (s *fakeStore) SetCollectibleOwner(collectibleID, prevTransferTxnID, transferTxnID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collectibles[collectibleID]
	if !ok || c.LatestTransferTxnID != prevTransferTxnID {
		return false, nil
	}
	c.OwnerID = ownerID
	c.LatestTransferTxnID = transferTxnID
	if c.ClaimedAt == nil {
		now := time.Now()
		c.ClaimedAt = &now
	}
	return true, nil
}

func (s *fakeStore) ClearCollectibleTransferTxn(collectibleID, txnID, prevTxnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collectibles[collectibleID]; ok && c.LatestTransferTxnID == txnID {
		c.LatestTransferTxnID = prevTxnID
	}
	return nil
}

func (s *fakeStore) ReservePack(userID, templateID string) (*pack.Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tpl, ok := s.packTemplates[templateID]
	if !ok || tpl.ReleasedAt.After(time.Now()) {
		return nil, fault.Userf(404, "no eligible pack of template %s for user %s", templateID, userID)
	}

	if tpl.OnePerCustomer {
		for _, p := range s.packs {
			if p.TemplateID == templateID && p.OwnerID == userID {
				return nil, fault.Userf(404, "no eligible pack of template %s for user %s", templateID, userID)
			}
		}
	}
	if tpl.Type == pack.TypePurchase && tpl.Price > s.balances[userID] {
		return nil, fault.Userf(404, "no eligible pack of template %s for user %s", templateID, userID)
	}

	for _, p := range s.packs {
		if p.TemplateID == templateID && p.OwnerID == "" && p.RedeemCode == "" {
			now := time.Now()
			p.OwnerID = userID
			p.ClaimedAt = &now
			cp := *p
			return &cp, nil
		}
	}
	return nil, fault.Userf(404, "no eligible pack of template %s for user %s", templateID, userID)
}

func (s *fakeStore) ReservePackByRedeemCode(userID, redeemCode string) (*pack.Pack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.packs {
		tpl := s.packTemplates[p.TemplateID]
		if p.RedeemCode == redeemCode && p.OwnerID == "" &&
			tpl.Type == pack.TypeRedeem && !tpl.ReleasedAt.After(time.Now()) {
			now := time.Now()
			p.OwnerID = userID
			p.ClaimedAt = &now
			cp := *p
			return &cp, nil
		}
	}
	return nil, fault.Userf(404, "no claimable pack for that redeem code")
}

func (s *fakeStore) ReleasePack(packID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.packs[packID]; ok && p.OwnerID == userID {
		p.OwnerID = ""
		p.ClaimedAt = nil
	}
	return nil
}

// fakeClient is a scripted node. When autoConfirm is set, every
// pending query confirms the transaction at round 1; assignAssets
// additionally hands out increasing asset indexes.
type fakeClient struct {
	mu sync.Mutex

	round        types.Round
	submitErr    error
	submitCalls  int
	autoConfirm  bool
	assignAssets bool
	assetCounter uint64

	pending  map[string]algod.PendingInfo
	accounts map[string]algod.AccountInfo
	assets   map[uint64]algod.AssetInfo
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		round:    1000,
		pending:  make(map[string]algod.PendingInfo),
		accounts: make(map[string]algod.AccountInfo),
		assets:   make(map[uint64]algod.AssetInfo),
	}
}

func (c *fakeClient) SuggestedParams() (types.SuggestedParams, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Advance the round so rebuilt transactions never collide with
	// their dead predecessors.
	c.round += 10
	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}
	return types.SuggestedParams{
		Fee:             1000,
		FlatFee:         true,
		FirstRoundValid: c.round,
		LastRoundValid:  c.round + 1000,
		GenesisID:       "testnet-v1.0",
		GenesisHash:     hash,
		MinFee:          1000,
	}, nil
}

func (c *fakeClient) Submit(stxns []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.submitCalls++
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return "", nil
}

func (c *fakeClient) PendingInfo(txid string) (algod.PendingInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if info, ok := c.pending[txid]; ok {
		return info, nil
	}
	if !c.autoConfirm {
		return algod.PendingInfo{}, nil
	}
	info := algod.PendingInfo{ConfirmedRound: 1}
	if c.assignAssets {
		c.assetCounter++
		info.AssetIndex = c.assetCounter
	}
	c.pending[txid] = info
	return info, nil
}

func (c *fakeClient) AccountInfo(address string) (algod.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accounts[address], nil
}

func (c *fakeClient) AssetInfo(index uint64) (algod.AssetInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assets[index], nil
}

func (c *fakeClient) Compile(source []byte) (algod.CompileResult, error) {
	return algod.CompileResult{}, nil
}

// fakeQueue is an in-memory job list.
type fakeQueue struct {
	mu         sync.Mutex
	jobs       []queue.ClaimJob
	enqueueErr error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job queue.ClaimJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.ClaimJob, error) {
	return q.pop(), nil
}

func (q *fakeQueue) pop() *queue.ClaimJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job
}
