// Package algod talks to an Algorand node's REST API. The Client
// interface is what the workers program against; HTTP is the fasthttp
// implementation used in production.
package algod

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/valyala/fasthttp"

	"github.com/deptagency/algomart-sub001/fault"
)

// Client is the node surface the engine depends on.
type Client interface {
	// SuggestedParams returns the current network parameters with the
	// default 1000-round validity window.
	SuggestedParams() (types.SuggestedParams, error)
	// Submit broadcasts raw signed transaction bytes (one transaction
	// or a concatenated group) and returns the id of the first.
	Submit(stxns []byte) (string, error)
	// PendingInfo reports the pool status of a submitted transaction.
	PendingInfo(txid string) (PendingInfo, error)
	AccountInfo(address string) (AccountInfo, error)
	AssetInfo(index uint64) (AssetInfo, error)
	// Compile assembles TEAL source on the node.
	Compile(source []byte) (CompileResult, error)
}

// PendingInfo is the subset of the pending-transaction response the
// confirmation worker reads.
type PendingInfo struct {
	ConfirmedRound uint64 `json:"confirmed-round"`
	PoolError      string `json:"pool-error"`
	AssetIndex     uint64 `json:"asset-index"`
	AppIndex       uint64 `json:"application-index"`
}

// AccountHolding is one asset position of an account.
type AccountHolding struct {
	AssetID uint64 `json:"asset-id"`
	Amount  uint64 `json:"amount"`
}

// AccountInfo is the subset of the account response used for opt-in
// checks and balance predicates.
type AccountInfo struct {
	Address string           `json:"address"`
	Amount  uint64           `json:"amount"`
	Assets  []AccountHolding `json:"assets"`
}

// HoldsAsset reports whether the account has opted in to the asset.
func (a AccountInfo) HoldsAsset(index uint64) bool {
	for _, h := range a.Assets {
		if h.AssetID == index {
			return true
		}
	}
	return false
}

// AssetParams is the on-chain asset configuration.
type AssetParams struct {
	Creator       string `json:"creator"`
	Clawback      string `json:"clawback"`
	DefaultFrozen bool   `json:"default-frozen"`
	UnitName      string `json:"unit-name"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Total         uint64 `json:"total"`
}

// AssetInfo is the asset lookup response.
type AssetInfo struct {
	Index  uint64      `json:"index"`
	Params AssetParams `json:"params"`
}

// CompileResult is the TEAL compile response.
type CompileResult struct {
	Hash   string `json:"hash"`
	Result string `json:"result"`
}

// NodeError is a rejection the node itself produced, as opposed to a
// transport failure. Submissions failing with a NodeError are final;
// transport failures are retried.
type NodeError struct {
	Status  int
	Message string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node rejected request (%d): %s", e.Status, e.Message)
}

// IsAlreadyInLedger reports whether err is the node telling us the
// transaction was committed in an earlier attempt. Callers treat it as
// success.
func IsAlreadyInLedger(err error) bool {
	var ne *NodeError
	return errors.As(err, &ne) && strings.Contains(ne.Message, "already in ledger")
}

// IsTransactionDead reports whether err means the transaction's
// validity window has passed and it can never commit.
func IsTransactionDead(err error) bool {
	var ne *NodeError
	return errors.As(err, &ne) && strings.Contains(ne.Message, "txn dead")
}

const tokenHeader = "X-Algo-API-Token"

// validityWindow is the round span stamped onto suggested params.
const validityWindow = 1000

// HTTP implements Client against a node's REST endpoint.
type HTTP struct {
	baseURL string
	token   string
	client  *fasthttp.Client
}

// NewHTTP builds a client for the node at baseURL authenticating with
// token.
func NewHTTP(baseURL, token string) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &fasthttp.Client{
			ReadTimeout:  20 * time.Second,
			WriteTimeout: 20 * time.Second,
		},
	}
}

type paramsResponse struct {
	ConsensusVersion string `json:"consensus-version"`
	Fee              uint64 `json:"fee"`
	GenesisID        string `json:"genesis-id"`
	GenesisHash      string `json:"genesis-hash"`
	LastRound        uint64 `json:"last-round"`
	MinFee           uint64 `json:"min-fee"`
}

func (h *HTTP) SuggestedParams() (types.SuggestedParams, error) {
	var resp paramsResponse
	if err := h.do("GET", "/v2/transactions/params", "", nil, &resp); err != nil {
		return types.SuggestedParams{}, err
	}

	hash, err := base64.StdEncoding.DecodeString(resp.GenesisHash)
	if err != nil {
		return types.SuggestedParams{}, fault.Wrap(err)
	}

	return types.SuggestedParams{
		Fee:              types.MicroAlgos(resp.Fee),
		GenesisID:        resp.GenesisID,
		GenesisHash:      hash,
		FirstRoundValid:  types.Round(resp.LastRound),
		LastRoundValid:   types.Round(resp.LastRound + validityWindow),
		ConsensusVersion: resp.ConsensusVersion,
		MinFee:           resp.MinFee,
	}, nil
}

func (h *HTTP) Submit(stxns []byte) (string, error) {
	var resp struct {
		TxID string `json:"txId"`
	}
	err := h.do("POST", "/v2/transactions", "application/x-binary", stxns, &resp)
	if err != nil {
		return "", err
	}
	return resp.TxID, nil
}

func (h *HTTP) PendingInfo(txid string) (PendingInfo, error) {
	var resp PendingInfo
	err := h.do("GET", "/v2/transactions/pending/"+txid+"?format=json", "", nil, &resp)
	return resp, err
}

func (h *HTTP) AccountInfo(address string) (AccountInfo, error) {
	var resp AccountInfo
	err := h.do("GET", "/v2/accounts/"+address, "", nil, &resp)
	return resp, err
}

func (h *HTTP) AssetInfo(index uint64) (AssetInfo, error) {
	var resp AssetInfo
	err := h.do("GET", fmt.Sprintf("/v2/assets/%d", index), "", nil, &resp)
	return resp, err
}

func (h *HTTP) Compile(source []byte) (CompileResult, error) {
	var resp CompileResult
	err := h.do("POST", "/v2/teal/compile", "application/x-binary", source, &resp)
	return resp, err
}
