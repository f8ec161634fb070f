// Package note builds ARC-2 transaction notes: a dApp name prefix, the
// "j" format marker and a compact JSON payload. Every transaction this
// engine submits carries one so that on-chain activity can be audited
// back to the operation that produced it.
package note

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/deptagency/algomart-sub001/fault"
)

// Type tags the operation a note belongs to.
type Type string

const (
	TypeCustodialFundPayment      Type = "cifp"
	TypeCustodialNonParticipation Type = "cinp"
	TypeAssetCreate               Type = "nftc"

	TypeClawbackPayFunds Type = "ctpf"
	TypeClawbackOptIn    Type = "ctoi"
	TypeClawbackTransfer Type = "ctxf"

	TypeExportPayFunds    Type = "expf"
	TypeExportOptIn       Type = "exoi"
	TypeExportTransfer    Type = "extx"
	TypeExportOptOut      Type = "exoo"
	TypeExportReturnFunds Type = "exrf"

	TypeImportPayFunds Type = "impf"
	TypeImportOptIn    Type = "imoi"
	TypeImportTransfer Type = "imtx"
	TypeImportOptOut   Type = "imoo"

	TypeTradePayFunds    Type = "trpf"
	TypeTradeOptIn       Type = "troi"
	TypeTradeTransfer    Type = "trtx"
	TypeTradeOptOut      Type = "troo"
	TypeTradeReturnFunds Type = "trrf"
)

// Payload is the JSON body of a note. Keys are single letters to keep
// notes well under the ledger's 1KB note limit.
type Payload struct {
	Type          Type     `json:"t"`
	Reference     string   `json:"r,omitempty"`
	AssetIndex    uint64   `json:"a,omitempty"`
	Edition       uint64   `json:"e,omitempty"`
	TotalEditions uint64   `json:"n,omitempty"`
	Standards     []string `json:"s,omitempty"`
}

// dApp name rules from the ARC-2 convention.
var appIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_/@.-]{4,31}$`)

// Encode serializes p as an ARC-2 note "<appID>:j<json>".
func Encode(appID string, p Payload) ([]byte, error) {
	if !appIDPattern.MatchString(appID) {
		return nil, fault.Userf(400, "invalid app id %q", appID)
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fault.Wrap(err)
	}

	return []byte(fmt.Sprintf("%s:j%s", appID, body)), nil
}

// Decode splits an ARC-2 note back into its app id and payload.
func Decode(raw []byte) (string, Payload, error) {
	var p Payload

	idx := bytes.IndexByte(raw, ':')
	if idx < 0 || len(raw) < idx+2 || raw[idx+1] != 'j' {
		return "", p, fault.Userf(400, "note is not ARC-2 JSON encoded")
	}

	appID := string(raw[:idx])
	if !appIDPattern.MatchString(appID) {
		return "", p, fault.Userf(400, "invalid app id %q", appID)
	}

	if err := json.Unmarshal(raw[idx+2:], &p); err != nil {
		return "", p, fault.Wrap(err)
	}

	return appID, p, nil
}
