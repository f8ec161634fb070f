package cache

import (
	"testing"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
	"github.com/stretchr/testify/assert"

	"github.com/deptagency/algomart-sub001/algod"
)

func TestParamsCache(t *testing.T) {
	InvalidateParams()

	_, ok := GetParams()
	assert.False(t, ok)

	PutParams(types.SuggestedParams{FirstRoundValid: 100, LastRoundValid: 1100})
	sp, ok := GetParams()
	assert.True(t, ok)
	assert.Equal(t, types.Round(100), sp.FirstRoundValid)

	InvalidateParams()
	_, ok = GetParams()
	assert.False(t, ok)
}

func TestParamsExpire(t *testing.T) {
	PutParams(types.SuggestedParams{FirstRoundValid: 100})

	paramsLock.Lock()
	paramsFetched = time.Now().Add(-paramsTTL - time.Second)
	paramsLock.Unlock()

	_, ok := GetParams()
	assert.False(t, ok)
}

func TestAssetCache(t *testing.T) {
	_, ok := GetAsset(42)
	assert.False(t, ok)

	PutAsset(algod.AssetInfo{Index: 42, Params: algod.AssetParams{UnitName: "RARE01"}})

	info, ok := GetAsset(42)
	assert.True(t, ok)
	assert.Equal(t, "RARE01", info.Params.UnitName)
}
