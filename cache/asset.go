package cache

import (
	"sync"

	"github.com/deptagency/algomart-sub001/algod"
)

var (
	assetLock  sync.Mutex
	assetCache = make(map[uint64]algod.AssetInfo)
)

// GetAsset returns cached asset info by index. Only immutable creation
// parameters should ever be read from the cached copy.
func GetAsset(index uint64) (algod.AssetInfo, bool) {
	assetLock.Lock()
	defer assetLock.Unlock()

	info, ok := assetCache[index]
	return info, ok
}

// PutAsset caches one asset's info under its index.
func PutAsset(info algod.AssetInfo) {
	assetLock.Lock()
	defer assetLock.Unlock()

	assetCache[info.Index] = info
}
