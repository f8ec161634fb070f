// Package cache holds in-process caches for node data that is safe to
// reuse between polls.
package cache

import (
	"sync"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

var (
	paramsLock    sync.Mutex
	cachedParams  types.SuggestedParams
	paramsFetched time.Time

	// paramsTTL keeps reused parameters well inside a single round.
	paramsTTL = 2 * time.Second
)

// GetParams returns the cached suggested parameters, or ok=false when
// nothing fresh is cached.
func GetParams() (types.SuggestedParams, bool) {
	paramsLock.Lock()
	defer paramsLock.Unlock()

	if time.Since(paramsFetched) > paramsTTL {
		return types.SuggestedParams{}, false
	}
	return cachedParams, true
}

// PutParams stores freshly fetched parameters.
func PutParams(sp types.SuggestedParams) {
	paramsLock.Lock()
	defer paramsLock.Unlock()

	cachedParams = sp
	paramsFetched = time.Now()
}

// InvalidateParams drops the cached parameters. Called when a built
// transaction dies of an expired validity window, which means the
// cached rounds are behind the chain.
func InvalidateParams() {
	paramsLock.Lock()
	defer paramsLock.Unlock()

	paramsFetched = time.Time{}
}
