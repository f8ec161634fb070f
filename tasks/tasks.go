package tasks

import (
	"context"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"

	"github.com/deptagency/algomart-sub001/algod"
	"github.com/deptagency/algomart-sub001/config"
	"github.com/deptagency/algomart-sub001/db"
	"github.com/deptagency/algomart-sub001/keycipher"
	"github.com/deptagency/algomart-sub001/log"
	"github.com/deptagency/algomart-sub001/queue"
)

// Run wires the processor from the loaded configuration and starts the
// worker goroutines: one submitter, one confirmer and the configured
// number of claim consumers.
func Run(ctx context.Context) *Processor {
	key, err := mnemonic.ToPrivateKey(config.GetFundingMnemonic())
	if err != nil {
		panic(err)
	}
	funding, err := crypto.AccountFromPrivateKey(key)
	if err != nil {
		panic(err)
	}

	addr, password, redisDB, queueKey := config.GetRedis()
	jobs := queue.New(addr, password, redisDB, queueKey)

	client := algod.NewHTTP(config.GetAlgodURL(), config.GetAlgodToken())
	cipher := keycipher.NewSecretbox(config.GetAppSecret())

	p := NewProcessor(db.NewStore(), client, jobs, cipher, funding, Options{
		DappName:       config.GetDappName(),
		EnforcerAppID:  config.GetEnforcerAppID(),
		InitialBalance: config.GetInitialBalance(),
		ExtraRounds:    config.GetExtraRounds(),
	})

	log.Printf("Starting workers. funding address=%s", funding.Address)

	go p.runSubmitLoop(ctx, time.Duration(config.GetSubmitIntervalMs())*time.Millisecond)
	go p.runConfirmLoop(ctx, time.Duration(config.GetConfirmIntervalMs())*time.Millisecond, config.GetConfirmBatchLimit())

	for i := 0; i < config.GetGoroutines(); i++ {
		go p.runClaimWorker(ctx)
	}

	return p
}
