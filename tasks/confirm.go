package tasks

import (
	"context"
	"time"

	"github.com/deptagency/algomart-sub001/log"
	"github.com/deptagency/algomart-sub001/mail"
)

// ConfirmPendingBatch performs one confirmation pass over up to limit
// Pending transactions, oldest first. Rows the node has not decided on
// yet are left Pending for the next pass.
func (p *Processor) ConfirmPendingBatch(limit int) (int, error) {
	pending, err := p.store.PendingTransactions(limit)
	if err != nil {
		return 0, err
	}

	for i, t := range pending {
		if err := p.confirmOne(t); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// runConfirmLoop polls the node for pending decisions until ctx ends.
func (p *Processor) runConfirmLoop(ctx context.Context, interval time.Duration, limit int) {
	defer mail.AlertIfErr()

	log.Printf("Confirmation worker started, poll interval %s", interval)

	for {
		if _, err := p.ConfirmPendingBatch(limit); err != nil {
			logTransient(err)
		}

		select {
		case <-ctx.Done():
			log.Printf("Confirmation worker stopped")
			return
		case <-time.After(interval):
		}
	}
}
