package tasks

import (
	"context"
	"time"

	"github.com/deptagency/algomart-sub001/log"
	"github.com/deptagency/algomart-sub001/mail"
)

// SubmitPendingBatch performs one submission pass: take the oldest
// fully signed transaction, claim its whole group and broadcast it as
// one call. Returns true when it found work.
func (p *Processor) SubmitPendingBatch() (bool, error) {
	head, err := p.store.OldestSigned()
	if err != nil {
		return false, err
	}
	if head == nil {
		return false, nil
	}

	members, err := p.memberRows(*head)
	if err != nil {
		return false, err
	}
	if len(members) == 0 {
		return false, nil
	}

	return true, p.submitMembers(members)
}

// runSubmitLoop polls the store for signed work until ctx ends.
func (p *Processor) runSubmitLoop(ctx context.Context, interval time.Duration) {
	defer mail.AlertIfErr()

	log.Printf("Submission worker started, poll interval %s", interval)

	for {
		worked, err := p.SubmitPendingBatch()
		if err != nil {
			logTransient(err)
		}

		// Drain the backlog before sleeping again.
		if worked && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			log.Printf("Submission worker stopped")
			return
		case <-time.After(interval):
		}
	}
}
