package strategy

import (
	"github.com/ethereum/go-ethereum/log"
)

// Progress accumulates a per-wallet item count and flushes a log line
// every batch, mirroring the teacher's own periodic "Migration progress"
// logging in its bucket-migration tooling.
type Progress struct {
	wallet string
	total  int
}

// NewProgress starts a counter scoped to one wallet's migration.
func NewProgress(wallet string) *Progress {
	return &Progress{wallet: wallet}
}

// Add records n newly migrated items and logs the running total.
func (p *Progress) Add(n int) {
	p.total += n
	log.Info("Migration progress", "wallet", p.wallet, "migrated", p.total)
}

// Done logs the final count for the wallet.
func (p *Progress) Done() {
	log.Info("Migration complete", "wallet", p.wallet, "migrated", p.total)
}
