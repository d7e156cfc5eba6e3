package core

import (
	"github.com/codahale/metrics"
)

var (
	txAccepted       = metrics.Counter("ledger.tx.accepted")
	txRejected       = metrics.Counter("ledger.tx.rejected")
	blocksMined      = metrics.Counter("ledger.blocks.mined")
	blocksAccepted   = metrics.Counter("ledger.blocks.accepted")
	blocksRejected   = metrics.Counter("ledger.blocks.rejected")
	chainReplaced    = metrics.Counter("ledger.chain.replaced")
	peersUnreachable = metrics.Counter("ledger.peers.unreachable")
	saveFailed       = metrics.Counter("ledger.save.failed")

	chainHeight = metrics.Gauge("ledger.chain.height")
	poolSize    = metrics.Gauge("ledger.pool.size")
)
