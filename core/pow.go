package core

import (
	"context"
	"strconv"
	"strings"
)

// proofPrefix is the required prefix of a valid puzzle digest.
const proofPrefix = "00"

// ctxPollInterval is how many proofs are tried between context checks.
const ctxPollInterval = 1024

// ValidProof reports whether proof solves the puzzle for txs on top of lastHash.
func ValidProof(txs []Transaction, lastHash string, proof int) bool {
	return strings.HasPrefix(hashHex(PuzzleInput(txs, lastHash, proof)), proofPrefix)
}

// ProofOfWork returns the smallest non-negative proof solving the puzzle.
// The search has no upper bound; it only stops early when ctx is done.
func ProofOfWork(ctx context.Context, txs []Transaction, lastHash string) (int, error) {
	prefix := puzzlePrefix(txs, lastHash)
	buf := make([]byte, 0, len(prefix)+20)
	for proof := 0; ; proof++ {
		if proof%ctxPollInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		buf = strconv.AppendInt(append(buf[:0], prefix...), int64(proof), 10)
		if strings.HasPrefix(hashHex(buf), proofPrefix) {
			return proof, nil
		}
	}
}
