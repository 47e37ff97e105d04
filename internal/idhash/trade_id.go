package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(instrument|seq|timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	instrument string,
	seq uint64,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%d|%d",
		instrument,
		seq,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
