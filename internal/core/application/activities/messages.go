package activities

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FallbackDelayMessage is sent when no composed message is available.
func FallbackDelayMessage(delayMinutes int64) string {
	return fmt.Sprintf("Heads up: your freight is running about %d minutes late. We'll update you soon.", delayMinutes)
}

// IdempotencyKey derives the dispatch key for a delivery's delay
// notification. It is stable across retries, replays and rotations.
func IdempotencyKey(contactPhone, deliveryID string) string {
	sum := sha256.Sum256([]byte(contactPhone + "-" + deliveryID))
	return hex.EncodeToString(sum[:])
}
