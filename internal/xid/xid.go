package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewAt returns an identifier that sorts by creation time and stays unique
// when two calls land on the same clock tick.
func NewAt(prefix string, at time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%013d-%d", prefix, at.UnixMilli(), at.UnixNano()%1_000_000)
	}
	return fmt.Sprintf("%s-%013d-%s", prefix, at.UnixMilli(), hex.EncodeToString(buf))
}
