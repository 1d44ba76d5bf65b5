package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Document keys. Each key holds one complete serialized document that is
// replaced wholesale on every write.
const (
	KeyReadings   = "fuel_nozzles"
	KeyFinancials = "fuel_financials"
	KeyPrices     = "fuel_prices"
	KeyHistory    = "fuel_history"
)

// Backend is a whole-document key/value store. Get returns ErrNotFound when
// the key has never been written.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}
