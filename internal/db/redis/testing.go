package redis

import (
	"time"

	"github.com/redis/rueidis"
)

// NewStoreForTest wraps a (mock) rueidis client. Readiness polls every 10ms.
func NewStoreForTest(c rueidis.Client) *Store {
	return newStore(c, 10*time.Millisecond)
}
