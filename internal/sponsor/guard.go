package sponsor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
)

// Guard marks users with a create in flight so a second create for the same
// user is refused before it reaches the worker. Keys expire after ttl in case
// a release is lost.
type Guard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewGuard(rdb *redis.Client, ttl time.Duration) *Guard {
	return &Guard{rdb: rdb, ttl: ttl}
}

func inflightKey(user common.Address) string {
	return fmt.Sprintf(voucher.InflightKeyFmt, strings.ToLower(user.Hex()))
}

// Acquire returns false when user already holds the guard.
func (g *Guard) Acquire(ctx context.Context, user common.Address) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, inflightKey(user), time.Now().Unix(), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire inflight guard: %w", err)
	}
	return ok, nil
}

// Release drops the guard for user.
func (g *Guard) Release(ctx context.Context, user common.Address) error {
	return g.rdb.Del(ctx, inflightKey(user)).Err()
}

// ClearStale drops every in-flight marker. The worker queue is in memory, so
// markers left by a previous process can never be released.
func (g *Guard) ClearStale(ctx context.Context) (int, error) {
	pattern := fmt.Sprintf(voucher.InflightKeyFmt, "*")
	var (
		cursor  uint64
		cleared int
	)
	for {
		keys, next, err := g.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return cleared, fmt.Errorf("scan inflight guards: %w", err)
		}
		if len(keys) > 0 {
			n, err := g.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return cleared, fmt.Errorf("clear inflight guards: %w", err)
			}
			cleared += int(n)
		}
		if next == 0 {
			return cleared, nil
		}
		cursor = next
	}
}
