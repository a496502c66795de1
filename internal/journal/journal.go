// Package journal keeps failed voucher batches in a Redis dead-letter list.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/Vara-Lab/Vara-Gasless-Server/internal/voucher"
	"github.com/Vara-Lab/Vara-Gasless-Server/internal/worker"
)

// DefaultMaxLen caps the list; older batches are trimmed first.
const DefaultMaxLen = 1000

// Journal is a worker.FailureJournal backed by one Redis list per program.
type Journal struct {
	rdb    *redis.Client
	key    string
	maxLen int64
}

func New(rdb *redis.Client, program common.Address) *Journal {
	return &Journal{
		rdb:    rdb,
		key:    fmt.Sprintf(voucher.FailedBatchesKeyFmt, strings.ToLower(program.Hex())),
		maxLen: DefaultMaxLen,
	}
}

// Key returns the Redis list key.
func (j *Journal) Key() string { return j.key }

// RecordFailedBatch appends fb to the list.
func (j *Journal) RecordFailedBatch(ctx context.Context, fb worker.FailedBatch) error {
	raw, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal failed batch: %w", err)
	}
	pipe := j.rdb.TxPipeline()
	pipe.RPush(ctx, j.key, string(raw))
	pipe.LTrim(ctx, j.key, -j.maxLen, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push failed batch: %w", err)
	}
	return nil
}

// Recent returns up to n failed batches, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]worker.FailedBatch, error) {
	if n <= 0 {
		return nil, nil
	}
	raws, err := j.rdb.LRange(ctx, j.key, -int64(n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read failed batches: %w", err)
	}
	out := make([]worker.FailedBatch, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var fb worker.FailedBatch
		if err := json.Unmarshal([]byte(raws[i]), &fb); err != nil {
			return nil, fmt.Errorf("decode failed batch: %w", err)
		}
		out = append(out, fb)
	}
	return out, nil
}

// Len returns the number of stored batches.
func (j *Journal) Len(ctx context.Context) (int64, error) {
	return j.rdb.LLen(ctx, j.key).Result()
}
