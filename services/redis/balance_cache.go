package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/redis/go-redis/v9"
)

// balanceTTL is deliberately short: the cache only absorbs repeated
// balance reads between mutations, it is never the source of truth.
const balanceTTL = 30 * time.Second

var ErrCacheMiss = errors.New("balance not in cache")

// BalanceCache keeps per-account balance summaries in Redis. Every
// balance mutation must call Invalidate for its account(s).
type BalanceCache struct {
	client *redis.Client
}

func NewBalanceCache(service *RedisService) *BalanceCache {
	return &BalanceCache{client: service.Client}
}

func balanceKey(accountID int64) string {
	return fmt.Sprintf("wallet:balance:%d", accountID)
}

func (c *BalanceCache) Get(ctx context.Context, accountID int64) (ledger.BalanceSummary, error) {
	var summary ledger.BalanceSummary

	raw, err := c.client.Get(ctx, balanceKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return summary, ErrCacheMiss
		}
		return summary, err
	}

	if err := json.Unmarshal(raw, &summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (c *BalanceCache) Store(ctx context.Context, accountID int64, summary ledger.BalanceSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, balanceKey(accountID), raw, balanceTTL).Err()
}

func (c *BalanceCache) Invalidate(ctx context.Context, accountIDs ...int64) error {
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, balanceKey(id))
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
