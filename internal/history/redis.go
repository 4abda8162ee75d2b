package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

// RedisStore keeps history in a capped Redis list per wallet.
type RedisStore struct {
	client redis.Cmdable
}

var _ storage.HistoryStore = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Add(ctx context.Context, wallet string, entry models.SwapHistoryEntry) error {
	if err := validate(wallet, &entry); err != nil {
		return err
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	key := historyKey(wallet)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, Capacity-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add history entry: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, wallet string) ([]models.SwapHistoryEntry, error) {
	vals, err := s.client.LRange(ctx, historyKey(wallet), 0, Capacity-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	out := make([]models.SwapHistoryEntry, 0, len(vals))
	for _, v := range vals {
		var e models.SwapHistoryEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// replaceEntry swaps ARGV[1] for ARGV[2] wherever it now sits in the first
// ARGV[3] elements. Matching on the value, not on a previously read index,
// keeps concurrent LPUSHes from redirecting the write.
var replaceEntry = redis.NewScript(`
local vals = redis.call('LRANGE', KEYS[1], 0, tonumber(ARGV[3]) - 1)
for i, v in ipairs(vals) do
  if v == ARGV[1] then
    redis.call('LSET', KEYS[1], i - 1, ARGV[2])
    return 1
  end
end
return 0
`)

const updateAttempts = 3

// UpdateStatus rewrites the matching entry in place.
func (s *RedisStore) UpdateStatus(ctx context.Context, wallet, txID string, status models.SwapStatus) error {
	key := historyKey(wallet)
	for attempt := 0; attempt < updateAttempts; attempt++ {
		vals, err := s.client.LRange(ctx, key, 0, Capacity-1).Result()
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}

		old, updated, ok := findEntry(vals, txID, status)
		if !ok {
			return storage.ErrNotFound
		}
		if updated == nil {
			return nil
		}

		n, err := replaceEntry.Run(ctx, s.client, []string{key}, old, updated, Capacity).Int()
		if err != nil {
			return fmt.Errorf("update history entry: %w", err)
		}
		if n == 1 {
			return nil
		}
		// The entry changed underneath us; read again.
	}
	return fmt.Errorf("update history entry %s: concurrent modification", txID)
}

// findEntry returns the raw entry for txID and its re-encoded form with status
// applied. updated is nil when the entry already has that status.
func findEntry(vals []string, txID string, status models.SwapStatus) (old string, updated []byte, ok bool) {
	for _, v := range vals {
		var e models.SwapHistoryEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil || e.TxID != txID {
			continue
		}
		if e.Status == status {
			return v, nil, true
		}
		e.Status = status
		b, err := json.Marshal(e)
		if err != nil {
			return "", nil, false
		}
		return v, b, true
	}
	return "", nil, false
}

func historyKey(wallet string) string {
	return constants.HistoryKeyPrefix + wallet
}
