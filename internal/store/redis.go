package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the Redis-backed half of the Notification Store: the dedupe
// lease (preventing two concurrent dispatches for the same key from both
// proceeding) and the UserMetrics LRU described in §5 ("a single
// in-memory LRU of UserMetrics keyed by userId with TTL=1h permitted to
// reduce read amplification, writes invalidate entry") — backed here by
// Redis so it is shared across API and worker processes rather than
// living in either process's heap.
type Cache struct {
	client *redis.Client
}

// NewCache wraps an existing Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

const (
	dedupeLeaseKeyPrefix = "dedupe:lease:"
	userMetricsKeyPrefix = "usermetrics:"
	userMetricsTTL       = time.Hour
)

// AcquireDedupeLease atomically claims a dedupe key for the duration of
// one dispatch attempt, so two concurrent dispatches for the same
// (feature,orgId,recipient,entityId) cannot both pass the dedupe check
// before either has written its SentRecord (§5 ordering guarantee,
// complementing the unique DB constraint with a fast in-flight guard).
func (c *Cache) AcquireDedupeLease(ctx context.Context, dedupeKey string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, dedupeLeaseKeyPrefix+dedupeKey, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire dedupe lease: %w", err)
	}
	return ok, nil
}

// ReleaseDedupeLease releases a dedupe lease early — used when a
// dispatch attempt aborts before recording a SentRecord, so a later
// legitimate attempt is not blocked for the full TTL.
func (c *Cache) ReleaseDedupeLease(ctx context.Context, dedupeKey string) error {
	if err := c.client.Del(ctx, dedupeLeaseKeyPrefix+dedupeKey).Err(); err != nil {
		return fmt.Errorf("release dedupe lease: %w", err)
	}
	return nil
}

// CachedUserMetrics is the subset of UserMetrics worth caching — the
// scores and derived fields the policy engine and dispatcher consult on
// every dispatch attempt.
type CachedUserMetrics struct {
	UserID             string    `json:"user_id"`
	OrgID              string    `json:"org_id"`
	OverallScore       int       `json:"overall_score"`
	Segment            string    `json:"segment"`
	FatigueScore       int       `json:"fatigue_score"`
	PreferredFrequency string    `json:"preferred_frequency"`
	PeakHour           *int      `json:"peak_hour,omitempty"`
	TypicalActiveHours map[int][]int `json:"typical_active_hours,omitempty"`
	CachedAt           time.Time `json:"cached_at"`
}

// GetUserMetrics returns the cached metrics row for userID, or
// (nil, nil) on a cache miss — callers fall through to the durable
// store and repopulate via SetUserMetrics.
func (c *Cache) GetUserMetrics(ctx context.Context, userID string) (*CachedUserMetrics, error) {
	raw, err := c.client.Get(ctx, userMetricsKeyPrefix+userID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get user metrics cache: %w", err)
	}
	var metrics CachedUserMetrics
	if err := json.Unmarshal([]byte(raw), &metrics); err != nil {
		return nil, fmt.Errorf("unmarshal user metrics cache: %w", err)
	}
	return &metrics, nil
}

// SetUserMetrics populates the LRU entry for userID with a fixed 1h TTL.
func (c *Cache) SetUserMetrics(ctx context.Context, metrics CachedUserMetrics) error {
	metrics.CachedAt = time.Now()
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal user metrics cache: %w", err)
	}
	if err := c.client.Set(ctx, userMetricsKeyPrefix+metrics.UserID, data, userMetricsTTL).Err(); err != nil {
		return fmt.Errorf("set user metrics cache: %w", err)
	}
	return nil
}

// InvalidateUserMetrics drops the cache entry for userID — called after
// any write to the durable UserMetrics row.
func (c *Cache) InvalidateUserMetrics(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, userMetricsKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("invalidate user metrics cache: %w", err)
	}
	return nil
}

// PendingBatchDepth returns the number of notifications currently
// batched for a user — used by the policy engine's ShouldBatch decision.
func (c *Cache) PendingBatchDepth(ctx context.Context, userID string) (int, error) {
	n, err := c.client.LLen(ctx, "batch:pending:"+userID).Result()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("pending batch depth: %w", err)
	}
	return int(n), nil
}

// AppendToBatch adds a notification payload to a user's pending batch.
func (c *Cache) AppendToBatch(ctx context.Context, userID string, payload []byte) error {
	if err := c.client.RPush(ctx, "batch:pending:"+userID, payload).Err(); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}
	return nil
}

// DrainBatch removes and returns every queued payload for a user's batch.
func (c *Cache) DrainBatch(ctx context.Context, userID string) ([][]byte, error) {
	key := "batch:pending:" + userID
	pipe := c.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("drain batch: %w", err)
	}
	vals := rangeCmd.Val()
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}
