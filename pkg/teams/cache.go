package teams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sumhouse/sumhouse/pkg/observability"
)

// cachedTeam is the Redis payload for one team row.
type cachedTeam struct {
	Team      Team      `json:"team"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CachedStore layers a Redis cache over another Store. Only GetTeam is
// cached; the enabled-team listing is a discovery-time scan and flag
// writes always go straight through and invalidate.
type CachedStore struct {
	log       logrus.FieldLogger
	store     Store
	redis     *redis.Client
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps store with a Redis cache. keyPrefix should carry
// the deployment namespace, e.g. "sumhouse:team".
func NewCachedStore(log logrus.FieldLogger, store Store, redisClient *redis.Client, keyPrefix string, ttl time.Duration) *CachedStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &CachedStore{
		log:       log.WithField("component", "teams_cache"),
		store:     store,
		redis:     redisClient,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (c *CachedStore) key(id int64) string {
	return fmt.Sprintf("%s:%d", c.keyPrefix, id)
}

// GetTeam returns the cached row when fresh, otherwise reads through.
func (c *CachedStore) GetTeam(ctx context.Context, id int64) (*Team, error) {
	key := c.key(id)

	data, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var cached cachedTeam

		if jsonErr := json.Unmarshal([]byte(data), &cached); jsonErr == nil {
			if time.Since(cached.UpdatedAt) <= c.ttl {
				observability.RecordTeamCacheHit()

				return &cached.Team, nil
			}

			// Stale entry, drop it and fall through to the store
			c.redis.Del(ctx, key)
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.WithError(err).WithField("team_id", id).Debug("Team cache read failed")
	}

	observability.RecordTeamCacheMiss()

	team, err := c.store.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, team)

	return team, nil
}

func (c *CachedStore) set(ctx context.Context, key string, team *Team) {
	payload, err := json.Marshal(cachedTeam{
		Team:      *team,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		c.log.WithError(err).WithField("team_id", team.ID).Debug("Team cache marshal failed")

		return
	}

	if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("team_id", team.ID).Debug("Team cache write failed")
	}
}

// ListRollupEnabled always reads from the underlying store.
func (c *CachedStore) ListRollupEnabled(ctx context.Context, limit int) ([]int64, error) {
	return c.store.ListRollupEnabled(ctx, limit)
}

// SetRollupEnabled writes through and invalidates the cached row.
func (c *CachedStore) SetRollupEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := c.store.SetRollupEnabled(ctx, id, enabled); err != nil {
		return err
	}

	c.Invalidate(ctx, id)

	return nil
}

// Invalidate drops the cached row for one team.
func (c *CachedStore) Invalidate(ctx context.Context, id int64) {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		c.log.WithError(err).WithField("team_id", id).Debug("Team cache invalidation failed")
	}
}
