package teams

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sumhouse/sumhouse/internal/testutil"
)

// fakeStore is an in-memory Store for cache tests.
type fakeStore struct {
	mu       sync.Mutex
	teams    map[int64]*Team
	getCalls int
}

func newFakeStore(teams ...*Team) *fakeStore {
	byID := make(map[int64]*Team, len(teams))
	for _, team := range teams {
		byID[team.ID] = team
	}

	return &fakeStore{teams: byID}
}

func (f *fakeStore) GetTeam(_ context.Context, id int64) (*Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++

	team, ok := f.teams[id]
	if !ok {
		return nil, ErrTeamNotFound
	}

	copied := *team

	return &copied, nil
}

func (f *fakeStore) ListRollupEnabled(_ context.Context, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int64, 0, len(f.teams))

	for id, team := range f.teams {
		if team.RollupEnabled {
			ids = append(ids, id)
		}
	}

	if len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}

func (f *fakeStore) SetRollupEnabled(_ context.Context, id int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	team, ok := f.teams[id]
	if !ok {
		return ErrTeamNotFound
	}

	team.RollupEnabled = enabled

	return nil
}

func (f *fakeStore) getCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.getCalls
}

func TestCachedStoreGetTeamMissThenHit(t *testing.T) {
	_, client := testutil.RedisPair(t)
	store := newFakeStore(&Team{ID: 7, Timezone: "UTC", RollupEnabled: true})
	cached := NewCachedStore(logrus.New(), store, client, "sumhouse:team", time.Minute)

	ctx := context.Background()

	first, err := cached.GetTeam(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), first.ID)
	assert.Equal(t, 1, store.getCallCount())

	second, err := cached.GetTeam(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.getCallCount(), "second read should come from cache")
}

func TestCachedStoreGetTeamStaleEntryRefetched(t *testing.T) {
	mr, client := testutil.RedisPair(t)
	store := newFakeStore(&Team{ID: 7, Timezone: "UTC", RollupEnabled: true})
	cached := NewCachedStore(logrus.New(), store, client, "sumhouse:team", time.Minute)

	stale, err := json.Marshal(cachedTeam{
		Team:      Team{ID: 7, Timezone: "Europe/Berlin"},
		UpdatedAt: time.Now().Add(-2 * time.Minute),
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set("sumhouse:team:7", string(stale)))

	team, err := cached.GetTeam(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "UTC", team.Timezone, "stale cached timezone should be replaced by store row")
	assert.Equal(t, 1, store.getCallCount())
}

func TestCachedStoreGetTeamNotFound(t *testing.T) {
	mr, client := testutil.RedisPair(t)
	store := newFakeStore()
	cached := NewCachedStore(logrus.New(), store, client, "sumhouse:team", time.Minute)

	_, err := cached.GetTeam(context.Background(), 404)
	require.ErrorIs(t, err, ErrTeamNotFound)
	assert.False(t, mr.Exists("sumhouse:team:404"), "misses should not be cached")
}

func TestCachedStoreSetRollupEnabledInvalidates(t *testing.T) {
	mr, client := testutil.RedisPair(t)
	store := newFakeStore(&Team{ID: 7, Timezone: "UTC", RollupEnabled: true})
	cached := NewCachedStore(logrus.New(), store, client, "sumhouse:team", time.Minute)

	ctx := context.Background()

	_, err := cached.GetTeam(ctx, 7)
	require.NoError(t, err)
	require.True(t, mr.Exists("sumhouse:team:7"))

	require.NoError(t, cached.SetRollupEnabled(ctx, 7, false))
	assert.False(t, mr.Exists("sumhouse:team:7"), "flag write should drop the cached row")

	team, err := cached.GetTeam(ctx, 7)
	require.NoError(t, err)
	assert.False(t, team.RollupEnabled)
	assert.Equal(t, 2, store.getCallCount())
}

func TestCachedStoreListPassesThrough(t *testing.T) {
	_, client := testutil.RedisPair(t)
	store := newFakeStore(
		&Team{ID: 1, RollupEnabled: true},
		&Team{ID: 2, RollupEnabled: false},
	)
	cached := NewCachedStore(logrus.New(), store, client, "sumhouse:team", time.Minute)

	ids, err := cached.ListRollupEnabled(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}
