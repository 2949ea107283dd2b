package ussd

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/VoteFox/app/models"
	"github.com/ManuelReschke/VoteFox/app/repository"
	"github.com/ManuelReschke/VoteFox/internal/pkg/testutil"
)

func exerciseStore(t *testing.T, store SessionStore) {
	ctx := context.Background()

	missing, err := store.Load(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Now()
	eventID := uint(4)
	s := &models.USSDSession{SessionID: "store-1"}
	s.Reset("233241234567", now)
	s.CurrentStep = models.USSDStepEnterVotes
	s.EventID = &eventID
	s.Amount = decimal.RequireFromString("2.50")
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "store-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, models.USSDStepEnterVotes, loaded.CurrentStep)
	require.NotNil(t, loaded.EventID)
	assert.Equal(t, eventID, *loaded.EventID)
	assert.True(t, loaded.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, loaded.IsAlive(now.Add(time.Minute)))
}

func TestDBStore(t *testing.T) {
	db := testutil.NewDB(t)
	exerciseStore(t, NewDBStore(repository.NewUSSDSessionRepository(db)))
}

func TestRedisStore(t *testing.T) {
	rdb := testutil.NewRedisClient(t, testutil.RedisDBUSSD)
	store := NewRedisStore(rdb, 0)
	exerciseStore(t, store)

	ttl, err := rdb.TTL(context.Background(), redisSessionKeyPrefix+"store-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, models.USSDSessionTTL)
}

func TestMachineWithRedisStore(t *testing.T) {
	rdb := testutil.NewRedisClient(t, testutil.RedisDBUSSD)
	h := newHarness(t)
	h.machine.store = NewRedisStore(rdb, 0)

	reply := h.walkToConfirm(t, "redis-sess")
	assert.Contains(t, reply.Message, "Total: 3.00")
	reply = h.send(t, "redis-sess", "1")
	assert.True(t, reply.Final)
	assert.Len(t, h.initiator.requests, 1)
}
