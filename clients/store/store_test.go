package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-batch-service/clients/store"
	"github.com/kava-labs/kava-batch-service/logging"
)

// testStore exercises the behaviour every Store implementation shares
func testStore(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.NextKey(ctx, "Items")
	require.NoError(t, err)
	second, err := s.NextKey(ctx, "Items")
	require.NoError(t, err)
	require.Greater(t, second, first)

	other, err := s.NextKey(ctx, "Orders")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)

	require.NoError(t, s.Put(ctx, "Items", second, []byte(`{"id":2}`)))
	require.NoError(t, s.Put(ctx, "Items", first, []byte(`{"id":1}`)))

	data, err := s.Get(ctx, "Items", first)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(data))

	list, err := s.List(ctx, "Items")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.JSONEq(t, `{"id":1}`, string(list[0]))
	assert.JSONEq(t, `{"id":2}`, string(list[1]))

	require.NoError(t, s.Put(ctx, "Items", first, []byte(`{"id":1,"name":"a"}`)))
	data, err = s.Get(ctx, "Items", first)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"a"}`, string(data))

	require.NoError(t, s.Delete(ctx, "Items", first))
	_, err = s.Get(ctx, "Items", first)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, "Items", first), store.ErrNotFound)

	list, err = s.List(ctx, "Missing")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.Healthcheck(ctx))
}

func TestUnitTest_InMemoryStore(t *testing.T) {
	testStore(t, store.NewInMemoryStore())
}

func TestIntegrationTest_RedisStore(t *testing.T) {
	endpoint := os.Getenv("TEST_REDIS_ENDPOINT_URL")
	if endpoint == "" {
		t.Skip("TEST_REDIS_ENDPOINT_URL not set")
	}

	redisStore, err := store.NewRedisStore(context.Background(), &store.RedisConfig{
		Address:           endpoint,
		KeyPrefix:         "test-" + uuid.NewString(),
		ConnectMaxElapsed: 5 * time.Second,
	}, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { redisStore.Close() })

	testStore(t, redisStore)
}

func TestUnitTest_NewRedisStoreStopsWaitingWhenContextIsDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	// nothing listens on port 1
	_, err := store.NewRedisStore(ctx, &store.RedisConfig{
		Address:           "127.0.0.1:1",
		KeyPrefix:         "test",
		ConnectMaxElapsed: time.Hour,
	}, logging.Nop())

	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}
