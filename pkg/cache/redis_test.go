package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cachedBooking struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

func setupCache() (Service, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewRedisCache(db, 5*time.Minute, zap.NewNop()), mock
}

func TestRedisCache_SetUsesDefaultTTL(t *testing.T) {
	c, mock := setupCache()
	defer mock.ClearExpect()

	mock.ExpectSet("booking:1", `{"reference":"PRK-1","status":"pending"}`, 5*time.Minute).SetVal("OK")

	err := c.Set(context.Background(), "booking:1", cachedBooking{Reference: "PRK-1", Status: "pending"}, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetHitAndMiss(t *testing.T) {
	c, mock := setupCache()
	defer mock.ClearExpect()

	mock.ExpectGet("booking:1").SetVal(`{"reference":"PRK-1","status":"confirmed"}`)
	mock.ExpectGet("booking:2").RedisNil()

	var got cachedBooking
	hit, err := c.Get(context.Background(), "booking:1", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "confirmed", got.Status)

	hit, err = c.Get(context.Background(), "booking:2", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetDropsUndecodableEntry(t *testing.T) {
	c, mock := setupCache()
	defer mock.ClearExpect()

	mock.ExpectGet("booking:1").SetVal(`not json`)
	mock.ExpectDel("booking:1").SetVal(1)

	var got cachedBooking
	hit, err := c.Get(context.Background(), "booking:1", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_GetError(t *testing.T) {
	c, mock := setupCache()
	defer mock.ClearExpect()

	mock.ExpectGet("booking:1").SetErr(errors.New("connection refused"))

	var got cachedBooking
	_, err := c.Get(context.Background(), "booking:1", &got)
	assert.Error(t, err)
}

func TestRedisCache_Remove(t *testing.T) {
	c, mock := setupCache()
	defer mock.ClearExpect()

	mock.ExpectDel("booking:1", "spot:2").SetVal(2)

	require.NoError(t, c.Remove(context.Background(), "booking:1", "spot:2"))
	require.NoError(t, c.Remove(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_RemoveByPatternWalksCursor(t *testing.T) {
	c, mock := setupCache()
	defer mock.ClearExpect()

	mock.ExpectScan(0, "search:*", scanBatch).SetVal([]string{"search:a", "search:b"}, 42)
	mock.ExpectDel("search:a", "search:b").SetVal(2)
	mock.ExpectScan(42, "search:*", scanBatch).SetVal([]string{}, 7)
	mock.ExpectScan(7, "search:*", scanBatch).SetVal([]string{"search:c"}, 0)
	mock.ExpectDel("search:c").SetVal(1)

	n, err := c.RemoveByPattern(context.Background(), "search:*")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCache_RemoveByPatternScanError(t *testing.T) {
	c, mock := setupCache()
	defer mock.ClearExpect()

	mock.ExpectScan(0, "map:*", scanBatch).SetErr(errors.New("timeout"))

	_, err := c.RemoveByPattern(context.Background(), "map:*")
	assert.Error(t, err)
}
