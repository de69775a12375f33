//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"curator/internal/pid"
	"curator/internal/pid/cache"
	"curator/internal/pid/mocks"
	"curator/internal/record/models"
	"curator/pkg/testutil/containers"
)

func reservedDOI() models.PID {
	return models.PID{
		Scheme:     "doi",
		Identifier: "10.5281/curator.42",
		Provider:   "datacite",
		Status:     models.PIDStatusReserved,
	}
}

func TestReadCacheServesSecondReadFromRedis(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	want := reservedDOI()
	provider.EXPECT().
		Read(gomock.Any(), "doi", want.Identifier).
		Return(want, nil).
		Times(1)

	c := cache.New(provider, "doi", rc.Client, time.Minute)

	got, err := c.Read(ctx, "doi", want.Identifier)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Second read must not reach the provider (Times(1) above enforces it).
	got, err = c.Read(ctx, "doi", want.Identifier)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	exists, err := rc.Client.Exists(ctx, "pid:doi:"+want.Identifier).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, exists)
}

func TestReadCacheOverwritesCorruptEntry(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	want := reservedDOI()
	require.NoError(t, rc.Client.Set(ctx, "pid:doi:"+want.Identifier, "{not json", time.Minute).Err())

	provider.EXPECT().
		Read(gomock.Any(), "doi", want.Identifier).
		Return(want, nil).
		Times(1)

	c := cache.New(provider, "doi", rc.Client, time.Minute)

	got, err := c.Read(ctx, "doi", want.Identifier)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The corrupt entry was replaced: the next read comes from the cache.
	got, err = c.Read(ctx, "doi", want.Identifier)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestReadCacheInvalidatesOnMutation(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	stale := reservedDOI()
	fresh := stale
	fresh.Status = models.PIDStatusRegistered

	gomock.InOrder(
		provider.EXPECT().Read(gomock.Any(), "doi", stale.Identifier).Return(stale, nil),
		provider.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil),
		provider.EXPECT().Read(gomock.Any(), "doi", stale.Identifier).Return(fresh, nil),
	)

	c := cache.New(provider, "doi", rc.Client, time.Minute)

	got, err := c.Read(ctx, "doi", stale.Identifier)
	require.NoError(t, err)
	assert.Equal(t, models.PIDStatusReserved, got.Status)

	require.NoError(t, c.Register(ctx, pid.RegistrationRequest{
		PID:    stale,
		Scheme: "doi",
		URL:    "https://records.example.org/" + stale.Identifier,
	}))

	got, err = c.Read(ctx, "doi", stale.Identifier)
	require.NoError(t, err)
	assert.Equal(t, models.PIDStatusRegistered, got.Status)
}

func TestReadCacheEntriesExpire(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	ctrl := gomock.NewController(t)
	provider := mocks.NewMockProvider(ctrl)

	want := reservedDOI()
	provider.EXPECT().
		Read(gomock.Any(), "doi", want.Identifier).
		Return(want, nil).
		Times(2)

	c := cache.New(provider, "doi", rc.Client, 100*time.Millisecond)

	_, err := c.Read(ctx, "doi", want.Identifier)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	_, err = c.Read(ctx, "doi", want.Identifier)
	require.NoError(t, err)
}
