package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDriveTimeSamePostalShortCircuits(t *testing.T) {
	c := NewClient(NewMemCache(), "")
	r, err := c.GetDriveTime(context.Background(), "22765", "22765")
	require.NoError(t, err)
	assert.Equal(t, StatusSamePLZ, r.Status)
	require.NotNil(t, r.DriveTimeCarMin)
	assert.Equal(t, samePLZCarMin, *r.DriveTimeCarMin)
	require.NotNil(t, r.DriveTimeTransitMin)
	assert.Equal(t, samePLZTransitMin, *r.DriveTimeTransitMin)
	require.NotNil(t, r.DistanceKM)
	assert.Equal(t, samePLZDistanceKM, *r.DistanceKM)
}

func TestGetDriveTimeNoAPIKey(t *testing.T) {
	c := NewClient(NewMemCache(), "")
	r, err := c.GetDriveTime(context.Background(), "22765", "20095")
	require.NoError(t, err)
	assert.Equal(t, StatusNoAPIKey, r.Status)
}

func TestGetDriveTimeNoAPIKeyDoesNotChargeCache(t *testing.T) {
	cache := NewMemCache()
	c := NewClient(cache, "")
	ctx := context.Background()

	_, err := c.GetDriveTime(ctx, "22765", "20095")
	require.NoError(t, err)

	_, ok, err := cache.Get(ctx, "20095", "22765")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBatchDriveTimesSameOriginDestination(t *testing.T) {
	c := NewClient(NewMemCache(), "")
	out, err := c.BatchDriveTimes(context.Background(), "22765", []string{"22765", "20095"})
	require.NoError(t, err)
	assert.Equal(t, StatusSamePLZ, out["22765"].Status)
	assert.Equal(t, StatusNoAPIKey, out["20095"].Status)
}

func TestBatchDriveTimesNoAPIKeyDoesNotChargeCache(t *testing.T) {
	cache := NewMemCache()
	c := NewClient(cache, "")
	ctx := context.Background()

	_, err := c.BatchDriveTimes(ctx, "22765", []string{"20095"})
	require.NoError(t, err)

	_, ok, err := cache.Get(ctx, "20095", "22765")
	require.NoError(t, err)
	assert.False(t, ok)
}
