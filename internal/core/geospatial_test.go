package core

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgdirectory/pkg/domain"
)

func TestBuildingsInRangeIsInclusive(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	inside := mustBuilding(t, svc, "inside", 55.5, 37.5)
	edge := mustBuilding(t, svc, "edge", 55.0, 38.0)
	mustBuilding(t, svc, "south", 54.9, 37.5)
	mustBuilding(t, svc, "east", 55.5, 38.01)

	got, err := svc.BuildingsInRange(ctx, Bounds{MinLat: 55, MaxLat: 56, MinLng: 37, MaxLng: 38})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, inside.ID, got[0].ID)
	assert.Equal(t, edge.ID, got[1].ID)
}

func TestBuildingsInRangeRejectsBadBounds(t *testing.T) {
	svc := newTestService(t)
	for name, b := range map[string]Bounds{
		"inverted latitude":  {MinLat: 56, MaxLat: 55, MinLng: 37, MaxLng: 38},
		"inverted longitude": {MinLat: 55, MaxLat: 56, MinLng: 170, MaxLng: -170},
		"out of range":       {MinLat: -91, MaxLat: 0, MinLng: 0, MaxLng: 1},
	} {
		_, err := svc.BuildingsInRange(context.Background(), b)
		assert.True(t, domain.IsValidation(err), name)
	}
}

func TestBuildingsInRadiusOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	center := Point{Lat: 55.7558, Lng: 37.6173}
	far := mustBuilding(t, svc, "far", 55.7700, 37.6173)
	here := mustBuilding(t, svc, "here", 55.7558, 37.6173)
	near := mustBuilding(t, svc, "near", 55.7600, 37.6173)
	mustBuilding(t, svc, "Saint Petersburg", 59.9386, 30.3141)

	got, err := svc.BuildingsInRadius(ctx, center, 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, here.ID, got[0].Building.ID)
	assert.Equal(t, near.ID, got[1].Building.ID)
	assert.Equal(t, far.ID, got[2].Building.ID)
	assert.Zero(t, got[0].DistanceKM)
	assert.InDelta(t, 0.467, got[1].DistanceKM, 0.01)

	zero, err := svc.BuildingsInRadius(ctx, center, 0)
	require.NoError(t, err)
	require.Len(t, zero, 1, "zero radius keeps exact matches")
	assert.Equal(t, here.ID, zero[0].Building.ID)
}

func TestBuildingsInRadiusTiesBreakByID(t *testing.T) {
	svc := newTestService(t)
	a := mustBuilding(t, svc, "a", 10, 10)
	b := mustBuilding(t, svc, "b", 10, 10)

	got, err := svc.BuildingsInRadius(context.Background(), Point{Lat: 10, Lng: 10}, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].Building.ID)
	assert.Equal(t, b.ID, got[1].Building.ID)
}

func TestRadiusValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.BuildingsInRadius(ctx, Point{Lat: 0, Lng: 0}, -1)
	assert.True(t, domain.IsValidation(err))
	_, err = svc.BuildingsInRadius(ctx, Point{Lat: 0, Lng: 0}, math.NaN())
	assert.True(t, domain.IsValidation(err))
	_, err = svc.OrganizationsInRadius(ctx, Point{Lat: 100, Lng: 0}, 1)
	assert.True(t, domain.IsValidation(err))
}

func TestOrganizationsByLocation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	act := mustActivity(t, svc, "Shops", nil)
	center := mustBuilding(t, svc, "center", 55.7558, 37.6173)
	suburb := mustBuilding(t, svc, "suburb", 55.9, 37.9)
	o1 := mustOrganization(t, svc, OrganizationInput{Name: "Center One", BuildingID: center.ID, ActivityIDs: []int64{act.ID}})
	o2 := mustOrganization(t, svc, OrganizationInput{Name: "Suburb Two", BuildingID: suburb.ID, ActivityIDs: []int64{act.ID}})
	o3 := mustOrganization(t, svc, OrganizationInput{Name: "Center Three", BuildingID: center.ID})

	inRange, err := svc.OrganizationsInRange(ctx, Bounds{MinLat: 55.7, MaxLat: 55.8, MinLng: 37.5, MaxLng: 37.7})
	require.NoError(t, err)
	assert.Equal(t, []string{o1.Name, o3.Name}, orgNames(inRange))

	inRadius, err := svc.OrganizationsInRadius(ctx, Point{Lat: 55.7558, Lng: 37.6173}, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{o1.Name, o2.Name, o3.Name}, orgNames(inRadius))

	none, err := svc.OrganizationsInRadius(ctx, Point{Lat: 0, Lng: 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
