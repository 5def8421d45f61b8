package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedFixturesIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	st, err := svc.FixtureStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.HasData)

	report, err := svc.SeedFixtures(ctx)
	require.NoError(t, err)
	assert.Equal(t, FixtureReport{Status: FixtureCreated, Buildings: 5, Activities: 11, Organizations: 10}, report)

	again, err := svc.SeedFixtures(ctx)
	require.NoError(t, err)
	assert.Equal(t, FixtureExists, again.Status)
	assert.Equal(t, 5, again.Buildings)

	st, err = svc.FixtureStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, FixtureStatus{HasData: true, BuildingCount: 5, ActivityCount: 11, OrganizationCount: 10}, st)
}

func TestSeededDirectoryAnswersQueries(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.SeedFixtures(ctx)
	require.NoError(t, err)

	tree, err := svc.ActivityTree(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tree, 5)
	auto := tree[1]
	assert.Equal(t, "Automobiles", auto.Name)
	require.Len(t, auto.Children, 2)
	assert.Equal(t, "Cars", auto.Children[1].Name)
	assert.Len(t, auto.Children[1].Children, 2)

	byAuto, err := svc.OrganizationsByActivity(ctx, auto.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"GruzAvto", "LegkoDrive", "AutoParts", "AutoStyle"}, orgNames(byAuto))

	near, err := svc.OrganizationsInRadius(ctx, Point{Lat: 55.7558, Lng: 37.6173}, 0.1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Uyut Store", "GruzAvto"}, orgNames(near))

	found, err := svc.SearchOrganizations(ctx, "auto")
	require.NoError(t, err)
	assert.Equal(t, []string{"AutoParts", "AutoStyle"}, orgNames(found))
}
