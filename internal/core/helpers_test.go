package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"orgdirectory/pkg/domain"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewInMemoryService(nil, opts...)
}

func mustBuilding(t *testing.T, svc *Service, address string, lat, lng float64) Building {
	t.Helper()
	b, _, err := svc.CreateBuilding(context.Background(), BuildingInput{Address: address, Latitude: lat, Longitude: lng})
	require.NoError(t, err)
	return b
}

func mustActivity(t *testing.T, svc *Service, name string, parent *int64) Activity {
	t.Helper()
	a, _, err := svc.CreateActivity(context.Background(), ActivityInput{Name: name, ParentID: parent})
	require.NoError(t, err)
	return a
}

func mustOrganization(t *testing.T, svc *Service, in OrganizationInput) Organization {
	t.Helper()
	o, _, err := svc.CreateOrganization(context.Background(), in)
	require.NoError(t, err)
	return o
}

// chain creates root -> child -> grandchild and returns their ids.
func chain(t *testing.T, svc *Service, prefix string) (root, child, grandchild Activity) {
	t.Helper()
	root = mustActivity(t, svc, prefix+" root", nil)
	child = mustActivity(t, svc, prefix+" child", domain.Int64Ptr(root.ID))
	grandchild = mustActivity(t, svc, prefix+" grandchild", domain.Int64Ptr(child.ID))
	return root, child, grandchild
}

func strPtr(s string) *string { return &s }

func orgNames(orgs []Organization) []string {
	out := make([]string, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, o.Name)
	}
	return out
}
