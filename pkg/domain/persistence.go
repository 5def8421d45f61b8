package domain

import (
	"context"

	"orgdirectory/pkg/geo"
)

// Transaction exposes the write operations that a persistence implementation
// must support within an atomic scope. Every write made through a Transaction
// becomes visible together when the enclosing RunInTransaction commits, or not
// at all.
type Transaction interface {
	Snapshot() TransactionView

	CreateBuilding(Building) (Building, error)
	UpdateBuilding(id int64, mutator func(*Building) error) (Building, error)
	DeleteBuilding(id int64) error

	CreateActivity(Activity) (Activity, error)
	UpdateActivity(id int64, mutator func(*Activity) error) (Activity, error)
	DeleteActivity(id int64) error

	// CreateOrganization stores the organization row only. Phones and
	// activity links are written with the Replace methods.
	CreateOrganization(Organization) (Organization, error)
	UpdateOrganization(id int64, mutator func(*Organization) error) (Organization, error)
	// DeleteOrganization removes the row together with its phones and
	// activity links.
	DeleteOrganization(id int64) error
	ReplaceOrganizationPhones(orgID int64, numbers []string) ([]Phone, error)
	ReplaceOrganizationActivities(orgID int64, activityIDs []int64) error
}

// TransactionView provides read-only access to a consistent snapshot. List
// methods return records ordered by ID.
type TransactionView interface {
	FindBuilding(id int64) (Building, bool)
	FindBuildingByAddress(address string) (Building, bool)
	ListBuildings() []Building
	ListBuildingsInBounds(bounds geo.Bounds) []Building

	FindActivity(id int64) (Activity, bool)
	FindActivityByNameAndParent(name string, parentID *int64) (Activity, bool)
	// ListActivityChildren returns the direct children of parentID; a nil
	// parent lists the roots.
	ListActivityChildren(parentID *int64) []Activity
	ListActivities() []Activity

	FindOrganization(id int64) (Organization, bool)
	FindOrganizationByName(name string) (Organization, bool)
	ListOrganizations() []Organization
	ListOrganizationsByBuildings(buildingIDs []int64) []Organization
	ListOrganizationsByActivities(activityIDs []int64) []Organization
	// SearchOrganizationsByName matches substr case-insensitively.
	SearchOrganizationsByName(substr string) []Organization
	CountOrganizationsForActivity(activityID int64) int
	CountOrganizationsForBuilding(buildingID int64) int
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
