package memory

import (
	"sort"
	"strings"

	"orgdirectory/pkg/domain"
	"orgdirectory/pkg/geo"
)

// transactionView exposes a read-only snapshot of the transactional state to
// services and rules. Every returned record is a copy.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) domain.TransactionView {
	return transactionView{state: state}
}

// FindBuilding returns the building with id.
func (v transactionView) FindBuilding(id int64) (domain.Building, bool) {
	b, ok := v.state.buildings[id]
	return b, ok
}

// FindBuildingByAddress returns the building stored under address, compared exactly.
func (v transactionView) FindBuildingByAddress(address string) (domain.Building, bool) {
	for _, b := range v.state.buildings {
		if b.Address == address {
			return b, true
		}
	}
	return domain.Building{}, false
}

// ListBuildings returns every building ordered by id.
func (v transactionView) ListBuildings() []domain.Building {
	return v.filterBuildings(func(domain.Building) bool { return true })
}

// ListBuildingsInBounds returns the buildings inside the inclusive box.
func (v transactionView) ListBuildingsInBounds(bounds geo.Bounds) []domain.Building {
	return v.filterBuildings(func(b domain.Building) bool { return bounds.Contains(b.Point()) })
}

func (v transactionView) filterBuildings(keep func(domain.Building) bool) []domain.Building {
	out := make([]domain.Building, 0, len(v.state.buildings))
	for _, b := range v.state.buildings {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindActivity returns the activity with id.
func (v transactionView) FindActivity(id int64) (domain.Activity, bool) {
	a, ok := v.state.activities[id]
	if !ok {
		return domain.Activity{}, false
	}
	return cloneActivity(a), true
}

// FindActivityByNameAndParent looks up a sibling by exact name.
func (v transactionView) FindActivityByNameAndParent(name string, parentID *int64) (domain.Activity, bool) {
	for _, a := range v.state.activities {
		if a.Name == name && sameParent(a.ParentID, parentID) {
			return cloneActivity(a), true
		}
	}
	return domain.Activity{}, false
}

// ListActivityChildren returns the direct children of parentID, or the roots
// when parentID is nil.
func (v transactionView) ListActivityChildren(parentID *int64) []domain.Activity {
	return v.filterActivities(func(a domain.Activity) bool { return sameParent(a.ParentID, parentID) })
}

// ListActivities returns every activity ordered by id.
func (v transactionView) ListActivities() []domain.Activity {
	return v.filterActivities(func(domain.Activity) bool { return true })
}

func (v transactionView) filterActivities(keep func(domain.Activity) bool) []domain.Activity {
	out := make([]domain.Activity, 0)
	for _, a := range v.state.activities {
		if keep(a) {
			out = append(out, cloneActivity(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindOrganization returns the decorated organization with id.
func (v transactionView) FindOrganization(id int64) (domain.Organization, bool) {
	o, ok := v.state.organizations[id]
	if !ok {
		return domain.Organization{}, false
	}
	return decorateOrganization(v.state, o), true
}

// FindOrganizationByName looks up an organization by exact name.
func (v transactionView) FindOrganizationByName(name string) (domain.Organization, bool) {
	for _, o := range v.state.organizations {
		if o.Name == name {
			return decorateOrganization(v.state, o), true
		}
	}
	return domain.Organization{}, false
}

// ListOrganizations returns every organization ordered by id.
func (v transactionView) ListOrganizations() []domain.Organization {
	return v.filterOrganizations(func(domain.Organization) bool { return true })
}

// ListOrganizationsByBuildings returns organizations located in any of buildingIDs.
func (v transactionView) ListOrganizationsByBuildings(buildingIDs []int64) []domain.Organization {
	set := idSet(buildingIDs)
	return v.filterOrganizations(func(o domain.Organization) bool {
		_, ok := set[o.BuildingID]
		return ok
	})
}

// ListOrganizationsByActivities returns organizations linked to any of
// activityIDs, each organization once.
func (v transactionView) ListOrganizationsByActivities(activityIDs []int64) []domain.Organization {
	set := idSet(activityIDs)
	return v.filterOrganizations(func(o domain.Organization) bool {
		for id := range v.state.links[o.ID] {
			if _, ok := set[id]; ok {
				return true
			}
		}
		return false
	})
}

// SearchOrganizationsByName returns organizations whose name contains substr,
// ignoring case.
func (v transactionView) SearchOrganizationsByName(substr string) []domain.Organization {
	needle := strings.ToLower(substr)
	return v.filterOrganizations(func(o domain.Organization) bool {
		return strings.Contains(strings.ToLower(o.Name), needle)
	})
}

// CountOrganizationsForActivity counts organizations linked to activityID.
func (v transactionView) CountOrganizationsForActivity(activityID int64) int {
	n := 0
	for _, set := range v.state.links {
		if _, ok := set[activityID]; ok {
			n++
		}
	}
	return n
}

// CountOrganizationsForBuilding counts organizations located in buildingID.
func (v transactionView) CountOrganizationsForBuilding(buildingID int64) int {
	n := 0
	for _, o := range v.state.organizations {
		if o.BuildingID == buildingID {
			n++
		}
	}
	return n
}

func (v transactionView) filterOrganizations(keep func(domain.Organization) bool) []domain.Organization {
	out := make([]domain.Organization, 0)
	for _, o := range v.state.organizations {
		if keep(o) {
			out = append(out, decorateOrganization(v.state, o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
