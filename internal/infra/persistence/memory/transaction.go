package memory

import (
	"time"

	"orgdirectory/pkg/domain"
)

// transaction represents a mutation set applied to a private copy of the
// store state. Storage constraints (uniqueness, references, delete guards)
// are enforced here regardless of what callers checked beforehand.
type transaction struct {
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) view() transactionView {
	return transactionView{state: &tx.state}
}

// CreateBuilding stores a new building under the next building id.
func (tx *transaction) CreateBuilding(b domain.Building) (domain.Building, error) {
	if err := tx.checkBuildingAddress(b.Address, 0); err != nil {
		return domain.Building{}, err
	}
	tx.state.seq.Building++
	b.ID = tx.state.seq.Building
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.buildings[b.ID] = b
	tx.recordChange(domain.Change{Entity: domain.EntityBuilding, Action: domain.ActionCreate, After: b})
	return b, nil
}

// UpdateBuilding mutates a building using the provided mutator function.
func (tx *transaction) UpdateBuilding(id int64, mutator func(*domain.Building) error) (domain.Building, error) {
	current, ok := tx.state.buildings[id]
	if !ok {
		return domain.Building{}, domain.NotFoundError{Entity: domain.EntityBuilding, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Building{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if err := tx.checkBuildingAddress(current.Address, id); err != nil {
		return domain.Building{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.buildings[id] = current
	tx.recordChange(domain.Change{Entity: domain.EntityBuilding, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteBuilding removes a building that no organization references.
func (tx *transaction) DeleteBuilding(id int64) error {
	current, ok := tx.state.buildings[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityBuilding, ID: id}
	}
	if n := tx.view().CountOrganizationsForBuilding(id); n > 0 {
		return domain.NewValidationError(domain.EntityBuilding, "", "building %d still hosts %d organizations", id, n)
	}
	delete(tx.state.buildings, id)
	tx.recordChange(domain.Change{Entity: domain.EntityBuilding, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) checkBuildingAddress(address string, self int64) error {
	if existing, ok := tx.view().FindBuildingByAddress(address); ok && existing.ID != self {
		return domain.ConflictError{Entity: domain.EntityBuilding, Field: "address", Value: address}
	}
	return nil
}

// CreateActivity stores a new activity under the next activity id.
func (tx *transaction) CreateActivity(a domain.Activity) (domain.Activity, error) {
	if err := tx.checkActivity(a, 0); err != nil {
		return domain.Activity{}, err
	}
	tx.state.seq.Activity++
	a = cloneActivity(a)
	a.ID = tx.state.seq.Activity
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	tx.state.activities[a.ID] = a
	tx.recordChange(domain.Change{Entity: domain.EntityActivity, Action: domain.ActionCreate, After: cloneActivity(a)})
	return cloneActivity(a), nil
}

// UpdateActivity mutates an activity using the provided mutator function.
func (tx *transaction) UpdateActivity(id int64, mutator func(*domain.Activity) error) (domain.Activity, error) {
	stored, ok := tx.state.activities[id]
	if !ok {
		return domain.Activity{}, domain.NotFoundError{Entity: domain.EntityActivity, ID: id}
	}
	before := cloneActivity(stored)
	current := cloneActivity(stored)
	if err := mutator(&current); err != nil {
		return domain.Activity{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	if current.ParentID != nil && *current.ParentID == id {
		return domain.Activity{}, domain.NewValidationError(domain.EntityActivity, "parent_id", "activity %d cannot be its own parent", id)
	}
	if err := tx.checkActivity(current, id); err != nil {
		return domain.Activity{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.activities[id] = cloneActivity(current)
	tx.recordChange(domain.Change{Entity: domain.EntityActivity, Action: domain.ActionUpdate, Before: before, After: cloneActivity(current)})
	return cloneActivity(current), nil
}

// DeleteActivity removes a leaf activity no organization is linked to.
func (tx *transaction) DeleteActivity(id int64) error {
	current, ok := tx.state.activities[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityActivity, ID: id}
	}
	if children := tx.view().ListActivityChildren(&id); len(children) > 0 {
		return domain.NewValidationError(domain.EntityActivity, "", "activity %d has %d child activities", id, len(children))
	}
	if n := tx.view().CountOrganizationsForActivity(id); n > 0 {
		return domain.NewValidationError(domain.EntityActivity, "", "activity %d is used by %d organizations", id, n)
	}
	delete(tx.state.activities, id)
	tx.recordChange(domain.Change{Entity: domain.EntityActivity, Action: domain.ActionDelete, Before: cloneActivity(current)})
	return nil
}

func (tx *transaction) checkActivity(a domain.Activity, self int64) error {
	if a.ParentID != nil {
		if _, ok := tx.state.activities[*a.ParentID]; !ok {
			return domain.NewValidationError(domain.EntityActivity, "parent_id", "parent activity %d does not exist", *a.ParentID)
		}
	}
	if existing, ok := tx.view().FindActivityByNameAndParent(a.Name, a.ParentID); ok && existing.ID != self {
		return domain.ConflictError{Entity: domain.EntityActivity, Field: "name", Value: a.Name}
	}
	return nil
}

// CreateOrganization stores the organization row under the next organization id.
func (tx *transaction) CreateOrganization(o domain.Organization) (domain.Organization, error) {
	o = stripOrganization(o)
	if err := tx.checkOrganization(o, 0); err != nil {
		return domain.Organization{}, err
	}
	tx.state.seq.Organization++
	o.ID = tx.state.seq.Organization
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.organizations[o.ID] = o
	created := decorateOrganization(&tx.state, o)
	tx.recordChange(domain.Change{Entity: domain.EntityOrganization, Action: domain.ActionCreate, After: created})
	return created, nil
}

// UpdateOrganization mutates the organization row using the provided mutator.
// Changes the mutator makes to Phones or ActivityIDs are ignored.
func (tx *transaction) UpdateOrganization(id int64, mutator func(*domain.Organization) error) (domain.Organization, error) {
	stored, ok := tx.state.organizations[id]
	if !ok {
		return domain.Organization{}, domain.NotFoundError{Entity: domain.EntityOrganization, ID: id}
	}
	before := decorateOrganization(&tx.state, stored)
	current := before
	if err := mutator(&current); err != nil {
		return domain.Organization{}, err
	}
	current = stripOrganization(current)
	current.ID = id
	current.CreatedAt = stored.CreatedAt
	if err := tx.checkOrganization(current, id); err != nil {
		return domain.Organization{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.organizations[id] = current
	after := decorateOrganization(&tx.state, current)
	tx.recordChange(domain.Change{Entity: domain.EntityOrganization, Action: domain.ActionUpdate, Before: before, After: after})
	return after, nil
}

// DeleteOrganization removes the organization with its phones and activity links.
func (tx *transaction) DeleteOrganization(id int64) error {
	stored, ok := tx.state.organizations[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityOrganization, ID: id}
	}
	before := decorateOrganization(&tx.state, stored)
	for pid, p := range tx.state.phones {
		if p.OrganizationID == id {
			delete(tx.state.phones, pid)
		}
	}
	delete(tx.state.links, id)
	delete(tx.state.organizations, id)
	tx.recordChange(domain.Change{Entity: domain.EntityOrganization, Action: domain.ActionDelete, Before: before})
	return nil
}

// ReplaceOrganizationPhones drops the organization's phones and stores
// numbers as new phone rows, in order.
func (tx *transaction) ReplaceOrganizationPhones(orgID int64, numbers []string) ([]domain.Phone, error) {
	stored, ok := tx.state.organizations[orgID]
	if !ok {
		return nil, domain.NotFoundError{Entity: domain.EntityOrganization, ID: orgID}
	}
	before := decorateOrganization(&tx.state, stored)
	for pid, p := range tx.state.phones {
		if p.OrganizationID == orgID {
			delete(tx.state.phones, pid)
		}
	}
	phones := make([]domain.Phone, 0, len(numbers))
	for _, n := range numbers {
		tx.state.seq.Phone++
		p := domain.Phone{ID: tx.state.seq.Phone, OrganizationID: orgID, Number: n}
		tx.state.phones[p.ID] = p
		phones = append(phones, p)
	}
	tx.touchOrganization(orgID, before)
	return phones, nil
}

// ReplaceOrganizationActivities sets the organization's activity links to
// activityIDs. Duplicates collapse; every id must reference an activity.
func (tx *transaction) ReplaceOrganizationActivities(orgID int64, activityIDs []int64) error {
	stored, ok := tx.state.organizations[orgID]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityOrganization, ID: orgID}
	}
	ids := dedupeIDs(activityIDs)
	for _, id := range ids {
		if _, ok := tx.state.activities[id]; !ok {
			return domain.NewValidationError(domain.EntityOrganization, "activity_ids", "activity %d does not exist", id)
		}
	}
	before := decorateOrganization(&tx.state, stored)
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	if len(set) == 0 {
		delete(tx.state.links, orgID)
	} else {
		tx.state.links[orgID] = set
	}
	tx.touchOrganization(orgID, before)
	return nil
}

func (tx *transaction) touchOrganization(id int64, before domain.Organization) {
	o := tx.state.organizations[id]
	o.UpdatedAt = tx.now
	tx.state.organizations[id] = o
	tx.recordChange(domain.Change{
		Entity: domain.EntityOrganization,
		Action: domain.ActionUpdate,
		Before: before,
		After:  decorateOrganization(&tx.state, o),
	})
}

func (tx *transaction) checkOrganization(o domain.Organization, self int64) error {
	if existing, ok := tx.view().FindOrganizationByName(o.Name); ok && existing.ID != self {
		return domain.ConflictError{Entity: domain.EntityOrganization, Field: "name", Value: o.Name}
	}
	if _, ok := tx.state.buildings[o.BuildingID]; !ok {
		return domain.NewValidationError(domain.EntityOrganization, "building_id", "building %d does not exist", o.BuildingID)
	}
	return nil
}
