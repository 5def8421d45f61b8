package core

import (
	"context"
	"strings"
	"unicode/utf8"

	"orgdirectory/pkg/domain"
)

// CreateOrganization registers an organization together with its phones and
// activity links in one unit of work. The first failing check wins, in this
// order: name present, name unused, building exists, every activity exists
// (first missing id in input order), every phone well formed (first bad
// number in input order).
func (s *Service) CreateOrganization(ctx context.Context, in OrganizationInput) (Organization, Result, error) {
	var created Organization
	var res Result
	err := s.run(ctx, "create_organization", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			name := strings.TrimSpace(in.Name)
			if err := domain.ValidateName(EntityOrganization, "name", name); err != nil {
				return err
			}
			if _, dup := view.FindOrganizationByName(name); dup {
				return ConflictError{Entity: EntityOrganization, Field: "name", Value: name}
			}
			if err := checkBuilding(view, in.BuildingID); err != nil {
				return err
			}
			if err := checkActivities(view, in.ActivityIDs); err != nil {
				return err
			}
			if err := checkPhones(in.PhoneNumbers); err != nil {
				return err
			}
			org, err := tx.CreateOrganization(Organization{Name: name, BuildingID: in.BuildingID})
			if err != nil {
				return err
			}
			if _, err := tx.ReplaceOrganizationPhones(org.ID, in.PhoneNumbers); err != nil {
				return err
			}
			if err := tx.ReplaceOrganizationActivities(org.ID, in.ActivityIDs); err != nil {
				return err
			}
			created, _ = tx.Snapshot().FindOrganization(org.ID)
			return nil
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateOrganization applies a partial update. Only supplied fields are
// checked and written; supplied phone or activity lists replace the stored
// sets wholesale, an empty list clearing them.
func (s *Service) UpdateOrganization(ctx context.Context, id int64, patch OrganizationPatch) (Organization, Result, error) {
	var updated Organization
	var res Result
	err := s.run(ctx, "update_organization", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			current, ok := view.FindOrganization(id)
			if !ok {
				return NotFoundError{Entity: EntityOrganization, ID: id}
			}
			name := current.Name
			if patch.Name != nil {
				name = strings.TrimSpace(*patch.Name)
				if err := domain.ValidateName(EntityOrganization, "name", name); err != nil {
					return err
				}
				if other, dup := view.FindOrganizationByName(name); dup && other.ID != id {
					return ConflictError{Entity: EntityOrganization, Field: "name", Value: name}
				}
			}
			if patch.BuildingID != nil {
				if err := checkBuilding(view, *patch.BuildingID); err != nil {
					return err
				}
			}
			if patch.ActivityIDs != nil {
				if err := checkActivities(view, *patch.ActivityIDs); err != nil {
					return err
				}
			}
			if patch.PhoneNumbers != nil {
				if err := checkPhones(*patch.PhoneNumbers); err != nil {
					return err
				}
			}
			if patch.Name != nil || patch.BuildingID != nil {
				if _, err := tx.UpdateOrganization(id, func(o *Organization) error {
					o.Name = name
					if patch.BuildingID != nil {
						o.BuildingID = *patch.BuildingID
					}
					return nil
				}); err != nil {
					return err
				}
			}
			if patch.PhoneNumbers != nil {
				if _, err := tx.ReplaceOrganizationPhones(id, *patch.PhoneNumbers); err != nil {
					return err
				}
			}
			if patch.ActivityIDs != nil {
				if err := tx.ReplaceOrganizationActivities(id, *patch.ActivityIDs); err != nil {
					return err
				}
			}
			updated, _ = tx.Snapshot().FindOrganization(id)
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteOrganization removes an organization, its phones and its activity
// links. It reports false without error when the organization does not exist.
func (s *Service) DeleteOrganization(ctx context.Context, id int64) (bool, Result, error) {
	var deleted bool
	var res Result
	err := s.run(ctx, "delete_organization", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			if _, ok := tx.Snapshot().FindOrganization(id); !ok {
				return nil
			}
			if err := tx.DeleteOrganization(id); err != nil {
				return err
			}
			deleted = true
			return nil
		})
		return id, err
	})
	return deleted, res, err
}

// GetOrganization returns one organization with phones and activity ids.
func (s *Service) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	var out Organization
	err := s.run(ctx, "get_organization", func(ctx context.Context) (int64, error) {
		return id, s.view(ctx, func(v TransactionView) error {
			o, ok := v.FindOrganization(id)
			if !ok {
				return NotFoundError{Entity: EntityOrganization, ID: id}
			}
			out = o
			return nil
		})
	})
	return out, err
}

// ListOrganizations returns a page of organizations ordered by ID.
func (s *Service) ListOrganizations(ctx context.Context, page Page) ([]Organization, error) {
	var out []Organization
	err := s.run(ctx, "list_organizations", func(ctx context.Context) (int64, error) {
		return 0, s.view(ctx, func(v TransactionView) error {
			out = paginate(v.ListOrganizations(), page)
			return nil
		})
	})
	return out, err
}

// OrganizationsByBuilding lists the organizations hosted by a building.
func (s *Service) OrganizationsByBuilding(ctx context.Context, buildingID int64) ([]Organization, error) {
	var out []Organization
	err := s.run(ctx, "organizations_by_building", func(ctx context.Context) (int64, error) {
		return buildingID, s.view(ctx, func(v TransactionView) error {
			if _, ok := v.FindBuilding(buildingID); !ok {
				return NotFoundError{Entity: EntityBuilding, ID: buildingID}
			}
			out = v.ListOrganizationsByBuildings([]int64{buildingID})
			return nil
		})
	})
	return out, err
}

// OrganizationsByActivity lists organizations linked to the activity or to
// any of its descendants.
func (s *Service) OrganizationsByActivity(ctx context.Context, activityID int64) ([]Organization, error) {
	var out []Organization
	err := s.run(ctx, "organizations_by_activity", func(ctx context.Context) (int64, error) {
		return activityID, s.view(ctx, func(v TransactionView) error {
			if _, ok := v.FindActivity(activityID); !ok {
				return NotFoundError{Entity: EntityActivity, ID: activityID}
			}
			out = v.ListOrganizationsByActivities(descendantIDs(v, activityID))
			return nil
		})
	})
	return out, err
}

// SearchOrganizations matches organization names case-insensitively by
// substring. Queries shorter than domain.MinSearchQueryLength are rejected.
func (s *Service) SearchOrganizations(ctx context.Context, query string) ([]Organization, error) {
	var out []Organization
	err := s.run(ctx, "search_organizations", func(ctx context.Context) (int64, error) {
		q := strings.TrimSpace(query)
		if utf8.RuneCountInString(q) < domain.MinSearchQueryLength {
			return 0, domain.NewValidationError(EntityOrganization, "name", "search query must contain at least %d characters", domain.MinSearchQueryLength)
		}
		return 0, s.view(ctx, func(v TransactionView) error {
			out = v.SearchOrganizationsByName(q)
			return nil
		})
	})
	return out, err
}

func checkBuilding(v TransactionView, id int64) error {
	if _, ok := v.FindBuilding(id); !ok {
		return domain.NewValidationError(EntityOrganization, "building_id", "building %d does not exist", id)
	}
	return nil
}

func checkActivities(v TransactionView, ids []int64) error {
	for _, id := range ids {
		if _, ok := v.FindActivity(id); !ok {
			return domain.NewValidationError(EntityOrganization, "activity_ids", "activity %d does not exist", id)
		}
	}
	return nil
}

func checkPhones(numbers []string) error {
	for _, n := range numbers {
		if err := domain.ValidatePhoneNumber(n); err != nil {
			return err
		}
	}
	return nil
}
