package core

import (
	"context"
	"strings"

	"orgdirectory/pkg/domain"
)

// DefaultPageLimit caps list results when the caller does not.
const DefaultPageLimit = 100

// Page selects a window of an ID-ordered listing.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) apply(n int) (int, int) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	start := p.Offset
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end
}

func paginate[T any](items []T, p Page) []T {
	start, end := p.apply(len(items))
	return items[start:end]
}

// CreateBuilding registers a building with a unique address.
func (s *Service) CreateBuilding(ctx context.Context, in BuildingInput) (Building, Result, error) {
	var created Building
	var res Result
	err := s.run(ctx, "create_building", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			address, err := validateBuildingInput(in)
			if err != nil {
				return err
			}
			if _, dup := tx.Snapshot().FindBuildingByAddress(address); dup {
				return ConflictError{Entity: EntityBuilding, Field: "address", Value: address}
			}
			created, err = tx.CreateBuilding(Building{Address: address, Latitude: in.Latitude, Longitude: in.Longitude})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// UpdateBuilding replaces the address and coordinates of a building.
func (s *Service) UpdateBuilding(ctx context.Context, id int64, in BuildingInput) (Building, Result, error) {
	var updated Building
	var res Result
	err := s.run(ctx, "update_building", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if _, ok := view.FindBuilding(id); !ok {
				return NotFoundError{Entity: EntityBuilding, ID: id}
			}
			address, err := validateBuildingInput(in)
			if err != nil {
				return err
			}
			if other, dup := view.FindBuildingByAddress(address); dup && other.ID != id {
				return ConflictError{Entity: EntityBuilding, Field: "address", Value: address}
			}
			updated, err = tx.UpdateBuilding(id, func(b *Building) error {
				b.Address = address
				b.Latitude = in.Latitude
				b.Longitude = in.Longitude
				return nil
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// DeleteBuilding removes a building that hosts no organizations. It reports
// false without error when the building does not exist.
func (s *Service) DeleteBuilding(ctx context.Context, id int64) (bool, Result, error) {
	var deleted bool
	var res Result
	err := s.run(ctx, "delete_building", func(ctx context.Context) (int64, error) {
		var err error
		res, err = s.write(ctx, func(tx Transaction) error {
			view := tx.Snapshot()
			if _, ok := view.FindBuilding(id); !ok {
				return nil
			}
			if n := view.CountOrganizationsForBuilding(id); n > 0 {
				return domain.NewValidationError(EntityBuilding, "", "building %d hosts %d organizations", id, n)
			}
			if err := tx.DeleteBuilding(id); err != nil {
				return err
			}
			deleted = true
			return nil
		})
		return id, err
	})
	return deleted, res, err
}

// GetBuilding returns one building.
func (s *Service) GetBuilding(ctx context.Context, id int64) (Building, error) {
	var out Building
	err := s.run(ctx, "get_building", func(ctx context.Context) (int64, error) {
		return id, s.view(ctx, func(v TransactionView) error {
			b, ok := v.FindBuilding(id)
			if !ok {
				return NotFoundError{Entity: EntityBuilding, ID: id}
			}
			out = b
			return nil
		})
	})
	return out, err
}

// ListBuildings returns a page of buildings ordered by ID.
func (s *Service) ListBuildings(ctx context.Context, page Page) ([]Building, error) {
	var out []Building
	err := s.run(ctx, "list_buildings", func(ctx context.Context) (int64, error) {
		return 0, s.view(ctx, func(v TransactionView) error {
			out = paginate(v.ListBuildings(), page)
			return nil
		})
	})
	return out, err
}

func validateBuildingInput(in BuildingInput) (string, error) {
	address := strings.TrimSpace(in.Address)
	if err := domain.ValidateName(EntityBuilding, "address", address); err != nil {
		return "", err
	}
	if err := domain.ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return "", err
	}
	return address, nil
}
