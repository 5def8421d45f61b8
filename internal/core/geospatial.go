package core

import (
	"context"
	"math"
	"sort"

	"orgdirectory/pkg/domain"
	"orgdirectory/pkg/geo"
)

// BuildingDistance pairs a building with its distance from a search center.
type BuildingDistance struct {
	Building   Building `json:"building"`
	DistanceKM float64  `json:"distance_km"`
}

// BuildingsInRange returns buildings inside the box, edges included, ordered
// by ID. Boxes crossing the antimeridian are not wrapped.
func (s *Service) BuildingsInRange(ctx context.Context, bounds Bounds) ([]Building, error) {
	var out []Building
	err := s.run(ctx, "buildings_in_range", func(ctx context.Context) (int64, error) {
		if err := validateBounds(bounds); err != nil {
			return 0, err
		}
		return 0, s.view(ctx, func(v TransactionView) error {
			out = v.ListBuildingsInBounds(bounds)
			return nil
		})
	})
	return out, err
}

// BuildingsInRadius scans every building and keeps those whose great-circle
// distance to center is at most radiusKM, nearest first (ties by ID).
func (s *Service) BuildingsInRadius(ctx context.Context, center Point, radiusKM float64) ([]BuildingDistance, error) {
	var out []BuildingDistance
	err := s.run(ctx, "buildings_in_radius", func(ctx context.Context) (int64, error) {
		if err := validateRadius(center, radiusKM); err != nil {
			return 0, err
		}
		return 0, s.view(ctx, func(v TransactionView) error {
			out = buildingsWithin(v, center, radiusKM)
			return nil
		})
	})
	return out, err
}

// OrganizationsInRange returns organizations located in buildings inside the
// box, ordered by ID.
func (s *Service) OrganizationsInRange(ctx context.Context, bounds Bounds) ([]Organization, error) {
	var out []Organization
	err := s.run(ctx, "organizations_in_range", func(ctx context.Context) (int64, error) {
		if err := validateBounds(bounds); err != nil {
			return 0, err
		}
		return 0, s.view(ctx, func(v TransactionView) error {
			out = v.ListOrganizationsByBuildings(buildingIDs(v.ListBuildingsInBounds(bounds)))
			return nil
		})
	})
	return out, err
}

// OrganizationsInRadius returns organizations located in buildings within
// radiusKM of center, ordered by ID.
func (s *Service) OrganizationsInRadius(ctx context.Context, center Point, radiusKM float64) ([]Organization, error) {
	var out []Organization
	err := s.run(ctx, "organizations_in_radius", func(ctx context.Context) (int64, error) {
		if err := validateRadius(center, radiusKM); err != nil {
			return 0, err
		}
		return 0, s.view(ctx, func(v TransactionView) error {
			hits := buildingsWithin(v, center, radiusKM)
			ids := make([]int64, 0, len(hits))
			for _, h := range hits {
				ids = append(ids, h.Building.ID)
			}
			out = v.ListOrganizationsByBuildings(ids)
			return nil
		})
	})
	return out, err
}

func buildingsWithin(v TransactionView, center Point, radiusKM float64) []BuildingDistance {
	var out []BuildingDistance
	for _, b := range v.ListBuildings() {
		d := geo.HaversineKM(center, b.Point())
		if d <= radiusKM {
			out = append(out, BuildingDistance{Building: b, DistanceKM: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DistanceKM != out[j].DistanceKM {
			return out[i].DistanceKM < out[j].DistanceKM
		}
		return out[i].Building.ID < out[j].Building.ID
	})
	return out
}

func buildingIDs(buildings []Building) []int64 {
	ids := make([]int64, 0, len(buildings))
	for _, b := range buildings {
		ids = append(ids, b.ID)
	}
	return ids
}

func validateBounds(b Bounds) error {
	if err := b.Validate(); err != nil {
		return domain.NewValidationError(EntityBuilding, "bounds", "%s", err.Error())
	}
	return nil
}

func validateRadius(center Point, radiusKM float64) error {
	if err := domain.ValidateCoordinates(center.Lat, center.Lng); err != nil {
		return err
	}
	if math.IsNaN(radiusKM) || radiusKM < 0 {
		return domain.NewValidationError(EntityBuilding, "radius_km", "must be a non-negative number")
	}
	return nil
}
