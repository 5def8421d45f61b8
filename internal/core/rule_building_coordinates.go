package core

import (
	"context"

	"orgdirectory/pkg/domain"
)

// NewBuildingCoordinatesRule rejects commits that leave a created or updated
// building outside the valid latitude/longitude ranges.
func NewBuildingCoordinatesRule() domain.Rule {
	return buildingCoordinatesRule{}
}

type buildingCoordinatesRule struct{}

func (buildingCoordinatesRule) Name() string { return "building_coordinates" }

func (buildingCoordinatesRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityBuilding || change.Action == domain.ActionDelete {
			continue
		}
		b, ok := change.After.(domain.Building)
		if !ok {
			continue
		}
		if err := domain.ValidateCoordinates(b.Latitude, b.Longitude); err != nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "building_coordinates",
				Severity: domain.SeverityBlock,
				Message:  err.Error(),
				Entity:   domain.EntityBuilding,
				EntityID: b.ID,
			})
		}
	}
	return res, nil
}
