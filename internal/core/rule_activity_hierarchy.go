package core

import (
	"context"
	"fmt"

	"orgdirectory/pkg/domain"
)

// NewActivityHierarchyRule returns the rule keeping the activity forest acyclic
// and at most domain.MaxActivityDepth levels deep.
func NewActivityHierarchyRule() domain.Rule {
	return activityHierarchyRule{}
}

type activityHierarchyRule struct{}

func (activityHierarchyRule) Name() string { return "activity_hierarchy" }

func (activityHierarchyRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if !touches(changes, domain.EntityActivity) {
		return res, nil
	}
	activities := view.ListActivities()
	index := make(map[int64]domain.Activity, len(activities))
	for _, a := range activities {
		index[a.ID] = a
	}
	for _, a := range activities {
		hops := 0
		seen := map[int64]struct{}{a.ID: {}}
		current := a
		for current.ParentID != nil {
			parentID := *current.ParentID
			if _, loop := seen[parentID]; loop {
				res.Violations = append(res.Violations, hierarchyViolation(a.ID, fmt.Sprintf("activity %d is part of a parent cycle", a.ID)))
				break
			}
			parent, ok := index[parentID]
			if !ok {
				res.Violations = append(res.Violations, hierarchyViolation(a.ID, fmt.Sprintf("activity %d references missing parent %d", a.ID, parentID)))
				break
			}
			seen[parentID] = struct{}{}
			hops++
			current = parent
		}
		if hops > domain.MaxActivityDepth-1 {
			res.Violations = append(res.Violations, hierarchyViolation(a.ID, fmt.Sprintf("activity %d sits at level %d, deeper than %d levels allow", a.ID, hops, domain.MaxActivityDepth)))
		}
	}
	return res, nil
}

func hierarchyViolation(id int64, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "activity_hierarchy",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityActivity,
		EntityID: id,
	}
}

// touches reports whether any change targets entity.
func touches(changes []domain.Change, entity domain.EntityType) bool {
	for _, c := range changes {
		if c.Entity == entity {
			return true
		}
	}
	return false
}
