package core

import (
	"context"

	"orgdirectory/pkg/domain"
)

// NewOrganizationPhonesRule checks the committed phone set of every touched
// organization.
func NewOrganizationPhonesRule() domain.Rule {
	return organizationPhonesRule{}
}

type organizationPhonesRule struct{}

func (organizationPhonesRule) Name() string { return "organization_phones" }

func (organizationPhonesRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	checked := make(map[int64]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityOrganization || change.Action == domain.ActionDelete {
			continue
		}
		after, ok := change.After.(domain.Organization)
		if !ok {
			continue
		}
		if _, done := checked[after.ID]; done {
			continue
		}
		checked[after.ID] = struct{}{}
		org, ok := view.FindOrganization(after.ID)
		if !ok {
			continue
		}
		for _, phone := range org.Phones {
			if err := domain.ValidatePhoneNumber(phone.Number); err != nil {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "organization_phones",
					Severity: domain.SeverityBlock,
					Message:  err.Error(),
					Entity:   domain.EntityOrganization,
					EntityID: org.ID,
				})
			}
		}
	}
	return res, nil
}
