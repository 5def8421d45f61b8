package core

import (
	"orgdirectory/pkg/domain"
	"orgdirectory/pkg/geo"
)

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Building           = domain.Building
	Activity           = domain.Activity
	ActivityNode       = domain.ActivityNode
	Organization       = domain.Organization
	Phone              = domain.Phone
	BuildingInput      = domain.BuildingInput
	ActivityInput      = domain.ActivityInput
	OrganizationInput  = domain.OrganizationInput
	OrganizationPatch  = domain.OrganizationPatch
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	NotFoundError      = domain.NotFoundError
	ValidationError    = domain.ValidationError
	ConflictError      = domain.ConflictError
	Point              = geo.Point
	Bounds             = geo.Bounds
)

const (
	EntityBuilding     = domain.EntityBuilding
	EntityActivity     = domain.EntityActivity
	EntityOrganization = domain.EntityOrganization
	EntityPhone        = domain.EntityPhone
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }
