// Package domain defines the persistent entities, value types, error kinds and
// rule evaluation primitives used by the organization directory.
package domain

import (
	"time"

	"orgdirectory/pkg/geo"
)

// EntityType identifies the type of record stored in the directory.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityBuilding identifies a building record.
	EntityBuilding EntityType = "building"
	// EntityActivity identifies an activity category record.
	EntityActivity EntityType = "activity"
	// EntityOrganization identifies an organization record.
	EntityOrganization EntityType = "organization"
	// EntityPhone identifies a phone number owned by an organization.
	EntityPhone EntityType = "phone"
)

// Hierarchy and query limits shared by every backend and service.
const (
	// MaxActivityDepth is the number of levels an activity tree may hold
	// (levels 0, 1 and 2).
	MaxActivityDepth = 3
	// DefaultTreeLevels is the default materialization depth for activity trees.
	DefaultTreeLevels = 3
	// MinSearchQueryLength is the shortest accepted organization name query.
	MinSearchQueryLength = 2
	// MinPhoneLength is the shortest accepted phone number.
	MinPhoneLength = 5
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	// SeverityLog records the violation without affecting the commit.
	SeverityLog Severity = "log"
)

// Building is a physical location that hosts organizations.
type Building struct {
	ID        int64     `json:"id"`
	Address   string    `json:"address"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Point returns the building coordinates.
func (b Building) Point() geo.Point {
	return geo.Point{Lat: b.Latitude, Lng: b.Longitude}
}

// Activity is a node in the activity category tree. A nil ParentID marks a root.
type Activity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRoot reports whether the activity has no parent.
func (a Activity) IsRoot() bool { return a.ParentID == nil }

// ActivityNode is a materialized activity subtree.
type ActivityNode struct {
	Activity
	Level    int            `json:"level"`
	Children []ActivityNode `json:"children"`
}

// Phone is a contact number owned by exactly one organization.
type Phone struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Number         string `json:"number"`
}

// Organization is a business located in one building, reachable by phone and
// classified under any number of activities.
type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	BuildingID  int64     `json:"building_id"`
	Phones      []Phone   `json:"phones"`
	ActivityIDs []int64   `json:"activity_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PhoneNumbers returns the organization's numbers in storage order.
func (o Organization) PhoneNumbers() []string {
	out := make([]string, 0, len(o.Phones))
	for _, p := range o.Phones {
		out = append(out, p.Number)
	}
	return out
}

// BuildingInput carries the writable building fields.
type BuildingInput struct {
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ActivityInput carries the writable activity fields.
type ActivityInput struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// OrganizationInput carries the fields needed to register an organization.
type OrganizationInput struct {
	Name         string   `json:"name"`
	BuildingID   int64    `json:"building_id"`
	PhoneNumbers []string `json:"phone_numbers"`
	ActivityIDs  []int64  `json:"activity_ids"`
}

// OrganizationPatch carries a partial organization update. Nil fields are left
// untouched; a non-nil empty slice replaces the collection with an empty set.
type OrganizationPatch struct {
	Name         *string   `json:"name,omitempty"`
	BuildingID   *int64    `json:"building_id,omitempty"`
	PhoneNumbers *[]string `json:"phone_numbers,omitempty"`
	ActivityIDs  *[]int64  `json:"activity_ids,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the change log.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was removed.
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Int64Ptr returns a pointer to v. Handy for optional parent and building ids.
func Int64Ptr(v int64) *int64 { return &v }
