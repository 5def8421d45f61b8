package memory

import (
	"sort"

	"orgdirectory/pkg/domain"
)

// OrganizationActivity is one row of the organization/activity association.
type OrganizationActivity struct {
	OrganizationID int64 `json:"organization_id"`
	ActivityID     int64 `json:"activity_id"`
}

// Sequences holds the last identifier handed out per entity.
type Sequences struct {
	Building     int64 `json:"building"`
	Activity     int64 `json:"activity"`
	Organization int64 `json:"organization"`
	Phone        int64 `json:"phone"`
}

// Snapshot captures a point-in-time clone of the store state in normalized
// form, one slice per table, each ordered by primary key.
type Snapshot struct {
	Buildings     []domain.Building      `json:"buildings"`
	Activities    []domain.Activity      `json:"activities"`
	Organizations []domain.Organization  `json:"organizations"`
	Phones        []domain.Phone         `json:"phones"`
	Links         []OrganizationActivity `json:"organization_activities"`
	Sequences     Sequences              `json:"sequences"`
}

type memoryState struct {
	buildings     map[int64]domain.Building
	activities    map[int64]domain.Activity
	organizations map[int64]domain.Organization
	phones        map[int64]domain.Phone
	// links maps organization id to its set of activity ids.
	links map[int64]map[int64]struct{}
	seq   Sequences
}

func newMemoryState() memoryState {
	return memoryState{
		buildings:     make(map[int64]domain.Building),
		activities:    make(map[int64]domain.Activity),
		organizations: make(map[int64]domain.Organization),
		phones:        make(map[int64]domain.Phone),
		links:         make(map[int64]map[int64]struct{}),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.buildings {
		out.buildings[k] = v
	}
	for k, v := range s.activities {
		out.activities[k] = cloneActivity(v)
	}
	for k, v := range s.organizations {
		out.organizations[k] = stripOrganization(v)
	}
	for k, v := range s.phones {
		out.phones[k] = v
	}
	for org, set := range s.links {
		cp := make(map[int64]struct{}, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		out.links[org] = cp
	}
	out.seq = s.seq
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		Buildings:     make([]domain.Building, 0, len(state.buildings)),
		Activities:    make([]domain.Activity, 0, len(state.activities)),
		Organizations: make([]domain.Organization, 0, len(state.organizations)),
		Phones:        make([]domain.Phone, 0, len(state.phones)),
		Sequences:     state.seq,
	}
	for _, b := range state.buildings {
		snap.Buildings = append(snap.Buildings, b)
	}
	for _, a := range state.activities {
		snap.Activities = append(snap.Activities, cloneActivity(a))
	}
	for _, o := range state.organizations {
		snap.Organizations = append(snap.Organizations, stripOrganization(o))
	}
	for _, p := range state.phones {
		snap.Phones = append(snap.Phones, p)
	}
	for org, set := range state.links {
		for id := range set {
			snap.Links = append(snap.Links, OrganizationActivity{OrganizationID: org, ActivityID: id})
		}
	}
	sort.Slice(snap.Buildings, func(i, j int) bool { return snap.Buildings[i].ID < snap.Buildings[j].ID })
	sort.Slice(snap.Activities, func(i, j int) bool { return snap.Activities[i].ID < snap.Activities[j].ID })
	sort.Slice(snap.Organizations, func(i, j int) bool { return snap.Organizations[i].ID < snap.Organizations[j].ID })
	sort.Slice(snap.Phones, func(i, j int) bool { return snap.Phones[i].ID < snap.Phones[j].ID })
	sort.Slice(snap.Links, func(i, j int) bool {
		if snap.Links[i].OrganizationID != snap.Links[j].OrganizationID {
			return snap.Links[i].OrganizationID < snap.Links[j].OrganizationID
		}
		return snap.Links[i].ActivityID < snap.Links[j].ActivityID
	})
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for _, b := range snap.Buildings {
		state.buildings[b.ID] = b
	}
	for _, a := range snap.Activities {
		state.activities[a.ID] = cloneActivity(a)
	}
	for _, o := range snap.Organizations {
		state.organizations[o.ID] = stripOrganization(o)
	}
	for _, p := range snap.Phones {
		state.phones[p.ID] = p
	}
	for _, l := range snap.Links {
		set, ok := state.links[l.OrganizationID]
		if !ok {
			set = make(map[int64]struct{})
			state.links[l.OrganizationID] = set
		}
		set[l.ActivityID] = struct{}{}
	}
	state.seq = snap.Sequences
	return state
}

// normalizeSnapshot repairs sequences that lag behind stored ids, which
// happens when rows were loaded by hand or by an older writer.
func normalizeSnapshot(snap Snapshot) Snapshot {
	for _, b := range snap.Buildings {
		snap.Sequences.Building = max(snap.Sequences.Building, b.ID)
	}
	for _, a := range snap.Activities {
		snap.Sequences.Activity = max(snap.Sequences.Activity, a.ID)
	}
	for _, o := range snap.Organizations {
		snap.Sequences.Organization = max(snap.Sequences.Organization, o.ID)
	}
	for _, p := range snap.Phones {
		snap.Sequences.Phone = max(snap.Sequences.Phone, p.ID)
	}
	return snap
}

func cloneActivity(a domain.Activity) domain.Activity {
	if a.ParentID != nil {
		a.ParentID = domain.Int64Ptr(*a.ParentID)
	}
	return a
}

// stripOrganization drops the decorated collections; the state keeps phones
// and links in their own tables.
func stripOrganization(o domain.Organization) domain.Organization {
	o.Phones = nil
	o.ActivityIDs = nil
	return o
}

// decorateOrganization attaches phones (by id) and activity ids (ascending).
func decorateOrganization(state *memoryState, o domain.Organization) domain.Organization {
	o.Phones = organizationPhones(state, o.ID)
	o.ActivityIDs = organizationActivityIDs(state, o.ID)
	return o
}

func organizationPhones(state *memoryState, orgID int64) []domain.Phone {
	phones := make([]domain.Phone, 0)
	for _, p := range state.phones {
		if p.OrganizationID == orgID {
			phones = append(phones, p)
		}
	}
	sort.Slice(phones, func(i, j int) bool { return phones[i].ID < phones[j].ID })
	return phones
}

func organizationActivityIDs(state *memoryState, orgID int64) []int64 {
	set := state.links[orgID]
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// dedupeIDs keeps the first occurrence of every id, preserving input order.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
