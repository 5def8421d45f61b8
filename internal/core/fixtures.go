package core

import (
	"context"
)

// Fixture seeding outcomes.
const (
	FixtureCreated = "created"
	FixtureExists  = "exists"
)

// FixtureReport summarizes a SeedFixtures call.
type FixtureReport struct {
	Status        string `json:"status"`
	Buildings     int    `json:"buildings"`
	Activities    int    `json:"activities"`
	Organizations int    `json:"organizations"`
}

// FixtureStatus reports how much data the directory holds.
type FixtureStatus struct {
	HasData           bool `json:"has_data"`
	BuildingCount     int  `json:"building_count"`
	ActivityCount     int  `json:"activity_count"`
	OrganizationCount int  `json:"organization_count"`
}

type fixtureActivity struct {
	name     string
	children []fixtureActivity
}

type fixtureOrganization struct {
	name       string
	building   int
	activities []string
	phones     []string
}

var fixtureBuildings = []BuildingInput{
	{Address: "1 Tsentralnaya St", Latitude: 55.7558, Longitude: 37.6173},
	{Address: "42 Pobedy Ave", Latitude: 55.7520, Longitude: 37.6250},
	{Address: "5 Severnaya Industrial Zone", Latitude: 55.7480, Longitude: 37.6080},
	{Address: "15 Tverskaya St", Latitude: 55.7600, Longitude: 37.6100},
	{Address: "8 Sadovaya St", Latitude: 55.7500, Longitude: 37.6200},
}

var fixtureActivities = []fixtureActivity{
	{name: "Food", children: []fixtureActivity{{name: "Meat"}, {name: "Dairy"}}},
	{name: "Automobiles", children: []fixtureActivity{
		{name: "Trucks"},
		{name: "Cars", children: []fixtureActivity{{name: "Parts"}, {name: "Accessories"}}},
	}},
	{name: "Retail"},
	{name: "Catering"},
	{name: "Construction"},
}

var fixtureOrganizations = []fixtureOrganization{
	{name: "Uyut Store", building: 0, activities: []string{"Retail"}, phones: []string{"+7 (999) 123-45-67", "+7 (999) 123-45-68"}},
	{name: "Solntse Cafe", building: 1, activities: []string{"Catering"}, phones: []string{"+7 (888) 765-43-21"}},
	{name: "StroyGroup", building: 2, activities: []string{"Construction"}, phones: []string{"+7 (777) 111-22-33", "+7 (777) 111-22-34"}},
	{name: "Meat Yard", building: 3, activities: []string{"Meat"}, phones: []string{"+7 (555) 222-33-44"}},
	{name: "Dairy Farm", building: 4, activities: []string{"Dairy"}, phones: []string{"+7 (444) 333-22-11"}},
	{name: "GruzAvto", building: 0, activities: []string{"Trucks"}, phones: []string{"+7 (333) 444-55-66"}},
	{name: "LegkoDrive", building: 1, activities: []string{"Cars"}, phones: []string{"+7 (222) 555-66-77"}},
	{name: "AutoParts", building: 2, activities: []string{"Parts"}, phones: []string{"+7 (111) 666-77-88", "+7 (111) 666-77-89"}},
	{name: "AutoStyle", building: 3, activities: []string{"Accessories"}, phones: []string{"+7 (900) 777-88-99"}},
	{name: "Food Supermarket", building: 4, activities: []string{"Food", "Retail"}, phones: []string{"+7 (800) 999-00-11"}},
}

// SeedFixtures loads a small sample directory around central Moscow in one
// unit of work. It does nothing when buildings, activities and organizations
// are all already present.
func (s *Service) SeedFixtures(ctx context.Context) (FixtureReport, error) {
	var report FixtureReport
	err := s.run(ctx, "seed_fixtures", func(ctx context.Context) (int64, error) {
		_, err := s.write(ctx, func(tx Transaction) error {
			if st := statusOf(tx.Snapshot()); st.HasData {
				report = FixtureReport{Status: FixtureExists, Buildings: st.BuildingCount, Activities: st.ActivityCount, Organizations: st.OrganizationCount}
				return nil
			}
			report = FixtureReport{Status: FixtureCreated}

			buildings := make([]int64, 0, len(fixtureBuildings))
			for _, in := range fixtureBuildings {
				b, err := tx.CreateBuilding(Building{Address: in.Address, Latitude: in.Latitude, Longitude: in.Longitude})
				if err != nil {
					return err
				}
				buildings = append(buildings, b.ID)
			}
			report.Buildings = len(buildings)

			activities := make(map[string]int64)
			type pending struct {
				node   fixtureActivity
				parent *int64
			}
			queue := make([]pending, 0, len(fixtureActivities))
			for _, a := range fixtureActivities {
				queue = append(queue, pending{node: a})
			}
			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				a, err := tx.CreateActivity(Activity{Name: p.node.name, ParentID: p.parent})
				if err != nil {
					return err
				}
				activities[a.Name] = a.ID
				for _, c := range p.node.children {
					queue = append(queue, pending{node: c, parent: copyID(&a.ID)})
				}
			}
			report.Activities = len(activities)

			for _, fo := range fixtureOrganizations {
				org, err := tx.CreateOrganization(Organization{Name: fo.name, BuildingID: buildings[fo.building]})
				if err != nil {
					return err
				}
				if _, err := tx.ReplaceOrganizationPhones(org.ID, fo.phones); err != nil {
					return err
				}
				ids := make([]int64, 0, len(fo.activities))
				for _, name := range fo.activities {
					ids = append(ids, activities[name])
				}
				if err := tx.ReplaceOrganizationActivities(org.ID, ids); err != nil {
					return err
				}
				report.Organizations++
			}
			return nil
		})
		return 0, err
	})
	if err != nil {
		return FixtureReport{}, err
	}
	return report, nil
}

// FixtureStatus counts the records in the directory.
func (s *Service) FixtureStatus(ctx context.Context) (FixtureStatus, error) {
	var st FixtureStatus
	err := s.run(ctx, "fixture_status", func(ctx context.Context) (int64, error) {
		return 0, s.view(ctx, func(v TransactionView) error {
			st = statusOf(v)
			return nil
		})
	})
	return st, err
}

func statusOf(v TransactionView) FixtureStatus {
	st := FixtureStatus{
		BuildingCount:     len(v.ListBuildings()),
		ActivityCount:     len(v.ListActivities()),
		OrganizationCount: len(v.ListOrganizations()),
	}
	st.HasData = st.BuildingCount > 0 && st.ActivityCount > 0 && st.OrganizationCount > 0
	return st
}
