package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewActivityHierarchyRule())
	engine.Register(NewBuildingCoordinatesRule())
	engine.Register(NewOrganizationPhonesRule())
	return engine
}
