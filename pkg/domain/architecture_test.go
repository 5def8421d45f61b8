package domain

import (
	"testing"

	"orgdirectory/testutil"
)

// TestDomainDoesNotImportInternal keeps the domain layer free of internal
// implementation packages so backends and services depend on it and not the
// other way round.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ImportsUnder("orgdirectory/internal"), "domain must not import internal packages")
	testutil.AssertNoTransitiveDependency(t, "orgdirectory/pkg/domain", testutil.ImportsUnder("orgdirectory/internal"), "domain must not reach internal packages")
}

func TestDomainHasNoThirdPartyDependencies(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "orgdirectory/pkg/domain", testutil.ThirdParty, "domain is standard library only")
}
