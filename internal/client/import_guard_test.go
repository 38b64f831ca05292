package client

import (
	"testing"

	"tracceaqua/testutil"
)

// TestClientDependsOnDomainOnly keeps the fetcher usable outside the server.
func TestClientDependsOnDomainOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "client must only depend on pkg/domain")
	testutil.AssertNoDirectImports(t, ".", testutil.StorageDriverImportForbidden, "client must not import storage drivers")
}
