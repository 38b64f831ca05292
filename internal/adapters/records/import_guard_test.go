package records

import (
	"strings"
	"testing"

	"tracceaqua/testutil"
)

// TestNoPersistenceImports ensures production code reaches records only
// through domain.RecordStore and blobs only through the blob package.
func TestNoPersistenceImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return strings.HasPrefix(ip, "tracceaqua/internal/infra/")
	}, "records adapter must not import infra packages")
	testutil.AssertNoDirectImports(t, ".", testutil.StorageDriverImportForbidden, "records adapter must not import storage drivers")
}
