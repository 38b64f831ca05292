package core

import (
	"go/types"
	"path/filepath"
	"runtime"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestRecordStoreImplementationsHardening ensures only sanctioned persistence
// packages provide concrete implementations of domain.RecordStore. Adding a
// backend elsewhere requires updating the allowed list.
func TestRecordStoreImplementationsHardening(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes, Tests: true}
	pkgs, err := packages.Load(cfg, "tracceaqua/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var recordStore *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "tracceaqua/pkg/domain" || p.Types == nil {
			continue
		}
		obj := p.Types.Scope().Lookup("RecordStore")
		if obj == nil {
			t.Fatalf("domain.RecordStore not found")
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			t.Fatalf("domain.RecordStore is not an interface")
		}
		recordStore = iface
	}
	if recordStore == nil {
		t.Fatalf("failed to resolve RecordStore interface")
	}
	allowed := map[string]struct{}{
		"tracceaqua/internal/infra/persistence/memory":   {},
		"tracceaqua/internal/infra/persistence/sqlite":   {},
		"tracceaqua/internal/infra/persistence/postgres": {},
		"tracceaqua/internal/core":                       {}, // closable memory wrapper returned by OpenRecordStore
		"tracceaqua/internal/adapters/records":           {}, // failing store doubles in handler tests
	}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil || p.Types.Scope() == nil {
			continue
		}
		for _, name := range p.Types.Scope().Names() {
			obj, isType := p.Types.Scope().Lookup(name).(*types.TypeName)
			if !isType {
				continue
			}
			named, ok := obj.Type().(*types.Named)
			if !ok {
				continue
			}
			if _, ok := named.Underlying().(*types.Struct); !ok {
				continue
			}
			if types.Implements(named, recordStore) || types.Implements(types.NewPointer(named), recordStore) {
				if _, ok := allowed[p.PkgPath]; !ok {
					unexpected = append(unexpected, p.PkgPath+"."+name)
				}
			}
		}
	}
	if len(unexpected) > 0 {
		_, file, line, _ := runtime.Caller(0)
		t.Fatalf("unexpected RecordStore implementations (update allowed list intentionally if adding a new backend):\nfile=%s:%d\n%s", filepath.Base(file), line, unexpected)
	}
}
