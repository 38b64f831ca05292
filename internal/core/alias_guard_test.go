package core

import (
	"fmt"
	"go/ast"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

// TestNoTypeAliases ensures the core package never reintroduces type aliases.
func TestNoTypeAliases(t *testing.T) {
	pkg := loadCorePackage(t)
	var aliases []string

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if !ts.Assign.IsValid() {
					continue
				}
				pos := pkg.Fset.Position(ts.Pos())
				aliases = append(aliases, fmt.Sprintf("%s:%d type %s", filepath.Base(pos.Filename), pos.Line, ts.Name.Name))
			}
		}
	}

	if len(aliases) > 0 {
		t.Fatalf("type aliases are forbidden in internal/core; found %d:\n%s", len(aliases), strings.Join(aliases, "\n"))
	}
}

// TestBatchSummariesBuiltOnlyBySummarize ensures batch summaries are derived
// in one place: no other core code constructs a domain.BatchSummary value.
func TestBatchSummariesBuiltOnlyBySummarize(t *testing.T) {
	pkg := loadCorePackage(t)
	var offenders []string
	found := false

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Body == nil {
				continue
			}
			ast.Inspect(fn.Body, func(n ast.Node) bool {
				lit, ok := n.(*ast.CompositeLit)
				if !ok || !isBatchSummaryType(lit.Type) {
					return true
				}
				if fn.Name.Name == "summarize" {
					found = true
					return true
				}
				pos := pkg.Fset.Position(lit.Pos())
				offenders = append(offenders, fmt.Sprintf("%s:%d in %s", filepath.Base(pos.Filename), pos.Line, fn.Name.Name))
				return true
			})
		}
	}

	if len(offenders) > 0 {
		t.Fatalf("domain.BatchSummary constructed outside summarize:\n%s", strings.Join(offenders, "\n"))
	}
	if !found {
		t.Fatalf("expected summarize to construct domain.BatchSummary")
	}
}

func isBatchSummaryType(expr ast.Expr) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "BatchSummary" {
		return false
	}
	ident, ok := sel.X.(*ast.Ident)
	return ok && ident.Name == "domain"
}
